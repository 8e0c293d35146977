package skills

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const (
	// SkillFilename is the expected filename for skill definitions.
	SkillFilename = "SKILL.md"

	// frontmatterDelimiter marks the beginning and end of YAML frontmatter.
	frontmatterDelimiter = "---"
)

// Store holds discovered skills and answers lookups by name.
type Store struct {
	logger *slog.Logger

	mu     sync.RWMutex
	skills map[string]*Skill

	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	watchDirs   []string
	debounce    time.Duration
}

// NewStore creates an empty skill store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:   logger.With("component", "skills"),
		skills:   make(map[string]*Skill),
		debounce: 500 * time.Millisecond,
	}
}

// Register adds or replaces a skill.
func (s *Store) Register(skill *Skill) {
	if skill == nil || skill.Name == "" {
		return
	}
	s.mu.Lock()
	s.skills[skill.Name] = skill
	s.mu.Unlock()
}

// Get returns the skill with the given name.
func (s *Store) Get(name string) (*Skill, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	skill, ok := s.skills[name]
	return skill, ok
}

// Available returns all skills eligible for routing, sorted by name.
func (s *Store) Available() []*Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Skill, 0, len(s.skills))
	for _, skill := range s.skills {
		if skill.Available {
			out = append(out, skill)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Summary renders a short listing of available skills for prompt use.
func (s *Store) Summary() string {
	skills := s.Available()
	if len(skills) == 0 {
		return "No skills available."
	}
	var b strings.Builder
	for _, skill := range skills {
		fmt.Fprintf(&b, "- %s: %s\n", skill.Name, skill.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// LoadDir discovers skills under dir. Each skill lives in its own
// subdirectory containing a SKILL.md with YAML frontmatter.
func (s *Store) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read skills dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), SkillFilename)
		skill, err := ParseSkillFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("skipping invalid skill", "path", path, "error", err)
			}
			continue
		}
		s.Register(skill)
		loaded++
	}
	s.logger.Info("loaded skills", "dir", dir, "count", loaded)
	return nil
}

// Watch reloads skills when files under the given directories change.
func (s *Store) Watch(ctx context.Context, dirs ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watcher = watcher
	s.watchCancel = cancel
	s.watchDirs = dirs

	go s.watchLoop(watchCtx)
	return nil
}

func (s *Store) watchLoop(ctx context.Context) {
	var timer *time.Timer
	reload := func() {
		for _, dir := range s.watchDirs {
			if err := s.LoadDir(dir); err != nil {
				s.logger.Warn("skill reload failed", "dir", dir, "error", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, reload)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("skill watcher error", "error", err)
		}
	}
}

// Close stops watching, if started.
func (s *Store) Close() error {
	if s.watchCancel != nil {
		s.watchCancel()
	}
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// ParseSkillFile parses a SKILL.md file and returns a Skill.
func ParseSkillFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSkill(data)
}

// ParseSkill parses SKILL.md content: YAML frontmatter between "---"
// delimiters followed by the markdown prompt body.
func ParseSkill(data []byte) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	skill := &Skill{Available: true}
	if err := yaml.Unmarshal(frontmatter, skill); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if skill.Name == "" {
		return nil, fmt.Errorf("skill name is required")
	}
	if skill.Description == "" {
		return nil, fmt.Errorf("skill description is required")
	}
	skill.Content = strings.TrimSpace(string(body))
	return skill, nil
}

func splitFrontmatter(data []byte) (frontmatter, body []byte, err error) {
	trimmed := bytes.TrimLeft(data, "\uFEFF\n\r ")
	if !bytes.HasPrefix(trimmed, []byte(frontmatterDelimiter)) {
		return nil, nil, fmt.Errorf("missing frontmatter delimiter")
	}
	rest := trimmed[len(frontmatterDelimiter):]
	idx := bytes.Index(rest, []byte("\n"+frontmatterDelimiter))
	if idx < 0 {
		return nil, nil, fmt.Errorf("unterminated frontmatter")
	}
	frontmatter = rest[:idx]
	body = rest[idx+len(frontmatterDelimiter)+1:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = nil
	}
	return frontmatter, body, nil
}
