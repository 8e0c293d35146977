package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/skills"
	"github.com/haasonsaas/relay/pkg/models"
)

func skillStore(t *testing.T) *skills.Store {
	t.Helper()
	store := skills.NewStore(nil)
	store.Register(&skills.Skill{
		Name:        "deploy",
		Description: "deploy services to production kubernetes clusters",
		Available:   true,
		ModelTier:   "coding",
	})
	store.Register(&skills.Skill{
		Name:        "research",
		Description: "research topics on the web and summarize findings",
		Available:   true,
	})
	return store
}

func userTurn(content string) *agent.TurnContext {
	session := &models.Session{ID: "s1", ChatID: "c1", Channel: models.ChannelCLI}
	msg := &models.Message{ID: "m1", Role: models.RoleUser, Content: content, CreatedAt: time.Now()}
	session.Messages = []*models.Message{msg}
	return agent.NewTurnContext(session, msg)
}

func TestKeywordMatcher(t *testing.T) {
	store := skillStore(t)
	matcher := NewKeywordMatcher()
	if err := matcher.IndexSkills(store.Available()); err != nil {
		t.Fatalf("IndexSkills: %v", err)
	}
	if !matcher.Ready() {
		t.Fatal("matcher not ready after indexing")
	}

	result, err := matcher.Match(context.Background(), "deploy the api to production", store.Available(), nil)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Skill != "deploy" {
		t.Errorf("matched %q, want deploy (confidence %v)", result.Skill, result.Confidence)
	}

	result, err = matcher.Match(context.Background(), "completely unrelated gibberish zzz", store.Available(), nil)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Skill != "" {
		t.Errorf("matched %q, want no match", result.Skill)
	}
	if result.ModelTier != "balanced" {
		t.Errorf("no-match tier = %q", result.ModelTier)
	}
}

func TestStageRoutesSkill(t *testing.T) {
	store := skillStore(t)
	stage := NewStage(store, NewKeywordMatcher(), nil, nil)

	tc := userTurn("please deploy the payment service to production")
	if !stage.ShouldProcess(tc) {
		t.Fatal("ShouldProcess = false")
	}
	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if tc.ActiveSkill == nil || tc.ActiveSkill.Name != "deploy" {
		t.Fatalf("active skill = %+v", tc.ActiveSkill)
	}
	if tc.ModelTier != "coding" {
		t.Errorf("model tier = %q, want skill tier", tc.ModelTier)
	}
	if tc.Routing.Skill != "deploy" || tc.Routing.Confidence == 0 {
		t.Errorf("routing info = %+v", tc.Routing)
	}
}

func TestStageNoMatchSetsTier(t *testing.T) {
	stage := NewStage(skillStore(t), NewKeywordMatcher(), nil, nil)

	tc := userTurn("tell me something entirely unrelated xyzzy")
	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if tc.ActiveSkill != nil {
		t.Errorf("active skill = %+v, want nil", tc.ActiveSkill)
	}
	if tc.ModelTier != "balanced" {
		t.Errorf("model tier = %q", tc.ModelTier)
	}
}

type failingMatcher struct{ err error }

func (m *failingMatcher) Enabled() bool                      { return true }
func (m *failingMatcher) Ready() bool                        { return true }
func (m *failingMatcher) IndexSkills([]*skills.Skill) error  { return nil }
func (m *failingMatcher) Match(context.Context, string, []*skills.Skill, []*models.Message) (*MatchResult, error) {
	return nil, m.err
}

func TestStageMatcherErrorRecordedNotFatal(t *testing.T) {
	stage := NewStage(skillStore(t), &failingMatcher{err: errors.New("classifier down")}, nil, nil)

	tc := userTurn("deploy something")
	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if tc.Routing.Err == "" {
		t.Error("routing error not recorded")
	}
	if tc.ActiveSkill != nil {
		t.Error("skill set despite matcher failure")
	}
}

func TestStageGating(t *testing.T) {
	stage := NewStage(skillStore(t), NewKeywordMatcher(), nil, nil)

	t.Run("auto mode skipped", func(t *testing.T) {
		tc := userTurn("deploy the api")
		tc.Session.Messages[0].Metadata = map[string]any{models.MetaAutoMode: true}
		if stage.ShouldProcess(tc) {
			t.Error("ShouldProcess = true for auto turn")
		}
	})

	t.Run("later iterations skipped", func(t *testing.T) {
		tc := userTurn("deploy the api")
		tc.Iteration = 1
		if stage.ShouldProcess(tc) {
			t.Error("ShouldProcess = true past first iteration")
		}
	})

	t.Run("blank query skipped", func(t *testing.T) {
		tc := userTurn("   ")
		if stage.ShouldProcess(tc) {
			t.Error("ShouldProcess = true for blank query")
		}
	})
}

func TestStageSkillTransition(t *testing.T) {
	stage := NewStage(skillStore(t), NewKeywordMatcher(), nil, nil)

	tc := userTurn("whatever")
	tc.SkillTransitionTarget = "research"
	if !stage.ShouldProcess(tc) {
		t.Fatal("ShouldProcess = false with pending transition")
	}
	if err := stage.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if tc.ActiveSkill == nil || tc.ActiveSkill.Name != "research" {
		t.Errorf("active skill = %+v", tc.ActiveSkill)
	}
	if tc.SkillTransitionTarget != "" {
		t.Error("transition request not cleared")
	}
}
