package skills

import (
	"os"
	"path/filepath"
	"testing"
)

const researchSkill = `---
name: research
description: Deep-dive research with web tools
modelTier: powerful
nextSkill: summarize
conditionalNextSkills:
  needs_code: coding
mcp:
  command: research-server
  args: ["--quiet"]
---

You are a meticulous researcher. Cite sources.
`

func TestParseSkill(t *testing.T) {
	skill, err := ParseSkill([]byte(researchSkill))
	if err != nil {
		t.Fatalf("ParseSkill: %v", err)
	}

	if skill.Name != "research" || skill.Description != "Deep-dive research with web tools" {
		t.Errorf("skill = %+v", skill)
	}
	if !skill.Available {
		t.Error("availability default is false")
	}
	if skill.ModelTier != "powerful" {
		t.Errorf("model tier = %q", skill.ModelTier)
	}
	if skill.NextSkill != "summarize" || skill.ConditionalNextSkills["needs_code"] != "coding" {
		t.Errorf("pipeline = %q / %v", skill.NextSkill, skill.ConditionalNextSkills)
	}
	if !skill.HasPipeline() {
		t.Error("HasPipeline = false")
	}
	if skill.MCPConfig == nil || skill.MCPConfig.Command != "research-server" {
		t.Errorf("mcp = %+v", skill.MCPConfig)
	}
	if skill.Content != "You are a meticulous researcher. Cite sources." {
		t.Errorf("content = %q", skill.Content)
	}
}

func TestParseSkillByteOrderMark(t *testing.T) {
	skill, err := ParseSkill([]byte("\uFEFF" + researchSkill))
	if err != nil {
		t.Fatalf("ParseSkill: %v", err)
	}
	if skill.Name != "research" {
		t.Errorf("skill = %+v", skill)
	}
}

func TestParseSkillErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no frontmatter", "just markdown"},
		{"unterminated frontmatter", "---\nname: x\n"},
		{"missing name", "---\ndescription: d\n---\nbody"},
		{"missing description", "---\nname: x\n---\nbody"},
		{"bad yaml", "---\nname: [\n---\nbody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSkill([]byte(tt.data)); err == nil {
				t.Error("invalid skill accepted")
			}
		})
	}
}

func TestStoreAvailableAndSummary(t *testing.T) {
	store := NewStore(nil)
	store.Register(&Skill{Name: "writing", Description: "Draft prose", Available: true})
	store.Register(&Skill{Name: "coding", Description: "Write code", Available: true})
	store.Register(&Skill{Name: "hidden", Description: "Disabled", Available: false})

	available := store.Available()
	if len(available) != 2 || available[0].Name != "coding" || available[1].Name != "writing" {
		t.Errorf("available = %v", available)
	}

	want := "- coding: Write code\n- writing: Draft prose"
	if got := store.Summary(); got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}

func TestStoreSummaryEmpty(t *testing.T) {
	if got := NewStore(nil).Summary(); got != "No skills available." {
		t.Errorf("Summary = %q", got)
	}
}

func TestStoreRegisterReplaces(t *testing.T) {
	store := NewStore(nil)
	store.Register(&Skill{Name: "coding", Description: "v1", Available: true})
	store.Register(&Skill{Name: "coding", Description: "v2", Available: true})

	skill, ok := store.Get("coding")
	if !ok || skill.Description != "v2" {
		t.Errorf("skill = %+v", skill)
	}

	if _, ok := store.Get("absent"); ok {
		t.Error("Get(absent) = true")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	writeSkill := func(sub, content string) {
		t.Helper()
		skillDir := filepath.Join(dir, sub)
		if err := os.MkdirAll(skillDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(skillDir, SkillFilename), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	writeSkill("research", researchSkill)
	writeSkill("broken", "no frontmatter here")
	// Directory without a SKILL.md is skipped silently.
	os.MkdirAll(filepath.Join(dir, "empty"), 0o755)

	store := NewStore(nil)
	if err := store.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	if _, ok := store.Get("research"); !ok {
		t.Error("research skill not loaded")
	}
	if len(store.Available()) != 1 {
		t.Errorf("available = %d, want 1", len(store.Available()))
	}
}

func TestLoadDirMissing(t *testing.T) {
	if err := NewStore(nil).LoadDir(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("missing dir accepted")
	}
}
