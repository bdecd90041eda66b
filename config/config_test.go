package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	p, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", p.Model, DefaultModel)
	}
	if p.SkipPermissions {
		t.Error("SkipPermissions should default to false")
	}
	if len(p.AllowedTools) != 0 {
		t.Errorf("AllowedTools = %v, want empty", p.AllowedTools)
	}
}

func TestLoadExistingFile(t *testing.T) {
	dir := t.TempDir()
	raw := "model: gpt-4o\nfallbackModel: claude-sonnet-4-5\nallowedTools:\n  - \"bash(npm test)\"\n  - \"bash(git diff)\"\n  - \"bash(npm test)\"\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Model != "gpt-4o" || p.FallbackModel != "claude-sonnet-4-5" {
		t.Errorf("models = %q / %q", p.Model, p.FallbackModel)
	}
	// sorted and deduplicated on load
	want := []string{"bash(git diff)", "bash(npm test)"}
	if len(p.AllowedTools) != len(want) {
		t.Fatalf("AllowedTools = %v, want %v", p.AllowedTools, want)
	}
	for i := range want {
		if p.AllowedTools[i] != want[i] {
			t.Errorf("AllowedTools[%d] = %q, want %q", i, p.AllowedTools[i], want[i])
		}
	}
}

func TestAddAllowedToolPersists(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.AddAllowedTool("bash(npm install)"); err != nil {
		t.Fatalf("AddAllowedTool: %v", err)
	}
	if err := p.AddAllowedTool("bash(git status)"); err != nil {
		t.Fatalf("AddAllowedTool: %v", err)
	}
	// duplicate insert is a no-op
	if err := p.AddAllowedTool("bash(npm install)"); err != nil {
		t.Fatalf("AddAllowedTool: %v", err)
	}

	if !p.IsAllowed("bash(npm install)") || !p.IsAllowed("bash(git status)") {
		t.Error("expected both keys allowed")
	}
	if p.IsAllowed("bash(rm -rf /)") {
		t.Error("ungranted key must not be allowed")
	}

	// a fresh load from the same directory sees the grants
	reloaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"bash(git status)", "bash(npm install)"}
	if len(reloaded.AllowedTools) != len(want) {
		t.Fatalf("reloaded AllowedTools = %v, want %v", reloaded.AllowedTools, want)
	}
	for i := range want {
		if reloaded.AllowedTools[i] != want[i] {
			t.Errorf("reloaded[%d] = %q, want %q", i, reloaded.AllowedTools[i], want[i])
		}
	}
}
