package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxTurns != 10 || cfg.Provider.Model != "claude-sonnet-4-5" {
		t.Errorf("unexpected defaults: %+v", cfg.Agent)
	}
	if !cfg.ArchiveEnabled() {
		t.Error("sqlite archive should be on by default")
	}
}

func TestLoad_JSON5(t *testing.T) {
	path := writeConfig(t, `{
		// comments and trailing commas are fine
		provider: { model: "claude-haiku-4-5", requests_per_minute: 30, },
		agent: { max_turns: 6 },
		pricing: { "claude-haiku-4": { input_per_1m: 1, output_per_1m: 5 } },
		tools: { frames: { max_side: 800 } },
		store: { driver: "none" },
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Model != "claude-haiku-4-5" || cfg.Provider.RequestsPerMinute != 30 {
		t.Errorf("provider not applied: %+v", cfg.Provider)
	}
	if cfg.Agent.MaxTurns != 6 {
		t.Errorf("max_turns = %d", cfg.Agent.MaxTurns)
	}
	if cfg.Tools.Frames.MaxSide != 800 || cfg.Tools.Frames.MaxBytes != 1024*1024 {
		t.Errorf("frame defaults not kept alongside override: %+v", cfg.Tools.Frames)
	}
	if cfg.Pricing["claude-haiku-4"].OutputPer1M != 5 {
		t.Errorf("pricing not applied: %+v", cfg.Pricing)
	}
	if cfg.ArchiveEnabled() {
		t.Error("archive should be disabled")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("VIDCOACH_MAX_TURNS", "4")
	t.Setenv("VIDCOACH_POSTGRES_DSN", "postgres://localhost/vidcoach")

	cfg, err := Load(writeConfig(t, `{ agent: { max_turns: 12 } }`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "sk-ant-test" || cfg.Agent.MaxTurns != 4 {
		t.Errorf("env not applied: key=%q turns=%d", cfg.Provider.APIKey, cfg.Agent.MaxTurns)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN == "" {
		t.Errorf("postgres dsn not applied: %+v", cfg.Store)
	}

	t.Setenv("VIDCOACH_MAX_TURNS", "many")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric VIDCOACH_MAX_TURNS")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", `{ agent: `, "parse"},
		{"zero turns", `{ agent: { max_turns: 0 } }`, "max_turns"},
		{"bad driver", `{ store: { driver: "mongo" } }`, "store.driver"},
		{"postgres without dsn", `{ store: { driver: "postgres" } }`, "store.dsn"},
		{"bad injection action", `{ agent: { injection_action: "shout" } }`, "injection_action"},
		{"negative price", `{ pricing: { x: { input_per_1m: -1 } } }`, "pricing.x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json5")
	cfg := Default()
	cfg.Agent.Instruction = "Focus on footwork."
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Agent.Instruction != "Focus on footwork." {
		t.Errorf("instruction lost: %+v", got.Agent)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/.vidcoach"); got != filepath.Join(home, ".vidcoach") {
		t.Errorf("ExpandHome = %s", got)
	}
	if got := ExpandHome("/tmp/x"); got != "/tmp/x" {
		t.Errorf("absolute path changed: %s", got)
	}
}
