package config

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// setupTestEnv points the loader at an isolated config dir and strips
// the env overrides the loader reads.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DISTILL_CONFIG_DIR", dir)
	for _, key := range []string{
		"DISTILL_OUTPUT_DIR", "DISTILL_LLM_COMMAND", "DISTILL_TIMEZONE",
		"DISTILL_SINCE_DAYS", "DISTILL_CMS_ADMIN_KEY", "DISTILL_SCHEDULER_API_KEY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func writeConfig(t *testing.T, dir string, data any) {
	t.Helper()
	out, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFileName), out, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	setupTestEnv(t)
	cfg, err := LoadMinimal()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Journal.Style != "dev-journal" {
		t.Errorf("style = %q, want dev-journal", cfg.Journal.Style)
	}
	if cfg.Blog.MinJournalsForWeekly != 3 {
		t.Errorf("min_journals_for_weekly = %d, want 3", cfg.Blog.MinJournalsForWeekly)
	}
	if cfg.Blog.OverlapThreshold != 0.4 {
		t.Errorf("overlap_threshold = %v, want 0.4", cfg.Blog.OverlapThreshold)
	}
	if cfg.LLMTimeout().Seconds() != 120 {
		t.Errorf("llm timeout = %v, want 120s", cfg.LLMTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	dir := setupTestEnv(t)
	writeConfig(t, dir, map[string]any{
		"output":  map[string]any{"directory": "/tmp/out"},
		"journal": map[string]any{"style": "reflective", "target_word_count": 800},
		"blog":    map[string]any{"platforms": []string{"vault", "thread"}},
	})

	cfg, err := LoadMinimal()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Output.Directory != "/tmp/out" {
		t.Errorf("output dir = %q", cfg.Output.Directory)
	}
	if cfg.Journal.Style != "reflective" || cfg.Journal.TargetWordCount != 800 {
		t.Errorf("journal = %+v", cfg.Journal)
	}
	if len(cfg.Blog.Platforms) != 2 || cfg.Blog.Platforms[0] != "vault" {
		t.Errorf("platforms = %v", cfg.Blog.Platforms)
	}
	// Keys the file does not mention keep their defaults.
	if cfg.Blog.MinJournalsForWeekly != 3 {
		t.Errorf("min_journals_for_weekly = %d, want default 3", cfg.Blog.MinJournalsForWeekly)
	}
}

func TestUnknownKeyRejectedByName(t *testing.T) {
	dir := setupTestEnv(t)
	writeConfig(t, dir, map[string]any{
		"journal": map[string]any{"styel": "dev-journal"},
	})

	_, err := LoadMinimal()
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "styel") {
		t.Errorf("error must name the offending key, got: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := setupTestEnv(t)
	writeConfig(t, dir, map[string]any{
		"output": map[string]any{"directory": "/tmp/from-file"},
		"llm":    map[string]any{"command": "from-file"},
	})
	t.Setenv("DISTILL_OUTPUT_DIR", "/tmp/from-env")
	t.Setenv("DISTILL_SINCE_DAYS", "30")

	cfg, err := LoadMinimal()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Output.Directory != "/tmp/from-env" {
		t.Errorf("output dir = %q, want env value", cfg.Output.Directory)
	}
	if cfg.Sessions.SinceDays != 30 {
		t.Errorf("since_days = %d, want 30", cfg.Sessions.SinceDays)
	}
	if cfg.LLM.Command != "from-file" {
		t.Errorf("llm command = %q, file value must survive", cfg.LLM.Command)
	}
}

func TestFlagsOverrideEverything(t *testing.T) {
	setupTestEnv(t)
	t.Setenv("DISTILL_OUTPUT_DIR", "/tmp/from-env")

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	RegisterRunFlags(fs)
	if err := fs.Parse([]string{"-output", "/tmp/from-flag", "-target-words", "750"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Output.Directory != "/tmp/from-flag" {
		t.Errorf("output dir = %q, want flag value", cfg.Output.Directory)
	}
	if cfg.Journal.TargetWordCount != 750 {
		t.Errorf("target words = %d, want 750", cfg.Journal.TargetWordCount)
	}
	// Unset flags must not clobber lower layers with zero values.
	if cfg.Journal.Style != "dev-journal" {
		t.Errorf("style = %q, default must survive", cfg.Journal.Style)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	setupTestEnv(t)
	base, err := LoadMinimal()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty output", func(c *Config) { c.Output.Directory = "" }, "output.directory"},
		{"bad source", func(c *Config) { c.Sessions.Sources = []string{"telepathy"} }, "telepathy"},
		{"bad platform", func(c *Config) { c.Blog.Platforms = []string{"myspace"} }, "myspace"},
		{"threshold too high", func(c *Config) { c.Blog.OverlapThreshold = 1.5 }, "overlap_threshold"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"nameless project", func(c *Config) { c.Projects = []ProjectConfig{{Description: "x"}} }, "missing name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestHashChangesWithConfig(t *testing.T) {
	setupTestEnv(t)
	cfg, err := LoadMinimal()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	h1 := cfg.Hash()
	if h1 == "" || len(h1) != 16 {
		t.Fatalf("hash = %q, want 16 hex chars", h1)
	}
	if cfg.Hash() != h1 {
		t.Error("hash must be deterministic")
	}

	cfg.Journal.TargetWordCount++
	if cfg.Hash() == h1 {
		t.Error("hash must change when config changes")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	setupTestEnv(t)
	cfg, err := LoadMinimal()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Journal.Style = "technical"
	cfg.Projects = []ProjectConfig{{Name: "distill", Description: "pipeline"}}
	if err := cfg.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := LoadMinimal()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if diff := cmp.Diff(cfg, reloaded); diff != "" {
		t.Errorf("config round trip mismatch (-saved +reloaded):\n%s", diff)
	}
}
