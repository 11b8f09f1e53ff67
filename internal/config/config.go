// Package config loads the layered pipeline configuration:
// defaults < config file < environment < flags.
package config

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const configFileName = "config.json"

// SessionsConfig controls session-log discovery.
type SessionsConfig struct {
	// Sources enables session dialects: chat-log, rollout, multi-agent.
	Sources []string `json:"sources,omitempty"`
	// ChatLogDirs etc. are the roots scanned per dialect.
	ChatLogDirs    []string `json:"chat_log_dirs,omitempty"`
	RolloutDirs    []string `json:"rollout_dirs,omitempty"`
	MultiAgentDirs []string `json:"multi_agent_dirs,omitempty"`
	IncludeGlobal  bool     `json:"include_global"`
	SinceDays      int      `json:"since_days,omitempty"`
}

// JournalConfig controls daily journal synthesis.
type JournalConfig struct {
	Style            string `json:"style,omitempty"`
	TargetWordCount  int    `json:"target_word_count,omitempty"`
	MemoryWindowDays int    `json:"memory_window_days,omitempty"`
}

// BlogConfig controls weekly/thematic post synthesis.
type BlogConfig struct {
	TargetWordCount      int      `json:"target_word_count,omitempty"`
	IncludeDiagrams      bool     `json:"include_diagrams"`
	Platforms            []string `json:"platforms,omitempty"`
	MinJournalsForWeekly int      `json:"min_journals_for_weekly,omitempty"`
	OverlapThreshold     float64  `json:"overlap_threshold,omitempty"`
	AvoidLastPosts       int      `json:"avoid_last_posts,omitempty"`
	ThematicMentions     int      `json:"thematic_mentions,omitempty"`
}

// IntakeConfig controls external content ingestion.
type IntakeConfig struct {
	Enabled            bool     `json:"enabled"`
	Feeds              []string `json:"feeds,omitempty"`
	NewsletterFeeds    []string `json:"newsletter_feeds,omitempty"`
	BrowserHistoryPath string   `json:"browser_history_path,omitempty"`
}

// ProjectConfig describes one project whose description is injected
// into prompts when the project shows up in a day's sessions.
type ProjectConfig struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Path        string   `json:"path,omitempty"`
}

// LLMConfig names the external worker command.
type LLMConfig struct {
	Command        string `json:"command,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// CMSConfig configures the Ghost-style publishing endpoint.
type CMSConfig struct {
	URL      string `json:"url,omitempty"`
	AdminKey string `json:"admin_key,omitempty"`
}

// SchedulerConfig configures the social-scheduler endpoint.
type SchedulerConfig struct {
	URL    string `json:"url,omitempty"`
	APIKey string `json:"api_key,omitempty"`
}

// OutputConfig names the root of all persisted artifacts.
type OutputConfig struct {
	Directory string `json:"directory,omitempty"`
}

// Config holds all pipeline configuration.
type Config struct {
	Output    OutputConfig    `json:"output"`
	Sessions  SessionsConfig  `json:"sessions"`
	Journal   JournalConfig   `json:"journal"`
	Blog      BlogConfig      `json:"blog"`
	Intake    IntakeConfig    `json:"intake"`
	Projects  []ProjectConfig `json:"projects,omitempty"`
	LLM       LLMConfig       `json:"llm"`
	CMS       CMSConfig       `json:"cms"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Timezone  string          `json:"timezone,omitempty"`

	// ConfigDir is where config.json lives; not itself a file key.
	ConfigDir string `json:"-"`
}

var knownSources = map[string]bool{
	"chat-log":    true,
	"rollout":     true,
	"multi-agent": true,
}

var knownPlatforms = map[string]bool{
	"vault":        true,
	"markdown":     true,
	"thread":       true,
	"professional": true,
	"discussion":   true,
	"cms":          true,
	"scheduler":    true,
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("determining home directory: %w", err)
	}
	configDir := filepath.Join(home, ".distill")
	return Config{
		Output: OutputConfig{
			Directory: filepath.Join(home, "distill"),
		},
		Sessions: SessionsConfig{
			Sources:       []string{"chat-log", "rollout", "multi-agent"},
			ChatLogDirs:   []string{filepath.Join(home, ".claude", "projects")},
			RolloutDirs:   []string{filepath.Join(home, ".codex", "sessions")},
			IncludeGlobal: true,
			SinceDays:     7,
		},
		Journal: JournalConfig{
			Style:            "dev-journal",
			TargetWordCount:  500,
			MemoryWindowDays: 14,
		},
		Blog: BlogConfig{
			TargetWordCount:      1200,
			IncludeDiagrams:      true,
			Platforms:            []string{"markdown"},
			MinJournalsForWeekly: 3,
			OverlapThreshold:     0.4,
			AvoidLastPosts:       10,
			ThematicMentions:     3,
		},
		LLM: LLMConfig{
			Command:        "claude -p",
			TimeoutSeconds: 120,
		},
		Timezone:  "Local",
		ConfigDir: configDir,
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller. Only flags
// that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := LoadMinimal()
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, fs)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadMinimal builds a Config from defaults, config file, and env,
// without parsing CLI flags. Use this for subcommands that manage
// their own flag sets.
func LoadMinimal() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("DISTILL_CONFIG_DIR"); v != "" {
		cfg.ConfigDir = v
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.loadEnv()
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.ConfigDir, configFileName)
}

// loadFile overlays the config file onto c. Unknown keys are rejected
// by name rather than silently ignored.
func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parsing %s: %w", c.configPath(), err)
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("DISTILL_OUTPUT_DIR"); v != "" {
		c.Output.Directory = v
	}
	if v := os.Getenv("DISTILL_LLM_COMMAND"); v != "" {
		c.LLM.Command = v
	}
	if v := os.Getenv("DISTILL_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("DISTILL_SINCE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sessions.SinceDays = n
		}
	}
	if v := os.Getenv("DISTILL_CMS_ADMIN_KEY"); v != "" {
		c.CMS.AdminKey = v
	}
	if v := os.Getenv("DISTILL_SCHEDULER_API_KEY"); v != "" {
		c.Scheduler.APIKey = v
	}
}

// RegisterRunFlags registers run-command flags on fs. The caller must
// call fs.Parse before passing fs to Load.
func RegisterRunFlags(fs *flag.FlagSet) {
	fs.String("output", "", "Output directory for generated artifacts")
	fs.String("style", "", "Journal style key")
	fs.Int("since-days", 0, "Session discovery lookback window in days")
	fs.Int("target-words", 0, "Journal target word count")
	fs.String("llm", "", "LLM worker command")
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.Output.Directory = f.Value.String()
		case "style":
			cfg.Journal.Style = f.Value.String()
		case "since-days":
			// flag already validated the int; ignore parse error
			cfg.Sessions.SinceDays, _ = strconv.Atoi(f.Value.String())
		case "target-words":
			cfg.Journal.TargetWordCount, _ = strconv.Atoi(f.Value.String())
		case "llm":
			cfg.LLM.Command = f.Value.String()
		}
	})
}

// Validate rejects values no pipeline stage could act on.
func (c *Config) Validate() error {
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory must not be empty")
	}
	for _, src := range c.Sessions.Sources {
		if !knownSources[src] {
			return fmt.Errorf("unknown session source %q (want one of %s)",
				src, joinKeys(knownSources))
		}
	}
	for _, plat := range c.Blog.Platforms {
		if !knownPlatforms[plat] {
			return fmt.Errorf("unknown platform %q (want one of %s)",
				plat, joinKeys(knownPlatforms))
		}
	}
	if t := c.Blog.OverlapThreshold; t < 0 || t > 1 {
		return fmt.Errorf("blog.overlap_threshold %v out of range [0,1]", t)
	}
	if c.Journal.TargetWordCount < 0 {
		return fmt.Errorf("journal.target_word_count must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	for i, p := range c.Projects {
		if p.Name == "" {
			return fmt.Errorf("projects[%d] missing name", i)
		}
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// LLMTimeout returns the worker timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// Hash fingerprints the effective config. Runs with the same hash and
// the same inputs may skip already-generated artifacts.
func (c *Config) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		// Config is plain data; Marshal cannot fail on it.
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// ProjectByName returns the configured project with the given name.
func (c *Config) ProjectByName(name string) (ProjectConfig, bool) {
	for _, p := range c.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return ProjectConfig{}, false
}

// Save persists the current config to the config file.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.ConfigDir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(c.configPath(), out, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func joinKeys(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
