// Package parser reads the supported session dialects and external
// feeds, yielding model.Session and model.ContentItem values. Parsers
// never touch persisted pipeline state; the orchestrator commits.
package parser

import (
	"time"

	"github.com/distillpress/distill/internal/model"
)

const (
	initialScanBufSize = 64 * 1024
	maxLineLen         = 10 * 1024 * 1024

	// firstMessageMaxLen caps the stored first user message.
	firstMessageMaxLen = 500
	// toolOutputMaxLen caps stored tool result text.
	toolOutputMaxLen = 500
	// bodyMaxLen caps the assembled session transcript body.
	bodyMaxLen = 40 * 1024
)

// DialectDef describes one supported session dialect: its filesystem
// layout and the functions that discover and parse it.
type DialectDef struct {
	Source      model.Source
	DisplayName string
	EnvVar      string   // env var overriding the root dir
	DefaultDirs []string // roots relative to $HOME or project

	// Discover finds session locations under a root. Locations are
	// files for the chat-log dialect and directories for the rollout
	// and multi-agent dialects. Files older than since are skipped.
	Discover func(root string, since time.Time) ([]string, error)

	// Parse reads one location into sessions. Malformed records are
	// skipped with a diagnostic; a nil error with zero sessions means
	// the location held nothing usable.
	Parse func(location string) ([]*model.Session, []Diagnostic, error)
}

// Dialects lists the supported session dialects. Order is stable and
// used for config and pipeline iteration.
var Dialects = []DialectDef{
	{
		Source:      model.SourceChatLog,
		DisplayName: "Chat log",
		EnvVar:      "DISTILL_CHATLOG_DIR",
		DefaultDirs: []string{".claude/projects"},
		Discover:    DiscoverChatLogSessions,
		Parse:       ParseChatLogFile,
	},
	{
		Source:      model.SourceRollout,
		DisplayName: "Rollout",
		EnvVar:      "DISTILL_ROLLOUT_DIR",
		DefaultDirs: []string{".codex/sessions"},
		Discover:    DiscoverRolloutSessions,
		Parse:       ParseRolloutDir,
	},
	{
		Source:      model.SourceMultiAgent,
		DisplayName: "Multi-agent",
		EnvVar:      "DISTILL_MULTIAGENT_DIR",
		DefaultDirs: []string{".vermas"},
		Discover:    DiscoverMultiAgentWorkflows,
		Parse:       ParseMultiAgentWorkflow,
	},
}

// DialectBySource returns the DialectDef for a source.
func DialectBySource(s model.Source) (DialectDef, bool) {
	for _, def := range Dialects {
		if def.Source == s {
			return def, true
		}
	}
	return DialectDef{}, false
}

// Diagnostic records one soft parse failure: the record or file was
// skipped and the pipeline continued.
type Diagnostic struct {
	Source model.Source
	Path   string
	Line   int // 0 when not line-oriented
	Msg    string
}
