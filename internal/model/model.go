// Package model defines the canonical data types shared across the
// distill pipeline: content items, sessions, journal entries, and
// blog posts. Parsers produce these values, the analyzer decorates
// them, and the synthesizers consume them. Nothing here touches disk.
package model

import (
	"sort"
	"time"
)

// Source identifies where a content item was ingested from.
type Source string

const (
	SourceChatLog    Source = "chat-log"
	SourceRollout    Source = "rollout"
	SourceMultiAgent Source = "multi-agent"
	SourceRSS        Source = "rss"
	SourceBrowser    Source = "browser"
	SourceSubstack   Source = "substack"
	SourceGmail      Source = "gmail"
	SourceLinkedIn   Source = "linkedin"
	SourceTwitter    Source = "twitter"
	SourceReddit     Source = "reddit"
	SourceYouTube    Source = "youtube"
	SourceSeed       Source = "seed"
)

// SessionSources lists the sources that produce Session values
// rather than plain ContentItems.
var SessionSources = []Source{
	SourceChatLog, SourceRollout, SourceMultiAgent,
}

// ContentType categorizes the shape of a content item.
type ContentType string

const (
	TypeSession ContentType = "session"
	TypeArticle ContentType = "article"
	TypePost    ContentType = "post"
	TypeEmail   ContentType = "email"
	TypeVideo   ContentType = "video"
	TypeNote    ContentType = "note"
)

// ContentItem is the canonical ingestion record. Every parser emits
// these (or the Session specialization). Items are immutable once
// created; derived fields are added by the analyzer in a separate
// pass, never in place.
type ContentItem struct {
	ID             string            `json:"id"`
	Source         Source            `json:"source"`
	ContentType    ContentType       `json:"content_type"`
	SourceNativeID string            `json:"source_native_id,omitempty"`
	Title          string            `json:"title"`
	Body           string            `json:"body,omitempty"`
	Excerpt        string            `json:"excerpt,omitempty"`
	URL            string            `json:"url,omitempty"`
	Author         string            `json:"author,omitempty"`
	SiteName       string            `json:"site_name,omitempty"`
	PublishedAt    time.Time         `json:"published_at,omitzero"`
	IngestedAt     time.Time         `json:"ingested_at"`
	Tags           []string          `json:"tags,omitempty"`
	Topics         []string          `json:"topics,omitempty"`
	Project        string            `json:"project,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// AddTag inserts a tag keeping the set sorted and unique.
func (c *ContentItem) AddTag(tag string) {
	if tag == "" {
		return
	}
	for _, t := range c.Tags {
		if t == tag {
			return
		}
	}
	c.Tags = append(c.Tags, tag)
	sort.Strings(c.Tags)
}

// OutcomeKind classifies a structured session event.
type OutcomeKind string

const (
	OutcomeFileModified OutcomeKind = "file-modified"
	OutcomeCommandRun   OutcomeKind = "command-run"
	OutcomeSignal       OutcomeKind = "signal"
)

// Outcome is one structured event extracted from a session.
type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	Description string      `json:"description"`
	Path        string      `json:"path,omitempty"`
	Command     string      `json:"command,omitempty"`
	Timestamp   time.Time   `json:"timestamp,omitzero"`
}

// AgentSignal is one ordered coordination event from the
// multi-agent dialect.
type AgentSignal struct {
	Timestamp time.Time `json:"ts"`
	AgentID   string    `json:"agent_id"`
	Role      string    `json:"role"`
	Signal    string    `json:"signal"`
	Message   string    `json:"message,omitempty"`
}

// ToolCall is a raw tool invocation as the parser saw it. The
// analyzer derives histograms and outcomes from these; parsers
// never interpret them.
type ToolCall struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Command string `json:"command,omitempty"`
	Output  string `json:"output,omitempty"` // truncated tool result
}

// ProjectUnassigned marks sessions no project could be attributed to.
const ProjectUnassigned = "(unassigned)"

// Session specializes ContentItem for coding-assistant sessions.
type Session struct {
	ContentItem

	StartedAt       time.Time      `json:"started_at"`
	EndedAt         time.Time      `json:"ended_at"`
	DurationSeconds int64          `json:"duration_seconds"`
	DurationUnknown bool           `json:"duration_unknown,omitempty"`
	WorkingDir      string         `json:"working_dir,omitempty"`
	FirstMessage    string         `json:"first_message,omitempty"`
	UserQuestions   []string       `json:"user_questions,omitempty"`
	ToolCalls       []ToolCall     `json:"tool_calls,omitempty"`
	ToolUsage       map[string]int `json:"tool_usage,omitempty"`
	Outcomes        []Outcome      `json:"outcomes,omitempty"`
	Signals         []AgentSignal  `json:"agent_signals,omitempty"`
	Learnings       []string       `json:"learnings,omitempty"`

	// Multi-agent dialect metadata, preserved verbatim.
	TaskDescription string `json:"task_description,omitempty"`
	Cycle           int    `json:"cycle,omitempty"`
	QualityRating   string `json:"quality_rating,omitempty"`
}

// DurationMinutes returns the session duration in whole minutes,
// 0 when unknown.
func (s *Session) DurationMinutes() int {
	if s.DurationUnknown {
		return 0
	}
	return int(s.DurationSeconds / 60)
}

// JournalEntry is one synthesized day, keyed by (date, style).
type JournalEntry struct {
	Date             time.Time `json:"date"`
	Style            string    `json:"style"`
	WordCount        int       `json:"word_count"`
	Projects         []string  `json:"projects,omitempty"`
	SessionsCount    int       `json:"sessions_count"`
	DurationMinutes  int       `json:"duration_minutes"`
	Tags             []string  `json:"tags,omitempty"`
	Body             string    `json:"body"`
	SourceSessionIDs []string  `json:"source_session_ids"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// PostType distinguishes blog post families.
type PostType string

const (
	PostWeekly      PostType = "weekly"
	PostThematic    PostType = "thematic"
	PostReadingList PostType = "reading-list"
)

// BlogPost is one synthesized post, keyed by slug.
type BlogPost struct {
	Slug               string      `json:"slug"`
	PostType           PostType    `json:"post_type"`
	Date               time.Time   `json:"date"`
	Title              string      `json:"title"`
	Body               string      `json:"body"`
	Themes             []string    `json:"themes,omitempty"`
	Projects           []string    `json:"projects,omitempty"`
	SourceDates        []time.Time `json:"source_dates,omitempty"`
	KeyPoints          []string    `json:"key_points,omitempty"`
	ExamplesUsed       []string    `json:"examples_used,omitempty"`
	PlatformsPublished []string    `json:"platforms_published,omitempty"`
	RepetitionWarning  bool        `json:"repetition_warning,omitempty"`
}

// UniqueStrings returns a new slice with duplicates removed,
// preserving first-seen order.
func UniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
