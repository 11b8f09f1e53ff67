// Package journal synthesizes one prose entry per day from the
// analyzed sessions, using an LLM worker for the narrative and a
// second structured call to extract memory updates.
package journal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/store"
)

const (
	maxSessionsInPrompt = 50
	maxQuestionsPerSess = 5
	maxLearningsPerSess = 8
	maxOutcomesPerSess  = 20
)

// ProjectInfo describes one configured project, injected into prompts
// when the project appears in the day's sessions.
type ProjectInfo struct {
	Name        string
	Description string
	URL         string
	Tags        []string
}

// DailyContext carries everything one day's synthesis needs. The
// pipeline assembles it; the synthesizer only reads it.
type DailyContext struct {
	Date        string // ISO date
	Style       string
	TargetWords int
	Sessions    []*model.Session
	MemoryBlock string // memory.RenderForPrompt output
	NotesBlock  string // store.NoteStore.RenderForPrompt output
	Seeds       []store.Seed
	Projects    []ProjectInfo
	Digest      string // external-content digest for the day, if any
}

// SessionIDs returns the contributing session ids, sorted.
func (c *DailyContext) SessionIDs() []string {
	ids := make([]string, 0, len(c.Sessions))
	for _, s := range c.Sessions {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

// ProjectNames returns the distinct projects touched, sorted.
func (c *DailyContext) ProjectNames() []string {
	var names []string
	for _, s := range c.Sessions {
		if s.Project != "" {
			names = append(names, s.Project)
		}
	}
	names = model.UniqueStrings(names)
	sort.Strings(names)
	return names
}

// TotalMinutes sums known session durations.
func (c *DailyContext) TotalMinutes() int {
	total := 0
	for _, s := range c.Sessions {
		total += s.DurationMinutes()
	}
	return total
}

// Tags unions the derived tags across sessions, sorted.
func (c *DailyContext) Tags() []string {
	var tags []string
	for _, s := range c.Sessions {
		tags = append(tags, s.Tags...)
	}
	tags = model.UniqueStrings(tags)
	sort.Strings(tags)
	return tags
}

// renderSessions writes the per-session summary block.
func renderSessions(b *strings.Builder, sessions []*model.Session) {
	shown := sessions
	truncated := len(shown) > maxSessionsInPrompt
	if truncated {
		shown = shown[:maxSessionsInPrompt]
	}
	b.WriteString("## Sessions\n\n")
	if len(shown) == 0 {
		b.WriteString("No sessions recorded for this date.\n\n")
		return
	}
	for i, s := range shown {
		fmt.Fprintf(b, "### Session %d: %s\n", i+1, s.Title)
		if s.Project != "" {
			fmt.Fprintf(b, "- Project: %s\n", s.Project)
		}
		if s.DurationUnknown {
			b.WriteString("- Duration: unknown\n")
		} else {
			fmt.Fprintf(b, "- Duration: %d min\n", s.DurationMinutes())
		}
		if len(s.ToolUsage) > 0 {
			fmt.Fprintf(b, "- Tools: %s\n", renderToolUsage(s.ToolUsage))
		}
		if s.FirstMessage != "" {
			fmt.Fprintf(b, "- Opening request: %s\n", s.FirstMessage)
		}
		writeList(b, "Questions asked", s.UserQuestions, maxQuestionsPerSess)
		writeOutcomes(b, s.Outcomes)
		writeList(b, "Learnings", s.Learnings, maxLearningsPerSess)
		if s.TaskDescription != "" {
			fmt.Fprintf(b, "- Task: %s\n", s.TaskDescription)
		}
		if s.QualityRating != "" {
			fmt.Fprintf(b, "- Outcome quality: %s\n", s.QualityRating)
		}
		b.WriteString("\n")
	}
	if truncated {
		fmt.Fprintf(b, "(Showing %d of %d sessions; remaining omitted)\n\n",
			maxSessionsInPrompt, len(sessions))
	}
}

func renderToolUsage(usage map[string]int) string {
	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s×%d", name, usage[name]))
	}
	return strings.Join(parts, ", ")
}

func writeOutcomes(b *strings.Builder, outcomes []model.Outcome) {
	if len(outcomes) == 0 {
		return
	}
	shown := outcomes
	if len(shown) > maxOutcomesPerSess {
		shown = shown[:maxOutcomesPerSess]
	}
	b.WriteString("- Outcomes:\n")
	for _, o := range shown {
		fmt.Fprintf(b, "  - %s\n", o.Description)
	}
}

func writeList(b *strings.Builder, label string, items []string, max int) {
	if len(items) == 0 {
		return
	}
	if len(items) > max {
		items = items[:max]
	}
	fmt.Fprintf(b, "- %s:\n", label)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}
