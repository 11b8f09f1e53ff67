package blog

import (
	"fmt"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/timeutil"
)

// promptInputs carries the shared trailing blocks every post prompt
// gets: blog memory (previous posts + avoid list) and editorial
// direction.
type promptInputs struct {
	TargetWords int
	MemoryBlock string // store.BlogMemory.RenderForPrompt
	NotesBlock  string // store.NoteStore.RenderForPrompt
}

func writeCommonHeader(b *strings.Builder, in promptInputs) {
	fmt.Fprintf(b, "Produce one markdown document starting with a single "+
		"top-level heading (the post title). Target length: about %d "+
		"words. Output only the document, no preamble.\n\n", in.TargetWords)
}

func writeCommonFooter(b *strings.Builder, in promptInputs) {
	if in.MemoryBlock != "" {
		b.WriteString(in.MemoryBlock)
		b.WriteString("\n")
	}
	if in.NotesBlock != "" {
		b.WriteString(in.NotesBlock)
		b.WriteString("\n")
	}
}

// BuildWeeklyPrompt renders the prompt for one week's retrospective.
func BuildWeeklyPrompt(wc *WeeklyContext, in promptInputs) string {
	var b strings.Builder
	b.WriteString("You are writing a weekly engineering retrospective " +
		"blog post drawn from the journal entries below. Find the " +
		"through-line of the week; do not summarize day by day. Write " +
		"for other practitioners, first person, concrete.\n\n")
	writeCommonHeader(&b, in)

	fmt.Fprintf(&b, "## Week: %s (%s to %s)\n\n", wc.Week, wc.Start, wc.End)
	if len(wc.Projects) > 0 {
		fmt.Fprintf(&b, "Projects: %s\n\n", strings.Join(wc.Projects, ", "))
	}
	if len(wc.RecurringTopics) > 0 {
		fmt.Fprintf(&b, "Recurring topics: %s\n\n", strings.Join(wc.RecurringTopics, ", "))
	}
	writeBullets(&b, "Decisions made this week", wc.Decisions)
	writeBullets(&b, "Open questions", wc.OpenQuestions)

	b.WriteString("## Journal Entries\n\n")
	for _, j := range wc.Journals {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", timeutil.DateKey(j.Date, time.UTC), j.Body)
	}
	writeCommonFooter(&b, in)
	return b.String()
}

// BuildThematicPrompt renders the prompt for one recurring-theme deep
// dive.
func BuildThematicPrompt(tc *ThematicContext, in promptInputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are writing a blog post that goes deep on one "+
		"recurring theme from an engineering journal: %q. Trace how the "+
		"theme evolved across the excerpts below and land on what was "+
		"learned. Write for other practitioners, first person, "+
		"concrete.\n\n", tc.Theme)
	writeCommonHeader(&b, in)

	fmt.Fprintf(&b, "## Theme: %s\n\n", tc.Theme)
	if tc.Thread.Summary != "" {
		fmt.Fprintf(&b, "Current summary: %s\n", tc.Thread.Summary)
	}
	fmt.Fprintf(&b, "Mentioned %d times between %s and %s.\n\n",
		tc.Thread.MentionCount, tc.Thread.FirstSeen, tc.Thread.LastSeen)

	if len(tc.Excerpts) > 0 {
		b.WriteString("## Journal Excerpts\n\n")
		for _, ex := range tc.Excerpts {
			fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(ex, "\n", "\n> "))
		}
	}
	if len(tc.Entities) > 0 {
		b.WriteString("## Related Entities\n\n")
		for _, e := range tc.Entities {
			fmt.Fprintf(&b, "- %s (%s, %dx)\n", e.Name, e.EntityType, e.MentionCount)
		}
		b.WriteString("\n")
	}
	writeCommonFooter(&b, in)
	return b.String()
}

// BuildOverlapRetryPrompt lists the already-covered items a draft
// leaned on and asks for replacement evidence.
func BuildOverlapRetryPrompt(draft string, overlapping []string) string {
	var b strings.Builder
	b.WriteString("The draft below reuses material from previous posts. " +
		"The following points and examples are already covered; replace " +
		"each with different evidence from the source journals, keeping " +
		"the structure and voice. Output only the revised document.\n\n")
	b.WriteString("Already covered:\n")
	for _, item := range overlapping {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	b.WriteString("\n---\n\n")
	b.WriteString(draft)
	return b.String()
}

func writeBullets(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", label)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}
