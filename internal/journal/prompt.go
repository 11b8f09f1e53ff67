package journal

import (
	"fmt"
	"strings"
)

// styleInstructions maps journal style keys to their system
// instruction. Unknown styles fall back to dev-journal.
var styleInstructions = map[string]string{
	"dev-journal": "You are writing a developer's daily journal entry. " +
		"Narrate what was worked on, what was decided, what broke and " +
		"how it was fixed. Write in first person, past tense, plain " +
		"prose. Group related sessions; do not list them mechanically.",
	"technical": "You are writing a technical log of a day's " +
		"engineering work. Be precise about files, commands, and " +
		"failures. Prefer concrete detail over narrative color.",
	"reflective": "You are writing a reflective journal of a day's " +
		"work. Focus on what was learned, what remains open, and how " +
		"today connects to the ongoing threads of work.",
}

func styleInstruction(style string) string {
	if inst, ok := styleInstructions[style]; ok {
		return inst
	}
	return styleInstructions["dev-journal"]
}

// BuildPrompt renders the full journal prompt for a day.
func BuildPrompt(c *DailyContext) string {
	var b strings.Builder
	b.WriteString(styleInstruction(c.Style))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Produce one markdown document starting with a single "+
		"top-level heading. Target length: about %d words. Output only "+
		"the document, no preamble or commentary.\n\n", c.TargetWords)
	fmt.Fprintf(&b, "## Date: %s\n\n", c.Date)

	if len(c.Projects) > 0 {
		b.WriteString("## Projects\n\n")
		for _, p := range c.Projects {
			fmt.Fprintf(&b, "- **%s**: %s\n", p.Name, p.Description)
			if p.URL != "" {
				fmt.Fprintf(&b, "  (%s)\n", p.URL)
			}
		}
		b.WriteString("\n")
	}

	renderSessions(&b, c.Sessions)

	if c.Digest != "" {
		b.WriteString("## Reading and External Content\n\n")
		b.WriteString(c.Digest)
		b.WriteString("\n\n")
	}
	if c.MemoryBlock != "" {
		b.WriteString(c.MemoryBlock)
		b.WriteString("\n")
	}
	if c.NotesBlock != "" {
		b.WriteString(c.NotesBlock)
		b.WriteString("\n")
	}
	if len(c.Seeds) > 0 {
		b.WriteString("## Idea Seeds\n")
		b.WriteString("Work these in naturally where they fit; skip any " +
			"that do not:\n\n")
		for _, seed := range c.Seeds {
			fmt.Fprintf(&b, "- %s\n", seed.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// BuildLengthRetryPrompt asks for a length-corrected rewrite when the
// first pass landed outside the acceptable band.
func BuildLengthRetryPrompt(c *DailyContext, draft string, gotWords int) string {
	var b strings.Builder
	direction := "longer"
	if gotWords > c.TargetWords {
		direction = "shorter"
	}
	fmt.Fprintf(&b, "The draft below is %d words; the target is about %d. "+
		"Rewrite it %s while keeping the same content, structure, and "+
		"voice. Output only the revised document.\n\n",
		gotWords, c.TargetWords, direction)
	b.WriteString("---\n\n")
	b.WriteString(draft)
	return b.String()
}
