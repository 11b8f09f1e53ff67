package blog

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	tokenRe        = regexp.MustCompile(`[A-Za-z][\w-]*`)
	numberedStepRe = regexp.MustCompile(`(?m)^\d+\.\s+\S`)
)

// MaybeInsertDiagram appends a mermaid flowchart when the body shows
// structural cues (component arrows, numbered steps) and carries no
// diagram yet. Bodies without cues come back unchanged.
func MaybeInsertDiagram(body string) string {
	if strings.Contains(body, "```mermaid") {
		return body
	}
	pairs := arrowPairs(body)
	if len(pairs) == 0 && !numberedStepRe.MatchString(body) {
		return body
	}

	var b strings.Builder
	b.WriteString("\n\n```mermaid\nflowchart LR\n")
	if len(pairs) > 0 {
		ids := map[string]string{}
		for _, p := range pairs {
			fmt.Fprintf(&b, "    %s --> %s\n",
				nodeRef(ids, p[0]), nodeRef(ids, p[1]))
		}
	} else {
		steps := numberedSteps(body)
		for i, step := range steps {
			if i > 0 {
				fmt.Fprintf(&b, "    s%d --> s%d\n", i, i+1)
			}
			fmt.Fprintf(&b, "    s%d[%q]\n", i+1, step)
		}
	}
	b.WriteString("```\n")
	return strings.TrimRight(body, "\n") + b.String()
}

// arrowPairs extracts deduplicated (from, to) component pairs from
// lines with arrow chains like "parser -> normalizer -> store".
func arrowPairs(body string) [][2]string {
	var pairs [][2]string
	seen := map[string]bool{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.ReplaceAll(line, "→", "->")
		if !strings.Contains(line, "->") {
			continue
		}
		segments := strings.Split(line, "->")
		for i := 0; i+1 < len(segments); i++ {
			from := lastToken(segments[i])
			to := firstToken(segments[i+1])
			if from == "" || to == "" {
				continue
			}
			key := from + "\x00" + to
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, [2]string{from, to})
		}
	}
	return pairs
}

func lastToken(s string) string {
	tokens := tokenRe.FindAllString(s, -1)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}

func firstToken(s string) string {
	return tokenRe.FindString(s)
}

// nodeRef returns a stable mermaid node id with a label on first use.
func nodeRef(ids map[string]string, label string) string {
	if id, ok := ids[label]; ok {
		return id
	}
	id := fmt.Sprintf("n%d", len(ids)+1)
	ids[label] = id
	return fmt.Sprintf("%s[%q]", id, label)
}

// numberedSteps pulls the text of up to eight leading numbered list
// items.
func numberedSteps(body string) []string {
	var steps []string
	for _, line := range strings.Split(body, "\n") {
		if !numberedStepRe.MatchString(line) {
			continue
		}
		_, text, _ := strings.Cut(line, ". ")
		text = strings.TrimSpace(text)
		if len(text) > 40 {
			text = text[:40]
		}
		steps = append(steps, text)
		if len(steps) == 8 {
			break
		}
	}
	return steps
}
