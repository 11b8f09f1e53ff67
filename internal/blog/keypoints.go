package blog

import (
	"regexp"
	"strings"

	"github.com/distillpress/distill/internal/model"
)

// DefaultOverlapThreshold is the fraction of a draft's key points
// that may coincide with the avoid list before a re-prompt fires.
const DefaultOverlapThreshold = 0.40

var quotedSnippetRe = regexp.MustCompile(`"([^"\n]{8,80})"`)

// ExtractKeyPoints pulls a post's own key points and concrete
// examples: the first sentence of every non-title heading section,
// plus short quoted snippets from the body.
func ExtractKeyPoints(body string) (keyPoints, examples []string) {
	sections := splitSections(body)
	for _, sec := range sections {
		if s := firstSentence(sec); s != "" {
			keyPoints = append(keyPoints, s)
		}
	}
	for _, m := range quotedSnippetRe.FindAllStringSubmatch(body, -1) {
		examples = append(examples, m[1])
	}
	return model.UniqueStrings(keyPoints), model.UniqueStrings(examples)
}

// splitSections returns the prose under each non-title heading. The
// leading H1 and any preamble before the first subheading are
// excluded.
func splitSections(body string) []string {
	var sections []string
	var current []string
	inSection := false
	for _, line := range strings.Split(body, "\n") {
		if isHeading(line) {
			if isTitle(line) {
				inSection = false
				continue
			}
			if inSection && len(current) > 0 {
				sections = append(sections, strings.Join(current, "\n"))
			}
			current = current[:0]
			inSection = true
			continue
		}
		if inSection {
			current = append(current, line)
		}
	}
	if inSection && len(current) > 0 {
		sections = append(sections, strings.Join(current, "\n"))
	}
	return sections
}

func isHeading(line string) bool {
	trimmed := strings.TrimLeft(line, "#")
	return strings.HasPrefix(line, "#") && strings.HasPrefix(trimmed, " ")
}

func isTitle(line string) bool {
	return strings.HasPrefix(line, "# ")
}

// firstSentence returns the first sentence of the first non-empty
// paragraph in text.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if i := strings.Index(text, "\n\n"); i >= 0 {
		text = text[:i]
	}
	text = strings.Join(strings.Fields(text), " ")
	for i := 0; i < len(text); i++ {
		if text[i] != '.' && text[i] != '!' && text[i] != '?' {
			continue
		}
		// Sentence ends at punctuation followed by space or EOL;
		// skips decimals and version numbers.
		if i+1 == len(text) || text[i+1] == ' ' {
			return text[:i+1]
		}
	}
	return text
}

// Overlap computes which of the candidate points already appear on
// the avoid list, using case-insensitive containment either way.
func Overlap(candidates, avoid []string) (overlapping []string, fraction float64) {
	if len(candidates) == 0 {
		return nil, 0
	}
	normAvoid := make([]string, len(avoid))
	for i, a := range avoid {
		normAvoid[i] = normalizePoint(a)
	}
	for _, c := range candidates {
		nc := normalizePoint(c)
		if nc == "" {
			continue
		}
		for _, na := range normAvoid {
			if na == "" {
				continue
			}
			if strings.Contains(nc, na) || strings.Contains(na, nc) {
				overlapping = append(overlapping, c)
				break
			}
		}
	}
	return overlapping, float64(len(overlapping)) / float64(len(candidates))
}

var pointNormalizer = strings.NewReplacer(`"`, "", "'", "", "`", "")

func normalizePoint(s string) string {
	s = pointNormalizer.Replace(strings.ToLower(s))
	return strings.Trim(s, ".!? ")
}
