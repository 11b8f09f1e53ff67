package journal

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// MemoryExtract is the structured capture pulled out of a finished
// journal entry. The pipeline folds it into unified memory after the
// entry is committed; the entry text itself never changes.
type MemoryExtract struct {
	Themes        []string
	Insights      []string
	Decisions     []string
	OpenQuestions []string
	Threads       map[string]string // theme -> one-line summary
}

// BuildExtractPrompt asks the model to distill a journal entry into
// strict JSON for the memory update.
func BuildExtractPrompt(date, body string) string {
	var b strings.Builder
	b.WriteString("Extract structured memory from the journal entry " +
		"below. Respond with ONLY a JSON object, no code fences, no " +
		"commentary, with exactly these keys:\n")
	b.WriteString(`{"themes": ["..."], "insights": ["..."], ` +
		`"decisions": ["..."], "open_questions": ["..."], ` +
		`"threads": {"theme name": "one-line summary"}}` + "\n\n")
	b.WriteString("Themes are short recurring-topic names (2-4 words, " +
		"lowercase). Insights, decisions, and open questions are " +
		"complete sentences. Keep each list to at most 5 items.\n\n")
	fmt.Fprintf(&b, "## Journal entry for %s\n\n%s\n", date, body)
	return b.String()
}

// ParseExtract decodes the model's JSON response, tolerating stray
// code fences. An unparseable response returns an error so the caller
// can retry or skip the memory update.
func ParseExtract(raw string) (*MemoryExtract, error) {
	text := stripFences(raw)
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("memory extract is not valid JSON")
	}
	doc := gjson.Parse(text)
	if !doc.IsObject() {
		return nil, fmt.Errorf("memory extract is not a JSON object")
	}
	ex := &MemoryExtract{Threads: map[string]string{}}
	ex.Themes = stringList(doc.Get("themes"))
	ex.Insights = stringList(doc.Get("insights"))
	ex.Decisions = stringList(doc.Get("decisions"))
	ex.OpenQuestions = stringList(doc.Get("open_questions"))
	doc.Get("threads").ForEach(func(key, value gjson.Result) bool {
		name := strings.TrimSpace(key.String())
		if name != "" {
			ex.Threads[name] = strings.TrimSpace(value.String())
		}
		return true
	})
	return ex, nil
}

func stringList(res gjson.Result) []string {
	var out []string
	for _, v := range res.Array() {
		s := strings.TrimSpace(v.String())
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stripFences removes a wrapping markdown code fence, if present, and
// trims to the outermost JSON object.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
