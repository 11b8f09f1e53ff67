// Package analyzer decorates parsed sessions with derived fields:
// recomputed duration, tool histograms, structured outcomes, derived
// tags, and project attribution. It is pure; identical input yields
// identical output and nothing here reads or writes persisted state.
package analyzer

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/shlex"

	"github.com/distillpress/distill/internal/model"
)

// writeToolNames are tools that create or modify files.
var writeToolNames = map[string]bool{
	"Edit": true, "Write": true, "MultiEdit": true, "NotebookEdit": true,
	"edit_file": true, "create_file": true, "apply_patch": true,
}

// commandToolNames are tools that run shell commands.
var commandToolNames = map[string]bool{
	"Bash": true, "shell_command": true, "shell": true,
}

// errorMarkers flag debugging activity when seen in tool output
// (matched case-insensitively).
var errorMarkers = []string{
	"error", "exception", "traceback", "panic:",
}

// testRunners maps a leading command token to an optional follow-up
// token that must also appear ("" accepts the bare command).
var testRunners = map[string]string{
	"pytest": "", "jest": "", "vitest": "", "rspec": "",
	"go":    "test",
	"cargo": "test",
	"npm":   "test",
	"yarn":  "test",
	"pnpm":  "test",
	"make":  "test",
}

// docExtensions are the file types counted as documentation.
var docExtensions = map[string]bool{
	".md": true, ".txt": true, ".rst": true, ".adoc": true,
}

// Analyze fills the derived fields of a session in a fresh pass.
// projectRoots maps known project names to their filesystem roots
// and drives attribution; it may be nil.
func Analyze(s *model.Session, projectRoots map[string]string) {
	analyzeDuration(s)
	s.ToolUsage = toolHistogram(s.ToolCalls)
	appendToolOutcomes(s)
	applyTags(s)
	if s.Project == "" {
		s.Project = attributeProject(s, projectRoots)
	}
}

func analyzeDuration(s *model.Session) {
	if s.StartedAt.IsZero() || s.EndedAt.IsZero() || s.EndedAt.Before(s.StartedAt) {
		s.DurationSeconds = 0
		s.DurationUnknown = true
		return
	}
	s.DurationSeconds = int64(s.EndedAt.Sub(s.StartedAt).Seconds())
	s.DurationUnknown = false
}

func toolHistogram(calls []model.ToolCall) map[string]int {
	if len(calls) == 0 {
		return nil
	}
	usage := make(map[string]int, len(calls))
	for _, c := range calls {
		usage[c.Name]++
	}
	return usage
}

// appendToolOutcomes turns file edits and command runs into ordered
// outcome events. Signal outcomes from the multi-agent dialect are
// already present and kept in place.
func appendToolOutcomes(s *model.Session) {
	for _, c := range s.ToolCalls {
		switch {
		case writeToolNames[c.Name] && c.Path != "":
			s.Outcomes = append(s.Outcomes, model.Outcome{
				Kind:        model.OutcomeFileModified,
				Description: "modified " + filepath.Base(c.Path),
				Path:        c.Path,
			})
		case commandToolNames[c.Name] && c.Command != "":
			s.Outcomes = append(s.Outcomes, model.Outcome{
				Kind:        model.OutcomeCommandRun,
				Description: "ran " + firstLine(c.Command),
				Command:     c.Command,
			})
		}
	}
}

func applyTags(s *model.Session) {
	s.AddTag("ai-session")
	s.AddTag(string(s.Source))

	var (
		sawError    bool
		sawTest     bool
		sawNewFile  bool
		editedPaths []string
	)
	for _, c := range s.ToolCalls {
		if containsErrorMarker(c.Output) {
			sawError = true
		}
		if commandToolNames[c.Name] && IsTestCommand(c.Command) {
			sawTest = true
		}
		if writeToolNames[c.Name] && c.Path != "" {
			editedPaths = append(editedPaths, c.Path)
			if c.Name == "Write" || c.Name == "create_file" {
				sawNewFile = true
			}
		}
	}

	if sawError {
		s.AddTag("debugging")
	}
	if sawTest {
		s.AddTag("testing")
	}
	if sawNewFile {
		s.AddTag("feature")
	}
	if len(editedPaths) > 0 && allDocs(editedPaths) {
		s.AddTag("documentation")
	}
}

func containsErrorMarker(output string) bool {
	if output == "" {
		return false
	}
	lower := strings.ToLower(output)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	// Test-runner failure lines are uppercase by convention.
	return strings.Contains(output, "FAIL")
}

// IsTestCommand reports whether a shell command invokes a test
// runner. The command is tokenized shell-style so quoting and
// chained arguments don't produce false matches on substrings.
func IsTestCommand(command string) bool {
	if command == "" {
		return false
	}
	tokens, err := shlex.Split(command)
	if err != nil || len(tokens) == 0 {
		return false
	}
	for i, tok := range tokens {
		base := filepath.Base(tok)
		follow, ok := testRunners[base]
		if !ok {
			continue
		}
		if follow == "" {
			return true
		}
		for _, rest := range tokens[i+1:] {
			if rest == follow || strings.HasPrefix(rest, follow+":") {
				return true
			}
		}
	}
	return false
}

func allDocs(paths []string) bool {
	for _, p := range paths {
		if !docExtensions[strings.ToLower(filepath.Ext(p))] {
			return false
		}
	}
	return true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// attributeProject implements the attribution chain: the longest
// known project root that prefixes a modified file, then the working
// directory basename, then the unassigned marker.
func attributeProject(s *model.Session, projectRoots map[string]string) string {
	if name := projectByRoots(s, projectRoots); name != "" {
		return name
	}
	if s.WorkingDir != "" {
		return filepath.Base(s.WorkingDir)
	}
	return model.ProjectUnassigned
}

func projectByRoots(s *model.Session, projectRoots map[string]string) string {
	if len(projectRoots) == 0 {
		return ""
	}
	// Deterministic iteration: longest root first, then name.
	type root struct{ name, path string }
	roots := make([]root, 0, len(projectRoots))
	for name, path := range projectRoots {
		if path != "" {
			roots = append(roots, root{name, filepath.Clean(path)})
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		if len(roots[i].path) != len(roots[j].path) {
			return len(roots[i].path) > len(roots[j].path)
		}
		return roots[i].name < roots[j].name
	})

	var paths []string
	for _, c := range s.ToolCalls {
		if writeToolNames[c.Name] && c.Path != "" {
			paths = append(paths, c.Path)
		}
	}
	if s.WorkingDir != "" {
		paths = append(paths, s.WorkingDir)
	}
	for _, r := range roots {
		for _, p := range paths {
			if p == r.path || strings.HasPrefix(p, r.path+string(filepath.Separator)) {
				return r.name
			}
		}
	}
	return ""
}
