package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/timeutil"
)

// DiscoverMultiAgentWorkflows finds workflow execution directories
// under a multi-agent state root. Each execution lives at
// state/<mission>-cycle-<n>-execute-<task>/ with signal records and
// an event log. Meeting directories (mtg-*) are not task executions.
func DiscoverMultiAgentWorkflows(root string, since time.Time) ([]string, error) {
	stateDir := filepath.Join(root, "state")
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		return nil, fmt.Errorf("reading state dir %s: %w", stateDir, err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "mtg-") {
			continue
		}
		if !since.IsZero() {
			info, err := e.Info()
			if err != nil || info.ModTime().Before(since) {
				continue
			}
		}
		dirs = append(dirs, filepath.Join(stateDir, e.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// signalRecord is the on-disk shape of one signal YAML file.
type signalRecord struct {
	SignalID  string `yaml:"signal_id"`
	AgentID   string `yaml:"agent_id"`
	Role      string `yaml:"role"`
	Signal    string `yaml:"signal"`
	Message   string `yaml:"message"`
	CreatedAt string `yaml:"created_at"`
}

// ParseMultiAgentWorkflow parses one workflow execution directory
// into a session. Signals are the ordered event stream; timestamps
// are the signal range. Task descriptions, learnings, and quality
// ratings are preserved verbatim.
func ParseMultiAgentWorkflow(dir string) ([]*model.Session, []Diagnostic, error) {
	workflowID := filepath.Base(dir)
	maRoot := filepath.Dir(filepath.Dir(dir)) // state/<wf> -> root
	missionID, cycle, taskName := splitWorkflowID(workflowID)

	signals, diags := parseSignalsDir(filepath.Join(dir, "signals"))
	if len(signals) == 0 {
		var d []Diagnostic
		signals, d = parseEventsLog(filepath.Join(dir, "events.log"))
		diags = append(diags, d...)
	}
	if len(signals) == 0 {
		return nil, diags, nil
	}
	sort.Slice(signals, func(i, j int) bool {
		return signals[i].Timestamp.Before(signals[j].Timestamp)
	})

	outcome := workflowOutcome(signals)
	sess := &model.Session{
		ContentItem: model.ContentItem{
			Source:         model.SourceMultiAgent,
			ContentType:    model.TypeSession,
			SourceNativeID: workflowID,
			Title:          workflowTitle(taskName, workflowID),
			Project:        missionID,
			Metadata: map[string]string{
				"path":    dir,
				"mission": missionID,
				"outcome": outcome,
			},
		},
		StartedAt:       signals[0].Timestamp,
		EndedAt:         signals[len(signals)-1].Timestamp,
		Signals:         signals,
		TaskDescription: taskDescription(maRoot, missionID, taskName),
		Cycle:           cycle,
		QualityRating:   qualityRating(outcome, signals),
		Learnings:       agentLearnings(maRoot),
	}

	for _, s := range signals {
		sess.Outcomes = append(sess.Outcomes, model.Outcome{
			Kind:        model.OutcomeSignal,
			Description: s.Signal + ": " + s.Message,
			Timestamp:   s.Timestamp,
		})
	}
	sess.Body = workflowBody(sess, outcome)
	return []*model.Session{sess}, diags, nil
}

// splitWorkflowID splits "mission-042-cycle-3-execute-fix-auth" into
// its mission id, cycle number, and task name.
func splitWorkflowID(id string) (string, int, string) {
	parts := strings.Split(id, "-")
	var (
		mission string
		cycle   int
		task    string
	)
	for i, p := range parts {
		switch p {
		case "mission":
			if mission == "" && i+1 < len(parts) {
				mission = parts[i+1]
			}
		case "cycle":
			if cycle == 0 && i+1 < len(parts) {
				cycle, _ = strconv.Atoi(parts[i+1])
			}
		case "execute":
			if task == "" && i+1 < len(parts) {
				task = strings.Join(parts[i+1:], "-")
			}
		}
	}
	return mission, cycle, task
}

func parseSignalsDir(dir string) ([]model.AgentSignal, []Diagnostic) {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.yaml"))
	var (
		signals []model.AgentSignal
		diags   []Diagnostic
	)
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			diags = append(diags, Diagnostic{
				Source: model.SourceMultiAgent, Path: path,
				Msg: fmt.Sprintf("reading signal: %v", err),
			})
			continue
		}
		var rec signalRecord
		if err := yaml.Unmarshal(raw, &rec); err != nil {
			diags = append(diags, Diagnostic{
				Source: model.SourceMultiAgent, Path: path,
				Msg: fmt.Sprintf("decoding signal: %v", err),
			})
			continue
		}
		ts := timeutil.ParseTimestamp(rec.CreatedAt)
		if ts.IsZero() {
			diags = append(diags, Diagnostic{
				Source: model.SourceMultiAgent, Path: path,
				Msg: "signal missing created_at",
			})
			continue
		}
		signals = append(signals, model.AgentSignal{
			Timestamp: ts,
			AgentID:   rec.AgentID,
			Role:      rec.Role,
			Signal:    rec.Signal,
			Message:   rec.Message,
		})
	}
	return signals, diags
}

func parseEventsLog(path string) ([]model.AgentSignal, []Diagnostic) {
	f, err := openNoFollow(path)
	if err != nil {
		return nil, nil // absent log is not an error
	}
	defer f.Close()

	var (
		signals []model.AgentSignal
		diags   []Diagnostic
	)
	lr := newLineReader(f, maxLineLen)
	for {
		line, lineNo, ok := lr.next()
		if !ok {
			break
		}
		if !gjson.Valid(line) {
			diags = append(diags, Diagnostic{
				Source: model.SourceMultiAgent, Path: path, Line: lineNo,
				Msg: "invalid JSON",
			})
			continue
		}
		entry := gjson.Parse(line)
		if entry.Get("type").Str != "signal" {
			continue
		}
		ts := timeutil.ParseTimestamp(entry.Get("timestamp").Str)
		if ts.IsZero() {
			continue
		}
		signals = append(signals, model.AgentSignal{
			Timestamp: ts,
			AgentID:   entry.Get("agent_id").Str,
			Role:      entry.Get("role").Str,
			Signal:    entry.Get("signal").Str,
			Message:   entry.Get("message").Str,
		})
	}
	return signals, diags
}

// workflowOutcome reads the signal stream backwards for a terminal
// state, matching the coordinator's own precedence.
func workflowOutcome(signals []model.AgentSignal) string {
	for i := len(signals) - 1; i >= 0; i-- {
		switch signals[i].Signal {
		case "complete":
			return "completed"
		case "approved":
			return "approved"
		case "blocked":
			return "blocked"
		}
	}
	for _, s := range signals {
		if s.Signal == "done" {
			return "done"
		}
	}
	for _, s := range signals {
		if s.Signal == "needs_revision" {
			return "needs_revision"
		}
	}
	return "in_progress"
}

func qualityRating(outcome string, signals []model.AgentSignal) string {
	switch outcome {
	case "completed", "approved":
		for _, s := range signals {
			if s.Signal == "needs_revision" {
				return "good"
			}
		}
		return "excellent"
	case "done":
		return "good"
	case "needs_revision":
		return "fair"
	case "blocked":
		return "poor"
	}
	return "unknown"
}

// taskDescription finds tasks/<mission-dir>/*/<task>.md and returns
// the first paragraph after the heading, frontmatter stripped.
func taskDescription(root, missionID, taskName string) string {
	if missionID == "" || taskName == "" {
		return ""
	}
	words := strings.ReplaceAll(taskName, "-", " ")
	fallback := strings.ToUpper(words[:1]) + words[1:]

	tasksDir := filepath.Join(root, "tasks")
	missionDirs, err := os.ReadDir(tasksDir)
	if err != nil {
		return fallback
	}
	for _, md := range missionDirs {
		if !md.IsDir() || !strings.Contains(md.Name(), missionID) {
			continue
		}
		matches, _ := filepath.Glob(
			filepath.Join(tasksDir, md.Name(), "*", taskName+".md"))
		for _, path := range matches {
			raw, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if desc := firstParagraph(string(raw)); desc != "" {
				return desc
			}
		}
	}
	return fallback
}

// firstParagraph strips YAML frontmatter and returns the first
// paragraph after the first heading.
func firstParagraph(content string) string {
	if strings.HasPrefix(content, "---") {
		if parts := strings.SplitN(content, "---", 3); len(parts) == 3 {
			content = strings.TrimSpace(parts[2])
		}
	}
	var (
		lines     []string
		inSection bool
	)
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if strings.TrimSpace(line) == "" {
			if len(lines) > 0 {
				break
			}
			continue
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	return strings.Join(lines, " ")
}

// agentLearnings flattens knowledge/agents/agent-learnings.yaml into
// "agent: learning" strings, preserved verbatim.
func agentLearnings(root string) []string {
	path := filepath.Join(root, "knowledge", "agents", "agent-learnings.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc struct {
		Agents map[string]struct {
			Learnings []string `yaml:"learnings"`
		} `yaml:"agents"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	agents := make([]string, 0, len(doc.Agents))
	for name := range doc.Agents {
		agents = append(agents, name)
	}
	sort.Strings(agents)

	var out []string
	for _, name := range agents {
		for _, l := range doc.Agents[name].Learnings {
			out = append(out, name+": "+l)
		}
	}
	return out
}

func workflowTitle(taskName, workflowID string) string {
	if taskName != "" {
		return strings.ReplaceAll(taskName, "-", " ")
	}
	return workflowID
}

// workflowBody is a compact plain-text rendition of the execution,
// used as the session transcript for synthesis context.
func workflowBody(sess *model.Session, outcome string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nOutcome: %s\nSignals: %d\n",
		sess.Title, outcome, len(sess.Signals))
	if sess.TaskDescription != "" {
		fmt.Fprintf(&b, "\n%s\n", sess.TaskDescription)
	}
	b.WriteString("\n")
	for _, s := range sess.Signals {
		fmt.Fprintf(&b, "[%s] %s/%s %s: %s\n",
			timeutil.Format(s.Timestamp), s.AgentID, s.Role, s.Signal, s.Message)
	}
	return truncate(b.String(), bodyMaxLen)
}
