package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/timeutil"
)

// DiscoverRolloutSessions finds rollout session directories under a
// root. A session directory is any directory containing a
// manifest.json. Directories whose manifest is older than since are
// skipped.
func DiscoverRolloutSessions(root string, since time.Time) ([]string, error) {
	var dirs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || info.Name() != "manifest.json" {
			return nil
		}
		if !since.IsZero() && info.ModTime().Before(since) {
			return nil
		}
		dirs = append(dirs, filepath.Dir(path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering under %s: %w", root, err)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ParseRolloutDir parses one rollout session directory: a
// manifest.json plus ordered events-*.jsonl files. Session identity
// comes from the directory name; timestamps come from the manifest,
// falling back to the event range.
func ParseRolloutDir(dir string) ([]*model.Session, []Diagnostic, error) {
	manifestPath := filepath.Join(dir, "manifest.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading manifest %s: %w", manifestPath, err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, []Diagnostic{{
			Source: model.SourceRollout, Path: manifestPath,
			Msg: "invalid manifest JSON",
		}}, nil
	}
	manifest := gjson.ParseBytes(raw)

	sess := &model.Session{
		ContentItem: model.ContentItem{
			Source:         model.SourceRollout,
			ContentType:    model.TypeSession,
			SourceNativeID: filepath.Base(dir),
			Metadata:       map[string]string{"path": dir},
		},
		StartedAt:  timeutil.ParseTimestamp(manifest.Get("started_at").Str),
		EndedAt:    timeutil.ParseTimestamp(manifest.Get("ended_at").Str),
		WorkingDir: manifest.Get("cwd").Str,
	}
	if mdl := manifest.Get("model").Str; mdl != "" {
		sess.Metadata["model"] = mdl
	}
	if title := manifest.Get("title").Str; title != "" {
		sess.Title = truncate(title, 80)
	}

	eventFiles, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl"))
	if err != nil {
		return nil, nil, fmt.Errorf("globbing events in %s: %w", dir, err)
	}
	sort.Strings(eventFiles)

	var (
		diags      []Diagnostic
		transcript strings.Builder
		firstEvent time.Time
		lastEvent  time.Time
		pending    = map[string]int{}
	)
	for _, ef := range eventFiles {
		d := parseRolloutEvents(ef, sess, &transcript, pending, &firstEvent, &lastEvent)
		diags = append(diags, d...)
	}

	// Manifest timestamps win; events fill gaps.
	if sess.StartedAt.IsZero() {
		sess.StartedAt = firstEvent
	}
	if sess.EndedAt.IsZero() {
		sess.EndedAt = lastEvent
	}
	if sess.Title == "" {
		sess.Title = sessionTitle(sess.FirstMessage, sess.SourceNativeID)
	}
	sess.Body = truncate(transcript.String(), bodyMaxLen)
	return []*model.Session{sess}, diags, nil
}

func parseRolloutEvents(
	path string,
	sess *model.Session,
	transcript *strings.Builder,
	pending map[string]int,
	firstEvent, lastEvent *time.Time,
) []Diagnostic {
	f, err := openNoFollow(path)
	if err != nil {
		return []Diagnostic{{
			Source: model.SourceRollout, Path: path,
			Msg: fmt.Sprintf("opening events: %v", err),
		}}
	}
	defer f.Close()

	var diags []Diagnostic
	lr := newLineReader(f, maxLineLen)
	for {
		line, lineNo, ok := lr.next()
		if !ok {
			break
		}
		if !gjson.Valid(line) {
			diags = append(diags, Diagnostic{
				Source: model.SourceRollout, Path: path, Line: lineNo,
				Msg: "invalid JSON",
			})
			continue
		}
		event := gjson.Parse(line)

		ts := timeutil.ParseTimestamp(event.Get("ts").Str)
		if ts.IsZero() {
			ts = timeutil.ParseTimestamp(event.Get("timestamp").Str)
		}
		if !ts.IsZero() {
			if firstEvent.IsZero() || ts.Before(*firstEvent) {
				*firstEvent = ts
			}
			if ts.After(*lastEvent) {
				*lastEvent = ts
			}
		}

		switch event.Get("type").Str {
		case "message":
			role := event.Get("role").Str
			text, calls, results := extractMessageContent(event.Get("content"))
			if text == "" {
				text = event.Get("text").Str
			}
			recordToolBlocks(sess, pending, calls, results)
			if role == "user" && text != "" && !hasSkipPrefix(text) {
				if sess.FirstMessage == "" {
					sess.FirstMessage = truncate(text, firstMessageMaxLen)
				}
				if isQuestion(text) {
					sess.UserQuestions = append(sess.UserQuestions,
						truncate(text, firstMessageMaxLen))
				}
			}
			if text != "" && transcript.Len() < bodyMaxLen {
				fmt.Fprintf(transcript, "%s: %s\n\n", role, text)
			}
		case "tool_call":
			call := model.ToolCall{
				Name:    event.Get("name").Str,
				Path:    toolInputPath(event.Get("input")),
				Command: toolInputCommand(event.Get("input")),
			}
			if call.Name == "" {
				continue
			}
			sess.ToolCalls = append(sess.ToolCalls, call)
			if id := event.Get("id").Str; id != "" {
				pending[id] = len(sess.ToolCalls) - 1
			}
		case "tool_result":
			id := event.Get("id").Str
			if id == "" {
				id = event.Get("tool_use_id").Str
			}
			if i, ok := pending[id]; ok {
				sess.ToolCalls[i].Output = truncate(
					toolResultText(event.Get("output")), toolOutputMaxLen)
				delete(pending, id)
			}
		}
	}
	return diags
}

func recordToolBlocks(
	sess *model.Session,
	pending map[string]int,
	calls []rawToolCall,
	results []rawToolResult,
) {
	for _, c := range calls {
		sess.ToolCalls = append(sess.ToolCalls, c.Call)
		if c.ID != "" {
			pending[c.ID] = len(sess.ToolCalls) - 1
		}
	}
	for _, r := range results {
		if i, ok := pending[r.ID]; ok {
			sess.ToolCalls[i].Output = r.Output
			delete(pending, r.ID)
		}
	}
}
