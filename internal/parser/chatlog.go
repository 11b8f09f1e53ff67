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

// skipContentPrefixes marks system-injected user messages that are
// not real user input and must not count as first message or
// questions.
var skipContentPrefixes = []string{
	"<command-name>",
	"<local-command-stdout>",
	"<system-reminder>",
	"Caveat: The messages below",
}

// DiscoverChatLogSessions walks a chat-log root (one NDJSON file per
// session, nested arbitrarily) and returns session file paths. Files
// modified before since are skipped; a zero since keeps everything.
func DiscoverChatLogSessions(root string, since time.Time) ([]string, error) {
	return discoverFiles(root, since, func(name string) bool {
		return strings.HasSuffix(name, ".jsonl")
	})
}

// ParseChatLogFile parses one chat-log session file. The session
// boundary is the file; start and end times come from the first and
// last message timestamps. Malformed lines are skipped with a
// diagnostic.
func ParseChatLogFile(path string) ([]*model.Session, []Diagnostic, error) {
	f, err := openNoFollow(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening chat log %s: %w", path, err)
	}
	defer f.Close()

	var (
		diags      []Diagnostic
		sess       = newChatLogSession(path)
		transcript strings.Builder
		pending    = map[string]int{} // tool_use id -> index in ToolCalls
		seenAny    bool
	)

	lr := newLineReader(f, maxLineLen)
	for {
		line, lineNo, ok := lr.next()
		if !ok {
			break
		}
		if !gjson.Valid(line) {
			diags = append(diags, Diagnostic{
				Source: model.SourceChatLog, Path: path, Line: lineNo,
				Msg: "invalid JSON",
			})
			continue
		}
		rec := gjson.Parse(line)

		if id := rec.Get("sessionId").Str; id != "" && sess.SourceNativeID == "" {
			sess.SourceNativeID = id
		}
		if cwd := rec.Get("cwd").Str; cwd != "" && sess.WorkingDir == "" {
			sess.WorkingDir = cwd
		}
		if mdl := rec.Get("message.model").Str; mdl != "" {
			sess.Metadata["model"] = mdl
		}

		role := rec.Get("message.role").Str
		if role == "" {
			role = rec.Get("type").Str
		}
		if role != "user" && role != "assistant" {
			continue
		}

		ts := timeutil.ParseTimestamp(rec.Get("timestamp").Str)
		if !ts.IsZero() {
			if sess.StartedAt.IsZero() || ts.Before(sess.StartedAt) {
				sess.StartedAt = ts
			}
			if ts.After(sess.EndedAt) {
				sess.EndedAt = ts
			}
		}

		text, calls, results := extractMessageContent(rec.Get("message.content"))
		recordToolBlocks(sess, pending, calls, results)

		if role == "user" {
			if rec.Get("isMeta").Bool() || rec.Get("isCompactSummary").Bool() {
				continue
			}
			if text == "" || hasSkipPrefix(text) || len(results) > 0 {
				continue
			}
			if sess.FirstMessage == "" {
				sess.FirstMessage = truncate(text, firstMessageMaxLen)
			}
			if isQuestion(text) {
				sess.UserQuestions = append(sess.UserQuestions, truncate(text, firstMessageMaxLen))
			}
		}

		if text != "" && transcript.Len() < bodyMaxLen {
			fmt.Fprintf(&transcript, "%s: %s\n\n", role, text)
		}
		seenAny = true
	}

	if !seenAny {
		return nil, diags, nil
	}

	if sess.SourceNativeID == "" {
		sess.SourceNativeID = strings.TrimSuffix(filepath.Base(path), ".jsonl")
	}
	sess.Title = sessionTitle(sess.FirstMessage, sess.SourceNativeID)
	sess.Body = truncate(transcript.String(), bodyMaxLen)
	return []*model.Session{sess}, diags, nil
}

func newChatLogSession(path string) *model.Session {
	return &model.Session{
		ContentItem: model.ContentItem{
			Source:      model.SourceChatLog,
			ContentType: model.TypeSession,
			Metadata:    map[string]string{"path": path},
		},
	}
}

func hasSkipPrefix(text string) bool {
	for _, p := range skipContentPrefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}

// sessionTitle derives a short title from the first user message,
// falling back to the native id.
func sessionTitle(firstMessage, nativeID string) string {
	title := strings.TrimSpace(firstMessage)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if title == "" {
		return "Session " + nativeID
	}
	return truncate(title, 80)
}

// discoverFiles walks root and returns matching files newer than
// since, sorted by path for deterministic iteration.
func discoverFiles(root string, since time.Time, match func(string) bool) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !match(info.Name()) {
			return nil
		}
		if !since.IsZero() && info.ModTime().Before(since) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering under %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
