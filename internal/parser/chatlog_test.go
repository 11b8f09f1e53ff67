package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/testjsonl"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseChatLogFile(t *testing.T) {
	dir := t.TempDir()
	content := testjsonl.Lines(
		testjsonl.ChatUserWithSessionIDJSON(
			"Fix the login bug", "2026-02-08T10:00:00Z", "sess-abc",
			"/home/user/alpha"),
		testjsonl.ChatAssistantJSON([]map[string]any{
			testjsonl.TextBlock("Looking at the handler."),
			testjsonl.ToolUseBlock("tu-1", "Read",
				map[string]any{"file_path": "/home/user/alpha/auth.go"}),
		}, "2026-02-08T10:05:00Z"),
		testjsonl.ChatUserJSON("does this cover expired tokens?",
			"2026-02-08T10:20:00Z"),
		testjsonl.ChatAssistantJSON([]map[string]any{
			testjsonl.ToolUseBlock("tu-2", "Edit",
				map[string]any{"file_path": "/home/user/alpha/auth.go"}),
		}, "2026-02-08T10:45:00Z"),
	)
	path := writeFixture(t, dir, "session.jsonl", content)

	sessions, diags, err := ParseChatLogFile(path)
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, model.SourceChatLog, s.Source)
	assert.Equal(t, "sess-abc", s.SourceNativeID)
	assert.Equal(t, "/home/user/alpha", s.WorkingDir)
	assert.Equal(t, "Fix the login bug", s.FirstMessage)
	assert.Equal(t, "Fix the login bug", s.Title)
	assert.Equal(t,
		time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC), s.StartedAt)
	assert.Equal(t,
		time.Date(2026, 2, 8, 10, 45, 0, 0, time.UTC), s.EndedAt)
	require.Len(t, s.ToolCalls, 2)
	assert.Equal(t, "Read", s.ToolCalls[0].Name)
	assert.Equal(t, "/home/user/alpha/auth.go", s.ToolCalls[0].Path)
	assert.Equal(t, []string{"does this cover expired tokens?"}, s.UserQuestions)
}

func TestParseChatLogFileSkipsInjectedMessages(t *testing.T) {
	dir := t.TempDir()
	content := testjsonl.Lines(
		testjsonl.ChatMetaUserJSON("injected context", "2026-02-08T09:00:00Z",
			true, false),
		testjsonl.ChatUserJSON("<command-name>clear</command-name>",
			"2026-02-08T09:00:01Z"),
		testjsonl.ChatUserJSON("Caveat: The messages below were generated",
			"2026-02-08T09:00:02Z"),
		testjsonl.ChatUserJSON("real question here", "2026-02-08T09:01:00Z"),
	)
	path := writeFixture(t, dir, "session.jsonl", content)

	sessions, _, err := ParseChatLogFile(path)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "real question here", sessions[0].FirstMessage)
}

func TestParseChatLogFileToolResultMatching(t *testing.T) {
	dir := t.TempDir()
	content := testjsonl.Lines(
		testjsonl.ChatAssistantJSON([]map[string]any{
			testjsonl.ToolUseBlock("tu-9", "Bash",
				map[string]any{"command": "go test ./..."}),
		}, "2026-02-08T10:00:00Z"),
		mustUserToolResult("tu-9", "FAIL: TestLogin"),
	)
	path := writeFixture(t, dir, "session.jsonl", content)

	sessions, _, err := ParseChatLogFile(path)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Len(t, sessions[0].ToolCalls, 1)
	assert.Equal(t, "go test ./...", sessions[0].ToolCalls[0].Command)
	assert.Equal(t, "FAIL: TestLogin", sessions[0].ToolCalls[0].Output)
}

func mustUserToolResult(toolUseID, text string) string {
	return testjsonl.ChatAssistantJSON([]map[string]any{
		testjsonl.ToolResultBlock(toolUseID, text),
	}, "2026-02-08T10:00:05Z")
}

func TestParseChatLogFileMalformedLine(t *testing.T) {
	dir := t.TempDir()
	content := testjsonl.ChatUserJSON("hello there", "2026-02-08T10:00:00Z") +
		"\n{not json}\n" +
		testjsonl.ChatAssistantJSON("done", "2026-02-08T10:01:00Z") + "\n"
	path := writeFixture(t, dir, "session.jsonl", content)

	sessions, diags, err := ParseChatLogFile(path)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Len(t, diags, 1)
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, model.SourceChatLog, diags[0].Source)
}

func TestParseChatLogFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	content := testjsonl.Lines(
		testjsonl.ChatUserJSON("build the thing", "2026-02-08T10:00:00Z"),
		testjsonl.ChatAssistantJSON("on it", "2026-02-08T10:30:00Z"),
	)
	path := writeFixture(t, dir, "session.jsonl", content)

	first, _, err := ParseChatLogFile(path)
	require.NoError(t, err)
	second, _, err := ParseChatLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDiscoverChatLogSessions(t *testing.T) {
	dir := t.TempDir()
	old := writeFixture(t, dir, "proj/old.jsonl", "{}")
	recent := writeFixture(t, dir, "proj/recent.jsonl", "{}")
	writeFixture(t, dir, "proj/notes.txt", "ignored")

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	files, err := DiscoverChatLogSessions(dir, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{recent}, files)

	all, err := DiscoverChatLogSessions(dir, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
