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

func writeRolloutDir(t *testing.T, root, name, manifest string, events ...string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644))
	for i, content := range events {
		name := filepath.Join(dir, "events-"+string(rune('0'+i))+".jsonl")
		require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
	}
	return dir
}

func TestParseRolloutDir(t *testing.T) {
	root := t.TempDir()
	dir := writeRolloutDir(t, root, "rollout-2026-02-08-xyz",
		testjsonl.RolloutManifestJSON(
			"2026-02-08T09:00:00Z", "2026-02-08T09:40:00Z", "/home/user/beta"),
		testjsonl.Lines(
			testjsonl.RolloutMessageJSON("user",
				"refactor the queue consumer", "2026-02-08T09:00:01Z"),
			testjsonl.RolloutToolCallJSON("c1", "Edit", "2026-02-08T09:10:00Z",
				map[string]any{"file_path": "/home/user/beta/consumer.go"}),
			testjsonl.RolloutToolResultJSON("c1", "ok", "2026-02-08T09:10:02Z"),
		),
	)

	sessions, diags, err := ParseRolloutDir(dir)
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, model.SourceRollout, s.Source)
	assert.Equal(t, "rollout-2026-02-08-xyz", s.SourceNativeID)
	assert.Equal(t, "/home/user/beta", s.WorkingDir)
	assert.Equal(t, "refactor the queue consumer", s.FirstMessage)
	assert.Equal(t,
		time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC), s.StartedAt)
	assert.Equal(t,
		time.Date(2026, 2, 8, 9, 40, 0, 0, time.UTC), s.EndedAt)
	require.Len(t, s.ToolCalls, 1)
	assert.Equal(t, "Edit", s.ToolCalls[0].Name)
	assert.Equal(t, "ok", s.ToolCalls[0].Output)
}

func TestParseRolloutDirTimestampFallback(t *testing.T) {
	root := t.TempDir()
	dir := writeRolloutDir(t, root, "rollout-no-times",
		"{}",
		testjsonl.Lines(
			testjsonl.RolloutMessageJSON("user", "hello", "2026-02-08T11:00:00Z"),
			testjsonl.RolloutMessageJSON("assistant", "hi", "2026-02-08T11:30:00Z"),
		),
	)

	sessions, _, err := ParseRolloutDir(dir)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t,
		time.Date(2026, 2, 8, 11, 0, 0, 0, time.UTC), sessions[0].StartedAt)
	assert.Equal(t,
		time.Date(2026, 2, 8, 11, 30, 0, 0, time.UTC), sessions[0].EndedAt)
}

func TestParseRolloutDirBadManifest(t *testing.T) {
	root := t.TempDir()
	dir := writeRolloutDir(t, root, "rollout-bad", "{broken")

	sessions, diags, err := ParseRolloutDir(dir)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Msg, "manifest")
}

func TestParseRolloutDirMalformedEventLine(t *testing.T) {
	root := t.TempDir()
	dir := writeRolloutDir(t, root, "rollout-mixed",
		testjsonl.RolloutManifestJSON("2026-02-08T09:00:00Z", "", ""),
		testjsonl.RolloutMessageJSON("user", "first", "2026-02-08T09:00:01Z")+
			"\nnot-json\n"+
			testjsonl.RolloutMessageJSON("assistant", "reply", "2026-02-08T09:05:00Z")+"\n",
	)

	sessions, diags, err := ParseRolloutDir(dir)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Len(t, diags, 1)
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, "first", sessions[0].FirstMessage)
}

func TestDiscoverRolloutSessions(t *testing.T) {
	root := t.TempDir()
	a := writeRolloutDir(t, root, "a", "{}")
	writeFixture(t, root, "plain/readme.md", "no manifest here")
	b := writeRolloutDir(t, root, "nested/b", "{}")

	dirs, err := DiscoverRolloutSessions(root, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, dirs)
}
