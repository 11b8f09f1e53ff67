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

func writeSignal(t *testing.T, dir, name, agentID, role, signal, message, createdAt string) {
	t.Helper()
	content := "signal_id: " + name + "\n" +
		"agent_id: " + agentID + "\n" +
		"role: " + role + "\n" +
		"signal: " + signal + "\n" +
		"message: " + message + "\n" +
		"created_at: \"" + createdAt + "\"\n"
	writeFixture(t, dir, filepath.Join("signals", name+".yaml"), content)
}

func buildWorkflow(t *testing.T, root, workflowID string) string {
	t.Helper()
	dir := filepath.Join(root, "state", workflowID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func TestParseMultiAgentWorkflow(t *testing.T) {
	root := t.TempDir()
	dir := buildWorkflow(t, root, "mission-042-cycle-2-execute-fix-auth")
	writeSignal(t, dir, "s1", "builder-1", "builder", "done",
		"implementation finished", "2026-02-08T14:00:00Z")
	writeSignal(t, dir, "s2", "verifier-1", "verifier", "approved",
		"tests pass", "2026-02-08T14:30:00Z")
	writeSignal(t, dir, "s3", "coordinator", "coordinator", "complete",
		"shipped", "2026-02-08T14:45:00Z")

	writeFixture(t, root, "tasks/mission-042-auth/login/fix-auth.md",
		"---\nstatus: active\n---\n# Fix auth\nRepair the token refresh path\nso sessions survive expiry.\n\nMore detail below.\n")
	writeFixture(t, root, "knowledge/agents/agent-learnings.yaml",
		"agents:\n  builder:\n    learnings:\n      - prefer table-driven tests\n")

	sessions, diags, err := ParseMultiAgentWorkflow(dir)
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, model.SourceMultiAgent, s.Source)
	assert.Equal(t, "mission-042-cycle-2-execute-fix-auth", s.SourceNativeID)
	assert.Equal(t, "042", s.Metadata["mission"])
	assert.Equal(t, 2, s.Cycle)
	assert.Equal(t, "fix auth", s.Title)
	assert.Equal(t, "completed", s.Metadata["outcome"])
	assert.Equal(t, "excellent", s.QualityRating)
	assert.Equal(t,
		"Repair the token refresh path so sessions survive expiry.",
		s.TaskDescription)
	assert.Equal(t, []string{"builder: prefer table-driven tests"}, s.Learnings)
	require.Len(t, s.Signals, 3)
	assert.Equal(t, "done", s.Signals[0].Signal)
	assert.Equal(t,
		time.Date(2026, 2, 8, 14, 0, 0, 0, time.UTC), s.StartedAt)
	assert.Equal(t,
		time.Date(2026, 2, 8, 14, 45, 0, 0, time.UTC), s.EndedAt)
	require.Len(t, s.Outcomes, 3)
	assert.Equal(t, model.OutcomeSignal, s.Outcomes[0].Kind)
}

func TestParseMultiAgentWorkflowEventsLogFallback(t *testing.T) {
	root := t.TempDir()
	dir := buildWorkflow(t, root, "mission-007-cycle-1-execute-build-cache")
	writeFixture(t, root,
		filepath.Join("state", "mission-007-cycle-1-execute-build-cache", "events.log"),
		testjsonl.Lines(
			testjsonl.SignalEventJSON("builder-1", "builder", "done",
				"cache built", "2026-02-09T08:00:00Z"),
			testjsonl.SignalEventJSON("verifier-1", "verifier", "blocked",
				"flaky test", "2026-02-09T08:20:00Z"),
		))

	sessions, _, err := ParseMultiAgentWorkflow(dir)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "blocked", sessions[0].Metadata["outcome"])
	assert.Equal(t, "poor", sessions[0].QualityRating)
	// Description falls back to the task name.
	assert.Equal(t, "Build cache", sessions[0].TaskDescription)
}

func TestParseMultiAgentWorkflowNoSignals(t *testing.T) {
	root := t.TempDir()
	dir := buildWorkflow(t, root, "mission-001-cycle-1-execute-empty")

	sessions, diags, err := ParseMultiAgentWorkflow(dir)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Empty(t, diags)
}

func TestParseMultiAgentWorkflowQualityWithRevision(t *testing.T) {
	root := t.TempDir()
	dir := buildWorkflow(t, root, "mission-042-cycle-3-execute-retry-task")
	writeSignal(t, dir, "s1", "builder-1", "builder", "done",
		"first pass", "2026-02-10T10:00:00Z")
	writeSignal(t, dir, "s2", "verifier-1", "verifier", "needs_revision",
		"missing edge case", "2026-02-10T10:10:00Z")
	writeSignal(t, dir, "s3", "verifier-1", "verifier", "approved",
		"fixed", "2026-02-10T10:40:00Z")

	sessions, _, err := ParseMultiAgentWorkflow(dir)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "approved", sessions[0].Metadata["outcome"])
	assert.Equal(t, "good", sessions[0].QualityRating)
}

func TestDiscoverMultiAgentWorkflows(t *testing.T) {
	root := t.TempDir()
	a := buildWorkflow(t, root, "mission-001-cycle-1-execute-a")
	buildWorkflow(t, root, "mtg-standup-2026-02-08")
	b := buildWorkflow(t, root, "mission-002-cycle-1-execute-b")

	dirs, err := DiscoverMultiAgentWorkflows(root, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, dirs)
}

func TestSplitWorkflowID(t *testing.T) {
	tests := []struct {
		id      string
		mission string
		cycle   int
		task    string
	}{
		{"mission-042-cycle-2-execute-fix-auth", "042", 2, "fix-auth"},
		{"mission-007-cycle-1-execute-build-cache", "007", 1, "build-cache"},
		{"cycle-3-execute-solo", "", 3, "solo"},
		{"unstructured-name", "", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			mission, cycle, task := splitWorkflowID(tt.id)
			assert.Equal(t, tt.mission, mission)
			assert.Equal(t, tt.cycle, cycle)
			assert.Equal(t, tt.task, task)
		})
	}
}
