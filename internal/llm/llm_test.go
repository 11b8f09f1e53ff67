package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript drops an executable shell script into a temp dir and
// returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-llm")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestNewCLIWorkerMissingBinary(t *testing.T) {
	_, err := NewCLIWorker("definitely-not-a-real-binary-8347")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewCLIWorkerEmptyCommand(t *testing.T) {
	_, err := NewCLIWorker("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCLIWorkerInvoke(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
echo "# Generated"
echo "body text"`)
	w, err := NewCLIWorker(script)
	require.NoError(t, err)

	out, err := w.Invoke(context.Background(), "write something")
	require.NoError(t, err)
	assert.Equal(t, "# Generated\nbody text", out)
}

func TestCLIWorkerReadsPrompt(t *testing.T) {
	// The script echoes stdin back, proving the prompt arrives there.
	script := writeScript(t, `cat`)
	w, err := NewCLIWorker(script)
	require.NoError(t, err)

	out, err := w.Invoke(context.Background(), "round trip")
	require.NoError(t, err)
	assert.Equal(t, "round trip", out)
}

func TestCLIWorkerEmptyOutput(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
exit 0`)
	w, err := NewCLIWorker(script)
	require.NoError(t, err)

	_, err = w.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.True(t, Retryable(err))
}

func TestCLIWorkerNonZeroExit(t *testing.T) {
	script := writeScript(t, `cat >/dev/null
echo "boom" >&2
exit 3`)
	w, err := NewCLIWorker(script)
	require.NoError(t, err)

	_, err = w.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestCLIWorkerTimeout(t *testing.T) {
	// The backgrounded child inherits stdout and outlives the shell,
	// so the invocation must not wait for it to release the pipe.
	script := writeScript(t, `cat >/dev/null
sleep 10 &
wait`)
	w, err := NewCLIWorker(script, WithTimeout(100*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = w.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEnvKeyAllowed(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"PATH", true},
		{"HOME", true},
		{"LC_ALL", true},
		{"XDG_CONFIG_HOME", true},
		{"DISTILL_DEBUG", true},
		{"AWS_SECRET_ACCESS_KEY", false},
		{"GITHUB_TOKEN", false},
		{"PATHEXTRA", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, envKeyAllowed(tt.key))
		})
	}
}

// stubWorker fails a fixed number of times before succeeding.
type stubWorker struct {
	failures int
	err      error
	calls    int
}

func (s *stubWorker) Invoke(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", s.err
	}
	return "ok", nil
}

func TestRetrierSucceedsAfterTransientFailures(t *testing.T) {
	stub := &stubWorker{failures: 2, err: fmt.Errorf("%w: exit 1", errTransient)}
	r := NewRetrier(stub, nil)
	r.Backoff = time.Millisecond

	out, err := r.Invoke(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, stub.calls)
}

func TestRetrierStopsOnUnrecoverable(t *testing.T) {
	stub := &stubWorker{failures: 10, err: fmt.Errorf("%w: no binary", ErrUnavailable)}
	r := NewRetrier(stub, nil)
	r.Backoff = time.Millisecond

	_, err := r.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, stub.calls, "unavailable worker is not retried")
}

func TestRetrierExhaustsAttempts(t *testing.T) {
	stub := &stubWorker{failures: 10, err: fmt.Errorf("%w: flaky", errTransient)}
	r := NewRetrier(stub, nil)
	r.Backoff = time.Millisecond

	_, err := r.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, DefaultAttempts, stub.calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetrierHonorsCancellation(t *testing.T) {
	stub := &stubWorker{failures: 10, err: fmt.Errorf("%w: flaky", errTransient)}
	r := NewRetrier(stub, nil)
	r.Backoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Invoke(ctx, "p")
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("retrier did not observe cancellation")
	}
}
