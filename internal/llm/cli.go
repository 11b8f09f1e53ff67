package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
)

// DefaultTimeout bounds one CLI invocation.
const DefaultTimeout = 120 * time.Second

// CLIWorker runs a configured command line per invocation. The prompt
// goes to stdin; everything on stdout is the response.
type CLIWorker struct {
	path    string
	args    []string
	timeout time.Duration
	workDir string
}

// Option adjusts CLIWorker construction.
type Option func(*CLIWorker)

// WithTimeout overrides the per-invocation deadline.
func WithTimeout(d time.Duration) Option {
	return func(w *CLIWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithWorkDir sets the subprocess working directory.
func WithWorkDir(dir string) Option {
	return func(w *CLIWorker) { w.workDir = dir }
}

// NewCLIWorker parses a shell-style command string ("llm --no-stream")
// and resolves the binary. A missing binary is ErrUnavailable
// immediately, not at first invocation.
func NewCLIWorker(command string, opts ...Option) (*CLIWorker, error) {
	fields, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parsing llm command %q: %w", command, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrUnavailable)
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, fields[0], err)
	}
	w := &CLIWorker{path: path, args: fields[1:], timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// allowedKeyPrefixes lists the environment keys passed through to the
// subprocess. An allowlist keeps unrelated secrets out of the child.
// Entries ending with _ match as prefixes, the rest exactly.
var allowedKeyPrefixes = []string{
	"PATH",
	"HOME",
	"USER", "LOGNAME",
	"LANG", "LC_",
	"TERM",
	"TMPDIR", "TEMP", "TMP",
	"XDG_",
	"SHELL",
	"SSL_CERT_", "CURL_CA_BUNDLE",
	"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY",
	"DISTILL_",
}

func envKeyAllowed(key string) bool {
	upper := strings.ToUpper(key)
	for _, p := range allowedKeyPrefixes {
		if strings.HasSuffix(p, "_") {
			if strings.HasPrefix(upper, p) {
				return true
			}
		} else if upper == p {
			return true
		}
	}
	return false
}

func cleanEnv() []string {
	env := os.Environ()
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		k, _, _ := strings.Cut(e, "=")
		if envKeyAllowed(k) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// Invoke runs one generation. The context combines the caller's
// cancellation with the worker timeout.
func (w *CLIWorker) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.path, w.args...)
	cmd.Env = cleanEnv()
	cmd.Dir = w.workDir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// The CLI may spawn children that inherit its pipes; without
	// WaitDelay, Wait would block until every descendant closes its
	// end even after the direct child is killed.
	cmd.WaitDelay = 2 * time.Second

	runErr := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: after %s", ErrTimeout, w.timeout)
	}
	if ctx.Err() != nil && runErr != nil {
		return "", fmt.Errorf("llm cancelled: %w", ctx.Err())
	}
	if runErr != nil && cmd.ProcessState == nil {
		return "", fmt.Errorf("%w: starting %s: %v", ErrUnavailable, w.path, runErr)
	}
	stderrText := strings.TrimSpace(stderr.String())
	if runErr != nil {
		return "", fmt.Errorf("%w: %v\nstderr: %s", errTransient, runErr, stderrText)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("%w\nstderr: %s", ErrEmpty, stderrText)
	}
	return out, nil
}
