// Package llm invokes an external language-model CLI as a subprocess:
// prompt on stdin, generated markdown on stdout. The pipeline treats
// the model as a black box behind the Worker interface; tests swap in
// stubs.
package llm

import (
	"context"
	"errors"
)

// Sentinel failure classes. Callers branch on these to decide whether
// a retry can help.
var (
	// ErrTimeout marks an invocation that exceeded its deadline.
	ErrTimeout = errors.New("llm: invocation timed out")

	// ErrUnavailable marks a worker that could not run at all
	// (binary missing, exec failure).
	ErrUnavailable = errors.New("llm: worker unavailable")

	// ErrEmpty marks a run that exited cleanly but produced no
	// output.
	ErrEmpty = errors.New("llm: empty response")
)

// Worker produces text for a prompt. Implementations must be safe for
// concurrent use; the pipeline runs a small worker pool over one
// instance.
type Worker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Retryable reports whether another attempt could plausibly succeed.
// Missing binaries never heal within a run; timeouts and empty
// responses sometimes do.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrEmpty) ||
		errors.Is(err, errTransient)
}

// errTransient wraps non-zero exits and broken pipes: the CLI exists
// and ran, it just failed this time.
var errTransient = errors.New("llm: transient failure")
