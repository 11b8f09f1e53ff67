package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultAttempts is how many times an invocation is tried
	// before the failure surfaces to the caller.
	DefaultAttempts = 3

	// DefaultBackoff is the pause after the first failed attempt;
	// it doubles after each subsequent failure.
	DefaultBackoff = 2 * time.Second
)

// Retrier wraps a Worker with bounded retry and exponential backoff.
type Retrier struct {
	Worker   Worker
	Attempts int
	Backoff  time.Duration
	Log      *slog.Logger
}

// NewRetrier returns a Retrier with the default policy.
func NewRetrier(w Worker, log *slog.Logger) *Retrier {
	return &Retrier{
		Worker:   w,
		Attempts: DefaultAttempts,
		Backoff:  DefaultBackoff,
		Log:      log,
	}
}

// Invoke runs the worker until it succeeds, fails unrecoverably, or
// exhausts the attempt budget. Context cancellation surfaces
// immediately.
func (r *Retrier) Invoke(ctx context.Context, prompt string) (string, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := r.Worker.Invoke(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Retryable(err) {
			return "", err
		}
		if attempt == attempts {
			break
		}
		log.Warn("llm invocation failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", fmt.Errorf("llm failed after %d attempts: %w", attempts, lastErr)
}
