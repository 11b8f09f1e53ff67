// Package publish renders a canonical blog post into per-platform
// dialects and delivers them in parallel. Platforms without a remote
// endpoint deliver to the local output tree.
package publish

import (
	"context"
	"errors"
	"time"

	"github.com/distillpress/distill/internal/model"
)

// DefaultTimeout bounds one platform delivery.
const DefaultTimeout = 30 * time.Second

// ErrRejected marks a delivery the platform refused; retrying with
// the same payload will not help.
var ErrRejected = errors.New("publish: platform rejected post")

// Payload is one platform's rendered form of a post.
type Payload struct {
	Platform string
	Filename string
	Body     []byte
}

// Receipt records a completed delivery.
type Receipt struct {
	Platform    string
	Location    string // file path or remote URL
	DeliveredAt time.Time
}

// Publisher is one destination platform adapter.
type Publisher interface {
	Name() string
	Render(post *model.BlogPost) (Payload, error)
	Deliver(ctx context.Context, payload Payload) (Receipt, error)
}
