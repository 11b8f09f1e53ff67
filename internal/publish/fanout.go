package publish

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/distillpress/distill/internal/model"
)

// Delivery is the outcome of one platform's render+deliver for a post.
type Delivery struct {
	Platform string
	Receipt  Receipt
	Err      error
}

// Fanout delivers one post to every configured platform in parallel.
// Platforms share no state; one failure never blocks the others.
type Fanout struct {
	Publishers []Publisher
	Timeout    time.Duration
	Log        *slog.Logger
}

// NewFanout returns a fan-out over publishers with the default
// per-platform timeout.
func NewFanout(publishers ...Publisher) *Fanout {
	return &Fanout{Publishers: publishers, Timeout: DefaultTimeout}
}

// Publish renders and delivers post on every platform concurrently,
// each delivery bounded by the per-platform timeout. Results come back
// sorted by platform name, one entry per publisher.
func (f *Fanout) Publish(ctx context.Context, post *model.BlogPost) []Delivery {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	results := make([]Delivery, len(f.Publishers))
	var wg sync.WaitGroup
	for i, pub := range f.Publishers {
		wg.Add(1)
		go func(i int, pub Publisher) {
			defer wg.Done()
			results[i] = f.deliverOne(ctx, pub, post, timeout)
		}(i, pub)
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool {
		return results[a].Platform < results[b].Platform
	})
	return results
}

func (f *Fanout) deliverOne(ctx context.Context, pub Publisher, post *model.BlogPost, timeout time.Duration) Delivery {
	d := Delivery{Platform: pub.Name()}

	payload, err := pub.Render(post)
	if err != nil {
		d.Err = err
		f.logFailure(post, d)
		return d
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	d.Receipt, d.Err = pub.Deliver(dctx, payload)
	if d.Err != nil {
		f.logFailure(post, d)
	} else if f.Log != nil {
		f.Log.Info("delivered post",
			"slug", post.Slug, "platform", d.Platform, "location", d.Receipt.Location)
	}
	return d
}

func (f *Fanout) logFailure(post *model.BlogPost, d Delivery) {
	if f.Log == nil {
		return
	}
	f.Log.Warn("delivery failed",
		"slug", post.Slug, "platform", d.Platform, "error", d.Err)
}
