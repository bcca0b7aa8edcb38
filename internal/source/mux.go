package source

import (
	"context"
	"strings"

	"golang.org/x/time/rate"
)

// Throttler is implemented by fetchers that pace outbound requests. Callers
// Wait before each Fetch, outside any per-request deadline, so time spent
// queued never counts against the request itself.
type Throttler interface {
	Wait(ctx context.Context) error
}

// Mux routes "feed:" locators to a Feed and everything else to Reddit.
// Requests are paced by Wait on the shared limiter.
type Mux struct {
	reddit  Fetcher
	feed    Fetcher
	limiter *rate.Limiter
}

func NewMux(opts Options) *Mux {
	opts = opts.withDefaults()
	return &Mux{
		reddit:  NewReddit(opts),
		feed:    NewFeed(opts),
		limiter: newLimiter(opts.RatePerSec),
	}
}

func newLimiter(perSec int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSec), 1)
}

// Wait blocks until the limiter grants one request or ctx ends.
func (m *Mux) Wait(ctx context.Context) error {
	return m.limiter.Wait(ctx)
}

func (m *Mux) Fetch(ctx context.Context, locator string) ([]Entry, error) {
	if strings.HasPrefix(locator, FeedPrefix) {
		return m.feed.Fetch(ctx, locator)
	}
	return m.reddit.Fetch(ctx, locator)
}
