package delivery

import (
	"context"
	"time"

	"petitchat/internal/source"
	"petitchat/internal/storage"
	logx "petitchat/pkg/logx"
)

type Options struct {
	// FetchTimeout bounds each listing retrieval. Time spent waiting on a
	// source.Throttler is not included.
	FetchTimeout time.Duration
	// SendTimeout bounds each transport call.
	SendTimeout time.Duration
	// CaptionLimit is in runes; <= 0 means DefaultCaptionLimit.
	CaptionLimit int
	// DefaultCaption replaces an empty label.
	DefaultCaption string
}

func (o Options) withDefaults() Options {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 30 * time.Second
	}
	if o.CaptionLimit <= 0 {
		o.CaptionLimit = DefaultCaptionLimit
	}
	return o
}

// Selector finds the first unsent image across a channel's ordered sources.
type Selector struct {
	fetcher source.Fetcher
	opts    Options
	log     logx.Logger
}

func NewSelector(f source.Fetcher, opts Options, log logx.Logger) *Selector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Selector{fetcher: f, opts: opts.withDefaults(), log: log}
}

// Select walks sources in order and returns the first entry that is an image
// and not in sent. A source that fails to fetch is logged and skipped.
func (s *Selector) Select(ctx context.Context, sources []string, sent storage.Set) (Item, bool) {
	for _, src := range sources {
		if ctx.Err() != nil {
			return Item{}, false
		}
		entries, err := s.fetch(ctx, src)
		if err != nil {
			s.log.Warn("fetch error", logx.String("source", src), logx.Err(err))
			continue
		}
		for _, e := range entries {
			item := Item{Locator: e.URL, Label: e.Title}
			if item.Kind() != KindImage || sent.Has(item.Locator) {
				continue
			}
			if item.Label == "" {
				item.Label = s.opts.DefaultCaption
			}
			s.log.Debug("candidate selected",
				logx.String("source", src),
				logx.String("url", item.Locator),
				logx.String("kind", string(item.Kind())),
			)
			return item, true
		}
	}
	return Item{}, false
}

func (s *Selector) fetch(ctx context.Context, src string) ([]source.Entry, error) {
	if th, ok := s.fetcher.(source.Throttler); ok {
		if err := th.Wait(ctx); err != nil {
			return nil, &source.FetchError{Locator: src, Err: err}
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()
	return s.fetcher.Fetch(ctx, src)
}
