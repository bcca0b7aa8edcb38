package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
)

// FeedPrefix marks a locator as an RSS/Atom/JSON feed.
const FeedPrefix = "feed:"

// Feed fetches syndication feeds and maps items to entries.
//
// The entry URL is the first image enclosure, else the item image, else the
// item link.
type Feed struct {
	client    *http.Client
	userAgent string
}

func NewFeed(opts Options) *Feed {
	opts = opts.withDefaults()
	return &Feed{client: opts.Client, userAgent: opts.UserAgent}
}

// Fetch accepts the locator with or without the "feed:" prefix.
func (f *Feed) Fetch(ctx context.Context, locator string) ([]Entry, error) {
	target := strings.TrimPrefix(locator, FeedPrefix)

	body, err := get(ctx, f.client, f.userAgent, locator, target)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: fmt.Errorf("parse feed: %w", err)}
	}

	out := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		out = append(out, Entry{URL: itemURL(item), Title: strings.TrimSpace(item.Title)})
	}
	return out, nil
}

func itemURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	return item.Link
}
