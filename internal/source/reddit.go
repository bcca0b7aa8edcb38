package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Reddit fetches public reddit JSON listings, e.g.
// https://www.reddit.com/r/cat/.json.
type Reddit struct {
	client    *http.Client
	userAgent string
	limit     int
}

func NewReddit(opts Options) *Reddit {
	opts = opts.withDefaults()
	return &Reddit{client: opts.Client, userAgent: opts.UserAgent, limit: opts.Limit}
}

func (r *Reddit) Fetch(ctx context.Context, locator string) ([]Entry, error) {
	target, err := r.listingURL(locator)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}

	body, err := get(ctx, r.client, r.userAgent, locator, target)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	var listing redditListing
	if err := json.NewDecoder(body).Decode(&listing); err != nil {
		return nil, &FetchError{Locator: locator, Err: fmt.Errorf("decode listing: %w", err)}
	}
	return entriesFromListing(listing), nil
}

func (r *Reddit) listingURL(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("parse locator: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if r.limit > 0 {
		q := u.Query()
		if q.Get("limit") == "" {
			q.Set("limit", strconv.Itoa(r.limit))
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

func entriesFromListing(listing redditListing) []Entry {
	out := make([]Entry, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		out = append(out, Entry{URL: child.Data.URL, Title: child.Data.Title})
	}
	return out
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Data redditPost `json:"data"`
}

type redditPost struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
