package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultUserAgent = "petitchat/1.0 (telegram-bot)"
	defaultTimeout   = 15 * time.Second

	// maxBody caps how much of a listing we read.
	maxBody = 8 << 20
)

// Entry is one listing element, in listing order.
type Entry struct {
	URL   string
	Title string
}

// Fetcher returns the entries of one listing.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]Entry, error)
}

// FetchError reports a failed listing retrieval. Status is the HTTP status
// code when the server answered, 0 otherwise.
type FetchError struct {
	Locator string
	Status  int
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.Locator, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options is shared by every fetcher.
type Options struct {
	UserAgent string
	// Limit is added as ?limit=N to reddit listings when > 0.
	Limit int
	// RatePerSec bounds outbound requests across all fetchers; <= 0 disables it.
	RatePerSec int
	Client     *http.Client
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.UserAgent) == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: defaultTimeout}
	}
	return o
}

// get performs a GET and returns the body of a 200 response.
func get(ctx context.Context, client *http.Client, userAgent, locator, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, &FetchError{Locator: locator, Status: resp.StatusCode}
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxBody), resp.Body}, nil
}
