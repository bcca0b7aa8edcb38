// Package source retrieves ordered listings of (url, title) entries.
//
// Reddit JSON listings are the default. Locators prefixed with "feed:" are
// fetched as RSS/Atom/JSON feeds. Mux routes between the two and paces
// requests through one shared rate limiter (see Throttler).
package source
