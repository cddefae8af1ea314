package models

import "time"

// Defaults applied during normalization. Timeout and WaitAfterLoad are
// expressed in milliseconds on the wire.
const (
	DefaultTimeoutMs = 15000
	MaxTimeoutMs     = 120000
)

// ScrapeRequest is the payload for POST /api/v1/scrape.
//
// The request is polymorphic: exactly one of URL or URLs must be set.
// A request with URL returns a bare result object; a request with URLs
// returns an array of results (even when URLs has a single element).
// Shape and value validation happens in batch.Normalize, not via binding
// tags, because the one-of rule cannot be expressed as a field constraint.
type ScrapeRequest struct {
	// URL is the single target page to scrape.
	URL string `json:"url,omitempty"`

	// URLs is the ordered list of target pages for a batch scrape.
	// The i-th result always corresponds to the i-th URL.
	URLs []string `json:"urls,omitempty"`

	// WaitAfterLoad is how long to keep the page open after the load
	// settles, in milliseconds. Default: 0.
	WaitAfterLoad int `json:"wait_after_load,omitempty"`

	// Timeout is the maximum duration for one page fetch, in milliseconds.
	// It bounds each URL's fetch independently, never the whole batch.
	// Default: 15000. Max: 120000.
	Timeout int `json:"timeout,omitempty"`

	// Headers are extra HTTP headers sent with every page request in the
	// batch. Defaults to an empty map.
	Headers map[string]string `json:"headers,omitempty"`

	// FetchMode selects the fetching strategy for every URL in the batch.
	// "browser" (default): headless Chrome. "http": plain HTTP fetch.
	FetchMode string `json:"fetch_mode,omitempty"`

	// Stealth enables anti-bot-detection evasions in browser mode.
	Stealth bool `json:"stealth,omitempty"`

	// MaxAge enables the response cache for single-URL requests: a cached
	// result younger than MaxAge milliseconds is returned without a fetch.
	// 0 disables caching.
	MaxAge int `json:"max_age,omitempty"`
}

// IsBatch reports whether the request uses the multi-URL shape.
// Presence of the urls field decides the response shape, not its length.
func (r *ScrapeRequest) IsBatch() bool {
	return r.URLs != nil
}

// PerURLRequest is the fully resolved, immutable parameter set for exactly
// one URL's fetch. Once built it is self-contained: Headers is a non-nil
// copy owned exclusively by this request, never shared with a sibling in
// the same batch.
type PerURLRequest struct {
	URL           string
	WaitAfterLoad time.Duration
	Timeout       time.Duration
	Headers       map[string]string
	FetchMode     string
	Stealth       bool
}
