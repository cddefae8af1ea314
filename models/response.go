package models

// FetchResult is the outcome of one page fetch. For a single-URL request it
// is the whole response body; for a batch it is one element of the result
// array, at the same index as its URL in the input.
type FetchResult struct {
	// Success indicates whether the fetch completed without errors.
	Success bool `json:"success"`

	// URL is the requested page, echoed back so batch entries stay
	// attributable even on failure.
	URL string `json:"url"`

	// Content is the rendered page HTML. Empty on failure.
	Content string `json:"content"`

	// Title is the page title, when one could be determined.
	Title string `json:"title,omitempty"`

	// FinalURL is the URL after following all redirects. Equal to URL
	// when the page did not redirect.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the HTTP status code observed for the page navigation.
	// 0 when it could not be determined.
	StatusCode int `json:"status_code"`

	// ProcessingTime is the wall-clock duration of the fetch in seconds.
	ProcessingTime float64 `json:"processing_time"`

	// FetchMethod records how the page was fetched: "browser" or "http".
	FetchMethod string `json:"fetch_method,omitempty"`

	// CacheStatus is "hit" or "miss" when caching was requested, else empty.
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
