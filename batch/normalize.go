package batch

import (
	"fmt"
	"maps"
	"net/url"
	"time"

	"github.com/use-agent/renderd/models"
)

// Normalize validates a raw scrape request and expands it into the ordered
// sequence of per-URL requests that will be dispatched. The i-th output
// always corresponds to the i-th input URL.
//
// Every output request is self-contained: it carries its own non-nil header
// map (a fresh copy per URL, empty when the request had none), so no two
// dispatched fetches can observe each other's mutations.
//
// Normalize is a pure transformation. It returns a *models.ScrapeError with
// code INVALID_INPUT on the first violation and performs no fetch work.
func Normalize(req *models.ScrapeRequest) ([]models.PerURLRequest, error) {
	rawURLs, err := requestURLs(req)
	if err != nil {
		return nil, err
	}

	if req.WaitAfterLoad < 0 {
		return nil, invalidInput(fmt.Sprintf("wait_after_load must be >= 0, got %d", req.WaitAfterLoad))
	}

	timeoutMs := req.Timeout
	switch {
	case timeoutMs == 0:
		timeoutMs = models.DefaultTimeoutMs
	case timeoutMs < 0:
		return nil, invalidInput(fmt.Sprintf("timeout must be > 0, got %d", req.Timeout))
	case timeoutMs > models.MaxTimeoutMs:
		timeoutMs = models.MaxTimeoutMs
	}

	fetchMode := req.FetchMode
	switch fetchMode {
	case "":
		fetchMode = "browser"
	case "browser", "http":
	default:
		return nil, invalidInput(fmt.Sprintf("fetch_mode must be \"browser\" or \"http\", got %q", req.FetchMode))
	}

	resolved := make([]models.PerURLRequest, 0, len(rawURLs))
	for i, rawURL := range rawURLs {
		if err := validateURL(rawURL); err != nil {
			return nil, invalidInput(fmt.Sprintf("urls[%d]: %v", i, err))
		}

		headers := make(map[string]string, len(req.Headers))
		maps.Copy(headers, req.Headers)

		resolved = append(resolved, models.PerURLRequest{
			URL:           rawURL,
			WaitAfterLoad: time.Duration(req.WaitAfterLoad) * time.Millisecond,
			Timeout:       time.Duration(timeoutMs) * time.Millisecond,
			Headers:       headers,
			FetchMode:     fetchMode,
			Stealth:       req.Stealth,
		})
	}

	return resolved, nil
}

// requestURLs resolves the polymorphic request shape into a flat URL list.
// Exactly one of url / urls must be present.
func requestURLs(req *models.ScrapeRequest) ([]string, error) {
	hasSingle := req.URL != ""
	hasBatch := req.URLs != nil

	switch {
	case hasSingle && hasBatch:
		return nil, invalidInput("provide either url or urls, not both")
	case hasSingle:
		return []string{req.URL}, nil
	case hasBatch:
		if len(req.URLs) == 0 {
			return nil, invalidInput("urls must not be empty")
		}
		return req.URLs, nil
	default:
		return nil, invalidInput("url or urls is required")
	}
}

// validateURL requires an absolute http(s) URL with a host.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", rawURL)
	}
	return nil
}

func invalidInput(msg string) *models.ScrapeError {
	return models.NewScrapeError(models.ErrCodeInvalidInput, msg, nil)
}
