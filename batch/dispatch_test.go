package batch

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/renderd/models"
)

// fakeFetcher records every request it receives (as a deep copy taken at
// call time, so later mutations cannot mask a binding bug) and answers via
// the configurable fetch func.
type fakeFetcher struct {
	mu    sync.Mutex
	seen  []models.PerURLRequest
	fetch func(req *models.PerURLRequest) (*models.FetchResult, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, req *models.PerURLRequest) (*models.FetchResult, error) {
	snapshot := *req
	snapshot.Headers = maps.Clone(req.Headers)

	f.mu.Lock()
	f.seen = append(f.seen, snapshot)
	f.mu.Unlock()

	if f.fetch != nil {
		return f.fetch(req)
	}
	return &models.FetchResult{
		URL:        req.URL,
		Content:    "<html>" + req.URL + "</html>",
		StatusCode: 200,
	}, nil
}

func (f *fakeFetcher) requests() []models.PerURLRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PerURLRequest, len(f.seen))
	copy(out, f.seen)
	return out
}

func resolve(t *testing.T, req *models.ScrapeRequest) []models.PerURLRequest {
	t.Helper()
	resolved, err := Normalize(req)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return resolved
}

func TestDispatch_AllURLsProcessed(t *testing.T) {
	urls := []string{
		"https://example.com/page1",
		"https://example.com/page2",
		"https://example.com/page3",
	}
	ff := &fakeFetcher{}
	d := &Dispatcher{Fetcher: ff}

	results := d.Dispatch(context.Background(), resolve(t, &models.ScrapeRequest{
		URLs:    urls,
		Timeout: 15000,
	}))

	if len(results) != len(urls) {
		t.Fatalf("expected %d results, got %d", len(urls), len(results))
	}
	if got := len(ff.requests()); got != len(urls) {
		t.Fatalf("expected %d fetches, got %d", len(urls), got)
	}
	for i, r := range results {
		if r == nil {
			t.Fatalf("results[%d] missing", i)
		}
		if r.URL != urls[i] {
			t.Errorf("results[%d].URL = %q, want %q", i, r.URL, urls[i])
		}
		if !r.Success {
			t.Errorf("results[%d] unexpectedly failed: %v", i, r.Error)
		}
	}
}

// Regression test for shared-loop-variable capture: with several distinct
// URLs and identical shared options, every dispatched fetch must see its
// own URL. A dispatcher that binds the loop cursor into its goroutines
// makes all fetches observe the last URL instead.
func TestDispatch_ParameterBindingIsPerTask(t *testing.T) {
	urls := []string{
		"https://example.com/first",
		"https://example.com/second",
		"https://example.com/third",
	}
	ff := &fakeFetcher{}
	d := &Dispatcher{Fetcher: ff}

	d.Dispatch(context.Background(), resolve(t, &models.ScrapeRequest{
		URLs:          urls,
		WaitAfterLoad: 100,
		Timeout:       30000,
		Headers:       map[string]string{"User-Agent": "Test"},
	}))

	seen := ff.requests()
	if len(seen) != len(urls) {
		t.Fatalf("expected %d fetches, got %d", len(urls), len(seen))
	}

	distinct := make(map[string]int)
	for _, r := range seen {
		distinct[r.URL]++
	}
	if len(distinct) != len(urls) {
		t.Fatalf("fetched URLs are not distinct (capture bug): %v", distinct)
	}
	for _, u := range urls {
		if distinct[u] != 1 {
			t.Errorf("url %q fetched %d times, want exactly once", u, distinct[u])
		}
	}

	// Shared options must arrive intact on every task, not just the first.
	for _, r := range seen {
		if r.WaitAfterLoad != 100*time.Millisecond {
			t.Errorf("fetch for %q got wait_after_load %v", r.URL, r.WaitAfterLoad)
		}
		if r.Timeout != 30*time.Second {
			t.Errorf("fetch for %q got timeout %v", r.URL, r.Timeout)
		}
		if r.Headers["User-Agent"] != "Test" {
			t.Errorf("fetch for %q got headers %v", r.URL, r.Headers)
		}
	}
}

// Results must come back in input order even when fetches complete in
// reverse: earlier URLs are made artificially slower than later ones.
func TestDispatch_OrderIndependentOfCompletion(t *testing.T) {
	const n = 6
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/page%d", i)
	}

	ff := &fakeFetcher{
		fetch: func(req *models.PerURLRequest) (*models.FetchResult, error) {
			var idx int
			fmt.Sscanf(req.URL, "https://example.com/page%d", &idx)
			time.Sleep(time.Duration(n-idx) * 10 * time.Millisecond)
			return &models.FetchResult{URL: req.URL, StatusCode: 200}, nil
		},
	}
	d := &Dispatcher{Fetcher: ff, MaxConcurrent: n}

	results := d.Dispatch(context.Background(), resolve(t, &models.ScrapeRequest{URLs: urls}))

	for i, r := range results {
		if r.URL != urls[i] {
			t.Errorf("results[%d].URL = %q, want %q (completion order leaked into output)", i, r.URL, urls[i])
		}
	}
}

func TestDispatch_PartialFailureIsContained(t *testing.T) {
	urls := []string{
		"https://example.com/ok1",
		"https://example.com/broken",
		"https://example.com/ok2",
	}
	ff := &fakeFetcher{
		fetch: func(req *models.PerURLRequest) (*models.FetchResult, error) {
			if req.URL == "https://example.com/broken" {
				return nil, models.NewScrapeError(models.ErrCodeNavigation, "navigation to target URL failed", nil)
			}
			return &models.FetchResult{URL: req.URL, Content: "ok", StatusCode: 200}, nil
		},
	}
	d := &Dispatcher{Fetcher: ff}

	results := d.Dispatch(context.Background(), resolve(t, &models.ScrapeRequest{URLs: urls}))

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[1].Success {
		t.Error("broken URL reported success")
	}
	if results[1].Error == nil || results[1].Error.Code != models.ErrCodeNavigation {
		t.Errorf("broken URL has wrong error detail: %+v", results[1].Error)
	}
	if results[1].URL != urls[1] {
		t.Errorf("failure entry lost its URL: %q", results[1].URL)
	}

	for _, i := range []int{0, 2} {
		if !results[i].Success {
			t.Errorf("results[%d] should have succeeded despite sibling failure: %+v", i, results[i].Error)
		}
		if results[i].URL != urls[i] {
			t.Errorf("results[%d].URL = %q, want %q", i, results[i].URL, urls[i])
		}
	}
}

// Ten URLs with distinguishable latencies: all ten results must be present,
// all ten processing times distinct, and the URL-to-result mapping exact.
func TestDispatch_TenURLBatch(t *testing.T) {
	const n = 10
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/page%d", i)
	}

	ff := &fakeFetcher{
		fetch: func(req *models.PerURLRequest) (*models.FetchResult, error) {
			var idx int
			fmt.Sscanf(req.URL, "https://example.com/page%d", &idx)
			return &models.FetchResult{
				URL:            req.URL,
				Content:        fmt.Sprintf("Content for page %d", idx),
				StatusCode:     200,
				ProcessingTime: 0.1 + float64(idx)*0.01,
			}, nil
		},
	}
	d := &Dispatcher{Fetcher: ff, MaxConcurrent: 4}

	results := d.Dispatch(context.Background(), resolve(t, &models.ScrapeRequest{
		URLs:    urls,
		Timeout: 15000,
	}))

	if len(results) != n {
		t.Fatalf("expected %d results, got %d", n, len(results))
	}

	times := make(map[float64]struct{}, n)
	for i, r := range results {
		if r.URL != urls[i] {
			t.Errorf("results[%d].URL = %q, want %q", i, r.URL, urls[i])
		}
		if want := fmt.Sprintf("Content for page %d", i); r.Content != want {
			t.Errorf("results[%d].Content = %q, want %q", i, r.Content, want)
		}
		times[r.ProcessingTime] = struct{}{}
	}
	if len(times) != n {
		t.Errorf("expected %d distinct processing times, got %d (duplicate results from a capture bug?)", n, len(times))
	}
}

func TestDispatch_ConcurrencyIsBounded(t *testing.T) {
	const n, limit = 8, 2
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/page%d", i)
	}

	var mu sync.Mutex
	inFlight, peak := 0, 0

	ff := &fakeFetcher{
		fetch: func(req *models.PerURLRequest) (*models.FetchResult, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return &models.FetchResult{URL: req.URL, StatusCode: 200}, nil
		},
	}
	d := &Dispatcher{Fetcher: ff, MaxConcurrent: limit}

	d.Dispatch(context.Background(), resolve(t, &models.ScrapeRequest{URLs: urls}))

	if peak > limit {
		t.Errorf("peak concurrency %d exceeded limit %d", peak, limit)
	}
}
