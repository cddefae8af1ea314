package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/use-agent/renderd/models"
)

// Fetcher performs the fetch for exactly one fully resolved per-URL
// request. Implementations may be slow and may fail independently; the
// dispatcher never lets one failure abort its siblings.
type Fetcher interface {
	Fetch(ctx context.Context, req *models.PerURLRequest) (*models.FetchResult, error)
}

// Dispatcher fans a resolved request sequence out to independent Fetch
// invocations and collects the outcomes back into input order.
type Dispatcher struct {
	Fetcher Fetcher

	// MaxConcurrent bounds the number of in-flight fetches. <= 0 means 5.
	MaxConcurrent int
}

// Dispatch runs one fetch per request and returns outcomes indexed exactly
// like the input, regardless of completion order.
//
// Each goroutine receives its index and its own PerURLRequest value as
// arguments at launch time. Nothing inside a goroutine reads the loop
// cursor, so a fetch can never observe another entry's parameters even
// though all goroutines are constructed in the same loop.
//
// A Fetch error becomes a failure FetchResult at that index; it is never
// dropped and never cancels sibling fetches.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs []models.PerURLRequest) []*models.FetchResult {
	maxConcurrent := d.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	sem := make(chan struct{}, maxConcurrent)

	results := make([]*models.FetchResult, len(reqs))
	var wg sync.WaitGroup

	for i := range reqs {
		wg.Add(1)
		go func(idx int, r models.PerURLRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = d.fetchOne(ctx, &r)
		}(i, reqs[i])
	}

	wg.Wait()
	return results
}

// fetchOne runs a single fetch and converts any error into a failure
// result carrying the originating URL.
func (d *Dispatcher) fetchOne(ctx context.Context, req *models.PerURLRequest) *models.FetchResult {
	start := time.Now()

	result, err := d.Fetcher.Fetch(ctx, req)
	if err != nil {
		var scrapeErr *models.ScrapeError
		if !errors.As(err, &scrapeErr) {
			scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
		}
		return &models.FetchResult{
			Success:        false,
			URL:            req.URL,
			ProcessingTime: time.Since(start).Seconds(),
			FetchMethod:    req.FetchMode,
			Error:          scrapeErr.ToDetail(),
		}
	}

	result.Success = true
	if result.URL == "" {
		result.URL = req.URL
	}
	if result.ProcessingTime == 0 {
		result.ProcessingTime = time.Since(start).Seconds()
	}
	return result
}
