package batch

import (
	"context"
	"log/slog"

	"github.com/use-agent/renderd/models"
)

// Outcome is the shape-aware result of one scrape request. Exactly one
// field is set: Single for the single-URL shape, Results for the multi-URL
// shape (full length, input order, failures included in place).
type Outcome struct {
	Single  *models.FetchResult
	Results []*models.FetchResult
}

// Service runs the whole pipeline for one request:
// normalize -> dispatch -> order-preserving aggregation.
type Service struct {
	dispatcher Dispatcher
}

// NewService creates a Service dispatching to the given fetcher with at
// most maxConcurrent fetches in flight.
func NewService(f Fetcher, maxConcurrent int) *Service {
	return &Service{
		dispatcher: Dispatcher{Fetcher: f, MaxConcurrent: maxConcurrent},
	}
}

// Process validates and runs a scrape request. A validation error returns
// before any fetch is dispatched. Per-URL fetch failures never surface as
// an error here; they are embedded in the outcome at their own index.
func (s *Service) Process(ctx context.Context, req *models.ScrapeRequest) (*Outcome, error) {
	resolved, err := Normalize(req)
	if err != nil {
		return nil, err
	}

	results := s.dispatcher.Dispatch(ctx, resolved)

	if !req.IsBatch() {
		return &Outcome{Single: results[0]}, nil
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	slog.Info("batch scrape finished",
		"total", len(results),
		"succeeded", succeeded,
		"failed", len(results)-succeeded,
	)

	return &Outcome{Results: results}, nil
}
