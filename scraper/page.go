package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/renderd/engine"
	"github.com/use-agent/renderd/models"
	"github.com/ysmood/gson"
)

// Fetch performs the fetch for exactly one resolved per-URL request. It is
// the batch dispatcher's Fetcher implementation.
//
// The request's own timeout bounds only this invocation; a concurrent fetch
// in the same batch runs under its own deadline.
func (s *Scraper) Fetch(ctx context.Context, req *models.PerURLRequest) (*models.FetchResult, error) {
	if req.FetchMode == "http" {
		return s.fetchHTTP(ctx, req)
	}
	return s.fetchBrowser(ctx, req)
}

// fetchHTTP delegates to the pure-HTTP engine. wait_after_load is a
// rendering concern and does not apply here.
func (s *Scraper) fetchHTTP(ctx context.Context, req *models.PerURLRequest) (*models.FetchResult, error) {
	start := time.Now()

	result, err := s.httpEngine.Fetch(ctx, &engine.FetchRequest{
		URL:     req.URL,
		Headers: req.Headers,
		Timeout: s.clampTimeout(req.Timeout),
	})
	if err != nil {
		return nil, categorizeError(err, "http fetch failed")
	}

	return &models.FetchResult{
		URL:            req.URL,
		Content:        result.HTML,
		Title:          result.Title,
		FinalURL:       result.FinalURL,
		StatusCode:     result.StatusCode,
		ProcessingTime: time.Since(start).Seconds(),
		FetchMethod:    "http",
	}, nil
}

// fetchBrowser drives a pooled browser tab through one navigation.
//
// Lifecycle:
//  1. Timeout guard       – hard deadline on the entire operation
//  2. Acquire page        – borrow a tab from the pool (or create one)
//  3. DEFER: cleanup      – about:blank + return to pool (leak prevention)
//  4. Stealth injection   – mask navigator.webdriver etc. (before navigation!)
//  5. Extra headers       – the request's header map, verbatim
//  6. Hijack mount        – block configured resource types (before navigation!)
//  7. Navigate + settle   – DOM-stable wait, then the requested wait_after_load
//  8. Extract             – status code via the Performance API, page HTML, title
//
// Steps 4-6 must precede navigation: stealth JS, header overrides, and
// resource blocking only affect navigations started after they are installed.
// Step 3's about:blank uses the original page reference (without the request
// context), so cleanup succeeds even if the request deadline has expired.
func (s *Scraper) fetchBrowser(ctx context.Context, req *models.PerURLRequest) (*models.FetchResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.clampTimeout(req.Timeout))
	defer cancel()

	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	page, acquireErr := s.pagePool.Get(func() (*rod.Page, error) {
		return s.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			acquireErr,
		)
	}

	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		s.pagePool.Put(page)
	}()

	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	if len(req.Headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(req.Headers),
		}.Call(page)
		// Extra headers persist on the tab across navigations. Clear them
		// before the pooled page is reused, or the next request on this
		// tab would inherit this request's header set.
		defer func() {
			_ = proto.NetworkSetExtraHTTPHeaders{
				Headers: proto.NetworkHeaders{},
			}.Call(page)
		}()
	}

	router := setupHijack(page, s.scraperCfg.BlockedResourceTypes)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	if navErr := p.Navigate(req.URL); navErr != nil {
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}

	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	// Hold the page open for the requested settle time, still honoring
	// the request deadline.
	if req.WaitAfterLoad > 0 {
		select {
		case <-ctx.Done():
			return nil, categorizeError(ctx.Err(), "wait_after_load interrupted")
		case <-time.After(req.WaitAfterLoad):
		}
	}

	// The Performance API exposes the navigation status code without any
	// CDP event listeners.
	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	content, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}

	title := ""
	if res, err := p.Eval(`() => document.title`); err == nil {
		title = res.Value.Str()
	}
	finalURL := ""
	if res, err := p.Eval(`() => window.location.href`); err == nil {
		finalURL = res.Value.Str()
	}
	if finalURL == "" {
		finalURL = req.URL
	}

	return &models.FetchResult{
		URL:            req.URL,
		Content:        content,
		Title:          title,
		FinalURL:       finalURL,
		StatusCode:     statusCode,
		ProcessingTime: time.Since(start).Seconds(),
		FetchMethod:    "browser",
	}, nil
}

// clampTimeout caps a client-supplied timeout at the configured maximum.
func (s *Scraper) clampTimeout(timeout time.Duration) time.Duration {
	if s.scraperCfg.MaxTimeout > 0 && timeout > s.scraperCfg.MaxTimeout {
		return s.scraperCfg.MaxTimeout
	}
	return timeout
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScrapeErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
