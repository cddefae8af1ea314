package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/renderd/batch"
	"github.com/use-agent/renderd/cache"
	"github.com/use-agent/renderd/models"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
// The endpoint accepts both request shapes:
//   - {"url": ...}  → a bare result object
//   - {"urls": [...]} → an ordered result array, one entry per URL,
//     failures embedded in place (always HTTP 200)
//
// Orchestration is delegated to batch.Service: normalize → dispatch →
// order-preserving aggregation. The handler only decides HTTP status and
// wires the single-URL result cache.
func Scrape(svc *batch.Service, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.FetchResult{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		// Cache lookup applies to the single-URL shape only. A normalize
		// failure here is ignored: Process reports it authoritatively below.
		var cacheKey string
		if cc != nil && !req.IsBatch() && req.MaxAge > 0 {
			if resolved, err := batch.Normalize(&req); err == nil {
				cacheKey = cache.Key(&resolved[0])
				if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
					cached.CacheStatus = "hit"
					c.JSON(http.StatusOK, cached)
					return
				}
			}
		}

		out, err := svc.Process(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		// Multi-URL shape: always a full-length array, HTTP 200, per-item
		// failures embedded at their own index.
		if out.Single == nil {
			c.JSON(http.StatusOK, out.Results)
			return
		}

		// Single-URL shape: a fetch failure is the whole request's outcome.
		if !out.Single.Success {
			c.JSON(codeToStatus(out.Single.Error.Code), out.Single)
			return
		}

		if cc != nil && cacheKey != "" {
			stored := *out.Single
			cc.Set(cacheKey, &stored)
			out.Single.CacheStatus = "miss"
		}

		c.JSON(http.StatusOK, out.Single)
	}
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(codeToStatus(scrapeErr.Code), models.FetchResult{
		Success: false,
		Error:   scrapeErr.ToDetail(),
	})
}

// codeToStatus translates error codes to HTTP status codes.
func codeToStatus(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
