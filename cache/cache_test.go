package cache

import (
	"testing"
	"time"

	"github.com/use-agent/renderd/models"
)

func TestCache_HitWithinMaxAge(t *testing.T) {
	c := New(10)
	req := &models.PerURLRequest{URL: "https://example.com", FetchMode: "browser"}
	key := Key(req)

	c.Set(key, &models.FetchResult{URL: req.URL, Content: "cached", StatusCode: 200})

	got, hit := c.Get(key, 60000)
	if !hit {
		t.Fatal("expected a cache hit")
	}
	if got.Content != "cached" {
		t.Errorf("wrong cached content: %q", got.Content)
	}
}

func TestCache_MissWhenMaxAgeZero(t *testing.T) {
	c := New(10)
	key := Key(&models.PerURLRequest{URL: "https://example.com"})
	c.Set(key, &models.FetchResult{URL: "https://example.com"})

	if _, hit := c.Get(key, 0); hit {
		t.Error("max_age 0 must disable the cache")
	}
}

func TestCache_GetReturnsACopy(t *testing.T) {
	c := New(10)
	key := Key(&models.PerURLRequest{URL: "https://example.com"})
	c.Set(key, &models.FetchResult{URL: "https://example.com", Content: "original"})

	got, _ := c.Get(key, 60000)
	got.CacheStatus = "hit"

	again, _ := c.Get(key, 60000)
	if again.CacheStatus != "" {
		t.Error("annotating a cached result leaked back into the store")
	}
}

func TestCache_KeyVariesWithFetchParams(t *testing.T) {
	base := models.PerURLRequest{URL: "https://example.com", FetchMode: "browser"}

	httpMode := base
	httpMode.FetchMode = "http"

	waited := base
	waited.WaitAfterLoad = 500 * time.Millisecond

	slower := base
	slower.Timeout = 60 * time.Second

	authed := base
	authed.Headers = map[string]string{"Authorization": "Bearer token"}

	localized := base
	localized.Headers = map[string]string{"Accept-Language": "de-DE"}

	if Key(&base) == Key(&httpMode) {
		t.Error("fetch_mode must be part of the cache key")
	}
	if Key(&base) == Key(&waited) {
		t.Error("wait_after_load must be part of the cache key")
	}
	if Key(&base) == Key(&slower) {
		t.Error("timeout must be part of the cache key")
	}
	if Key(&base) == Key(&authed) {
		t.Error("headers must be part of the cache key")
	}
	if Key(&authed) == Key(&localized) {
		t.Error("different header sets must produce different cache keys")
	}
}

// Equal header maps must hash identically regardless of insertion order,
// otherwise the same request would miss its own cached result.
func TestCache_KeyIsStableAcrossHeaderOrder(t *testing.T) {
	a := models.PerURLRequest{
		URL: "https://example.com",
		Headers: map[string]string{
			"Accept-Language": "en-US",
			"Authorization":   "Bearer token",
			"X-Custom":        "1",
		},
	}
	b := models.PerURLRequest{
		URL: "https://example.com",
		Headers: map[string]string{
			"X-Custom":        "1",
			"Authorization":   "Bearer token",
			"Accept-Language": "en-US",
		},
	}

	if Key(&a) != Key(&b) {
		t.Error("equal header maps produced different cache keys")
	}
}

func TestCache_EvictsAtCapacity(t *testing.T) {
	c := New(2)
	for _, u := range []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"} {
		c.Set(Key(&models.PerURLRequest{URL: u}), &models.FetchResult{URL: u})
	}

	c.mu.RLock()
	size := len(c.store)
	c.mu.RUnlock()
	if size > 2 {
		t.Errorf("cache grew past capacity: %d entries", size)
	}
}
