package client

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wangpzi/apoolo-workers/internal/config"
	"github.com/wangpzi/apoolo-workers/internal/model"
)

// maxCachedBodyBytes bounds a single stored response body.
const maxCachedBodyBytes = 4 << 20

// Lookup results reported by EdgeCache.Get.
const (
	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheStale = "stale"
)

// cachedResponse is a fully buffered upstream response.
type cachedResponse struct {
	statusCode int
	header     http.Header
	body       []byte
	expiresAt  time.Time
}

// EdgeCache stores upstream responses on behalf of cache directives.
// Entries carry their own expiry since each directive names its own TTL.
type EdgeCache struct {
	entries *lru.Cache[string, *cachedResponse]
	now     func() time.Time
}

// NewEdgeCache creates an EdgeCache holding at most cfg.Cache.Size entries.
func NewEdgeCache(cfg *config.Config) (*EdgeCache, error) {
	size := cfg.Cache.Size
	if size <= 0 {
		size = 1024
	}
	entries, err := lru.New[string, *cachedResponse](size)
	if err != nil {
		return nil, fmt.Errorf("create edge cache: %w", err)
	}
	return &EdgeCache{entries: entries, now: time.Now}, nil
}

// Get returns a fresh entry for key. Expired entries are evicted and reported
// as stale.
func (c *EdgeCache) Get(key string) (*cachedResponse, string) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, cacheMiss
	}
	if !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, cacheStale
	}
	return entry, cacheHit
}

// Put stores a buffered response for ttl.
func (c *EdgeCache) Put(key string, statusCode int, header http.Header, body []byte, ttl time.Duration) {
	c.entries.Add(key, &cachedResponse{
		statusCode: statusCode,
		header:     header.Clone(),
		body:       body,
		expiresAt:  c.now().Add(ttl),
	})
}

// Len returns the number of stored entries, fresh or not.
func (c *EdgeCache) Len() int {
	return c.entries.Len()
}

// cacheKey identifies a cacheable upstream call.
func cacheKey(method, url string) string {
	return method + " " + url
}

// storable reports whether a response may be stored under policy.
// Only successful responses are stored. Without CacheEverything the upstream's
// own no-store/private directives and non-JSON content types are respected.
func storable(policy *model.CachePolicy, statusCode int, header http.Header) bool {
	if policy == nil || policy.TTL <= 0 {
		return false
	}
	if statusCode < 200 || statusCode > 299 {
		return false
	}
	if policy.CacheEverything {
		return true
	}

	cc := strings.ToLower(header.Get("Cache-Control"))
	if strings.Contains(cc, "no-store") || strings.Contains(cc, "private") {
		return false
	}
	ct := strings.ToLower(header.Get("Content-Type"))
	return strings.HasPrefix(ct, "application/json")
}
