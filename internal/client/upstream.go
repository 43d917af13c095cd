// Package client provides the outbound HTTP client for third-party APIs.
package client

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/wangpzi/apoolo-workers/internal/config"
	"github.com/wangpzi/apoolo-workers/internal/metrics"
	"github.com/wangpzi/apoolo-workers/internal/model"
)

const userAgent = "apoolo-gateway/1.0"

// UpstreamClient sends requests to third-party APIs.
type UpstreamClient struct {
	httpClient *http.Client
	cache      *EdgeCache
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The cache and metrics parameters are optional; pass nil to disable edge caching
// or upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, cache *EdgeCache, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		cache:   cache,
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an upstream call and returns the raw response.
// The caller is responsible for closing the response body.
//
// The request context controls the lifetime of the call: when it is canceled
// (e.g. the client disconnects), the upstream request is abandoned too.
// When ur.Cache is set, GET responses are served from and stored into the
// edge cache according to the directive.
func (c *UpstreamClient) Do(ur *model.UpstreamRequest) (*model.UpstreamResponse, error) {
	cacheable := ur.Cache != nil && c.cache != nil && ur.Method == http.MethodGet
	key := cacheKey(ur.Method, ur.URL)

	if cacheable {
		entry, result := c.cache.Get(key)
		c.recordCache(ur.Upstream, result)
		if entry != nil {
			c.logger.Debug("edge cache hit", "upstream", ur.Upstream, "url", ur.URL)
			return &model.UpstreamResponse{
				StatusCode: entry.statusCode,
				Header:     entry.header.Clone(),
				Body:       io.NopCloser(bytes.NewReader(entry.body)),
				Cached:     true,
			}, nil
		}
	}

	req, err := http.NewRequestWithContext(ur.Ctx, ur.Method, ur.URL, ur.Body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if ur.Header != nil {
		req.Header = ur.Header.Clone()
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	c.logger.Debug("upstream request",
		"upstream", ur.Upstream,
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(ur.Upstream, method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(ur.Upstream, method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(ur.Upstream, method, status).Inc()
	}

	if cacheable && storable(ur.Cache, resp.StatusCode, resp.Header) {
		return c.store(key, ur, resp)
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// store buffers resp, records it in the edge cache and hands the caller a
// replayable body. Bodies larger than maxCachedBodyBytes are passed through
// without being stored.
func (c *UpstreamClient) store(key string, ur *model.UpstreamRequest, resp *http.Response) (*model.UpstreamResponse, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	if len(body) <= maxCachedBodyBytes {
		c.cache.Put(key, resp.StatusCode, resp.Header, body, ur.Cache.TTL)
		return &model.UpstreamResponse{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       io.NopCloser(bytes.NewReader(body)),
		}, nil
	}

	c.logger.Warn("upstream body too large for edge cache",
		"upstream", ur.Upstream,
		"limit_bytes", maxCachedBodyBytes,
	)
	rest, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       io.NopCloser(bytes.NewReader(append(body, rest...))),
	}, nil
}

func (c *UpstreamClient) recordCache(upstream, result string) {
	if c.metrics != nil {
		c.metrics.EdgeCacheLookups.WithLabelValues(upstream, result).Inc()
	}
}
