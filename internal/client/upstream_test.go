package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wangpzi/apoolo-workers/internal/config"
	"github.com/wangpzi/apoolo-workers/internal/metrics"
	"github.com/wangpzi/apoolo-workers/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
		Cache: config.CacheConfig{Size: 16},
	}
}

func newTestClient(t *testing.T, m *metrics.Metrics) (*UpstreamClient, *EdgeCache) {
	t.Helper()
	cfg := testConfig()
	cache, err := NewEdgeCache(cfg)
	if err != nil {
		t.Fatalf("NewEdgeCache: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUpstreamClient(cfg, logger, cache, m), cache
}

func readBody(t *testing.T, resp *model.UpstreamResponse) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(body)
}

func TestUpstreamClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != userAgent {
			t.Errorf("User-Agent = %q, want %q", ua, userAgent)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, nil)

	resp, err := c.Do(&model.UpstreamRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		URL:    srv.URL + "/test",
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := readBody(t, resp); got != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", got, `{"status":"ok"}`)
	}
}

func TestUpstreamClient_Do_Error(t *testing.T) {
	cfg := testConfig()
	cfg.Upstream.TimeoutSeconds = 1
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewUpstreamClient(cfg, logger, nil, nil)

	_, err := c.Do(&model.UpstreamRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		URL:    "http://127.0.0.1:1/nonexistent",
	})
	if err == nil {
		t.Fatal("Do() expected error for unreachable host, got nil")
	}
}

func TestUpstreamClient_Do_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simulate a slow upstream; the request should be canceled before this completes.
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.Do(&model.UpstreamRequest{
		Ctx:    ctx,
		Method: http.MethodGet,
		URL:    srv.URL + "/slow",
	})
	if err == nil {
		t.Fatal("Do() expected error for canceled context, got nil")
	}
}

func TestUpstreamClient_Do_CacheDirective(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		// Deliberately not JSON: the directive caches regardless of content type.
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte("bulbasaur"))
	}))
	defer srv.Close()

	m := metrics.New()
	c, _ := newTestClient(t, m)
	policy := &model.CachePolicy{TTL: time.Minute, CacheEverything: true}

	for i := range 3 {
		resp, err := c.Do(&model.UpstreamRequest{
			Ctx:      context.Background(),
			Method:   http.MethodGet,
			URL:      srv.URL + "/pokemon/1",
			Upstream: "pokeapi",
			Cache:    policy,
		})
		if err != nil {
			t.Fatalf("Do() #%d error = %v", i, err)
		}
		if i > 0 && !resp.Cached {
			t.Errorf("Do() #%d Cached = false, want true", i)
		}
		if got := readBody(t, resp); got != "bulbasaur" {
			t.Errorf("Do() #%d body = %q, want %q", i, got, "bulbasaur")
		}
	}

	if n := hits.Load(); n != 1 {
		t.Errorf("upstream hits = %d, want 1", n)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	results := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "apoolo_gateway_edge_cache_lookups_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "result" {
					results[lp.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	if results["miss"] != 1 || results["hit"] != 2 {
		t.Errorf("cache lookups = %v, want miss=1 hit=2", results)
	}
}

func TestUpstreamClient_Do_DistinctURLsNotShared(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, nil)
	policy := &model.CachePolicy{TTL: time.Minute, CacheEverything: true}

	for _, path := range []string{"/pokemon/1", "/pokemon/2"} {
		resp, err := c.Do(&model.UpstreamRequest{
			Ctx:    context.Background(),
			Method: http.MethodGet,
			URL:    srv.URL + path,
			Cache:  policy,
		})
		if err != nil {
			t.Fatalf("Do(%s) error = %v", path, err)
		}
		if got := readBody(t, resp); got != path {
			t.Errorf("body = %q, want %q", got, path)
		}
	}

	if n := hits.Load(); n != 2 {
		t.Errorf("upstream hits = %d, want 2", n)
	}
}

func TestUpstreamClient_Do_ErrorsNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "Not Found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, cache := newTestClient(t, nil)
	policy := &model.CachePolicy{TTL: time.Minute, CacheEverything: true}

	for range 2 {
		resp, err := c.Do(&model.UpstreamRequest{
			Ctx:    context.Background(),
			Method: http.MethodGet,
			URL:    srv.URL + "/pokemon/0",
			Cache:  policy,
		})
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		_ = readBody(t, resp)
	}

	if n := hits.Load(); n != 2 {
		t.Errorf("upstream hits = %d, want 2", n)
	}
	if cache.Len() != 0 {
		t.Errorf("cache.Len() = %d, want 0", cache.Len())
	}
}

func TestUpstreamClient_Do_NoDirectiveBypassesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, nil)

	for range 2 {
		resp, err := c.Do(&model.UpstreamRequest{
			Ctx:    context.Background(),
			Method: http.MethodGet,
			URL:    srv.URL,
		})
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		_ = readBody(t, resp)
	}

	if n := hits.Load(); n != 2 {
		t.Errorf("upstream hits = %d, want 2", n)
	}
}
