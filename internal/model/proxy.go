// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"
	"time"
)

// UpstreamRequest describes one outbound call to a third-party API.
type UpstreamRequest struct {
	Ctx    context.Context
	Method string
	URL    string
	Header http.Header
	Body   io.Reader

	// Upstream names the API for logs and metrics ("pokeapi", "chat").
	Upstream string

	// Cache is an optional edge-cache directive. Nil means the call always
	// reaches the upstream.
	Cache *CachePolicy
}

// UpstreamResponse is the upstream reply. The caller must close Body.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser

	// Cached reports whether the response was served from the edge cache.
	Cached bool
}

// CachePolicy is a per-request edge-cache directive.
type CachePolicy struct {
	// TTL is how long a stored response stays fresh.
	TTL time.Duration

	// CacheEverything stores the response regardless of its content type
	// and of any Cache-Control directives the upstream sent.
	CacheEverything bool
}
