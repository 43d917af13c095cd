// Package service implements the gateway logic behind the HTTP handlers:
// pokemon lookups for the query endpoint and chat completions.
package service

import (
	"fmt"
	"io"
	"strings"
)

// maxErrorBodyBytes bounds how much of an upstream error body is kept.
const maxErrorBodyBytes = 4 << 10

// UpstreamStatusError is returned when an upstream answers with a non-2xx status.
type UpstreamStatusError struct {
	Upstream   string
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s upstream returned HTTP %d", e.Upstream, e.StatusCode)
	}
	return fmt.Sprintf("%s upstream returned HTTP %d: %s", e.Upstream, e.StatusCode, e.Body)
}

// newUpstreamStatusError reads the error body as text.
func newUpstreamStatusError(upstream string, status int, body io.Reader) *UpstreamStatusError {
	text, _ := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	return &UpstreamStatusError{
		Upstream:   upstream,
		StatusCode: status,
		Body:       strings.TrimSpace(string(text)),
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
