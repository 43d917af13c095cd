package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wangpzi/apoolo-workers/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// KeyChecker reports whether a chat credential is currently available.
type KeyChecker interface {
	KeyConfigured() bool
}

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	keys    KeyChecker
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, keys KeyChecker) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, keys: keys}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusReply struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	GraphQLUpstream   string `json:"graphql_upstream"`
	ChatUpstream      string `json:"chat_upstream"`
	ChatModel         string `json:"chat_model"`
	ChatKeyConfigured bool   `json:"chat_key_configured"`
}

// Status returns gateway status information. The chat key itself is never
// included.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusReply{
		Status:            "ok",
		Version:           string(h.version),
		GraphQLUpstream:   h.cfg.GraphQL.UpstreamURL,
		ChatUpstream:      h.cfg.Chat.BaseURL,
		ChatModel:         h.cfg.Chat.Model,
		ChatKeyConfigured: h.keys.KeyConfigured(),
	})
}
