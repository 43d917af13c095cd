package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/wangpzi/apoolo-workers/internal/model"
	"github.com/wangpzi/apoolo-workers/internal/service"
)

// Credential patterns that may surface in upstream error text.
var (
	bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[^\s"]+`)
	secretPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-*]{4,}`)
)

// ChatHandler relays prompts to the chat service.
type ChatHandler struct {
	service *service.ChatService
	logger  *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(svc *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  logger.With("component", "chat_handler"),
	}
}

// Handle writes exactly one response: 200 {"reply": ...} when the service
// succeeds, otherwise 500 {"error": ...}.
func (h *ChatHandler) Handle(c echo.Context) error {
	req := c.Request()

	reply, err := h.service.Reply(req.Context(), req.Body)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, model.ChatReply{Reply: reply})
}

func (h *ChatHandler) mapError(c echo.Context, err error) error {
	msg := sanitizeError(err)

	h.logger.Error("chat error",
		"err", msg,
		"kind", failureKind(err),
		"path", c.Request().URL.Path,
	)

	return c.JSON(http.StatusInternalServerError, model.ErrorReply{Error: msg})
}

// failureKind classifies err for logs.
func failureKind(err error) string {
	var statusErr *service.UpstreamStatusError
	var dnsErr *net.DNSError
	var urlErr *url.Error

	switch {
	case errors.Is(err, service.ErrAPIKeyNotConfigured):
		return "config"
	case errors.As(err, &statusErr):
		return "upstream_status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &urlErr):
		return "transport"
	default:
		return "request"
	}
}

// sanitizeError redacts credentials from error messages that may echo
// request headers or upstream text.
func sanitizeError(err error) string {
	msg := bearerPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
	return secretPattern.ReplaceAllString(msg, "[REDACTED]")
}
