package handler

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed static/index.html
var chatPage []byte

// PageHandler serves the chat UI.
type PageHandler struct{}

// NewPageHandler creates a PageHandler.
func NewPageHandler() *PageHandler {
	return &PageHandler{}
}

// Handle writes the embedded page.
func (h *PageHandler) Handle(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, chatPage)
}
