package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	"github.com/labstack/echo/v4"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/wangpzi/apoolo-workers/internal/config"
	"github.com/wangpzi/apoolo-workers/internal/graph"
	"github.com/wangpzi/apoolo-workers/internal/metrics"
)

const consoleTitle = "Apoolo GraphQL"

// GraphQLHandler serves the query endpoint and its console.
type GraphQLHandler struct {
	exec    *graph.Executor
	console []byte
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewGraphQLHandler creates a GraphQLHandler. The console page is rendered
// once here; it is nil when the console is disabled. m may be nil.
func NewGraphQLHandler(exec *graph.Executor, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*GraphQLHandler, error) {
	h := &GraphQLHandler{
		exec:    exec,
		logger:  logger.With("component", "graphql_handler"),
		metrics: m,
	}
	if cfg.GraphQL.ConsoleEnabled() {
		page, err := graph.RenderConsole(consoleTitle, PathGraphQL, graph.DefaultQuery)
		if err != nil {
			return nil, err
		}
		h.console = page
	}
	return h, nil
}

// Handle serves the console for a plain GET and executes a query otherwise.
// Malformed requests get 400; anything that reaches the executor gets 200
// with the {data, errors} envelope.
func (h *GraphQLHandler) Handle(c echo.Context) error {
	req := c.Request()

	if req.Method == http.MethodGet && !req.URL.Query().Has("query") {
		if h.console == nil {
			return NotFound(c)
		}
		return c.HTMLBlob(http.StatusOK, h.console)
	}

	params, err := readParams(req)
	if err != nil {
		return h.badRequest(c, err.Error())
	}
	if strings.TrimSpace(params.Query) == "" {
		return h.badRequest(c, "must provide query string")
	}

	resp := h.exec.Execute(req.Context(), params)
	if n := len(resp.Errors); n > 0 {
		h.logger.Debug("query completed with errors",
			"operation", params.OperationName,
			"errors", n,
			"first", resp.Errors[0].Message,
		)
		if h.metrics != nil {
			h.metrics.GraphQLErrors.Add(float64(n))
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *GraphQLHandler) badRequest(c echo.Context, msg string) error {
	if h.metrics != nil {
		h.metrics.GraphQLErrors.Inc()
	}
	return c.JSON(http.StatusBadRequest, &graphql.Response{
		Errors: gqlerror.List{gqlerror.Errorf("%s", msg)},
	})
}

// readParams extracts the request parameters from the URL for GET and from
// the body otherwise. Bodies are JSON unless sent as application/graphql.
func readParams(req *http.Request) (*graphql.RawParams, error) {
	if req.Method == http.MethodGet {
		q := req.URL.Query()
		params := &graphql.RawParams{
			Query:         q.Get("query"),
			OperationName: q.Get("operationName"),
		}
		if raw := q.Get("variables"); raw != "" {
			if err := decodeJSON(strings.NewReader(raw), &params.Variables); err != nil {
				return nil, fmt.Errorf("variables are invalid JSON: %w", err)
			}
		}
		return params, nil
	}

	mediaType, _, _ := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
	if mediaType == "application/graphql" {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return &graphql.RawParams{Query: string(body)}, nil
	}

	var params graphql.RawParams
	if err := decodeJSON(req.Body, &params); err != nil {
		return nil, fmt.Errorf("body could not be decoded: %w", err)
	}
	return &params, nil
}

// decodeJSON reads exactly one JSON value. Numbers stay json.Number so
// integral ids survive coercion.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
