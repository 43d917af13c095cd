package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wangpzi/apoolo-workers/internal/config"
	"github.com/wangpzi/apoolo-workers/internal/metrics"
)

// Route is the handling strategy chosen for a request.
type Route int

const (
	RouteNotFound Route = iota
	RouteStaticPage
	RouteSchemaQuery
	RouteJSONProxy
)

func (r Route) String() string {
	switch r {
	case RouteStaticPage:
		return "static_page"
	case RouteSchemaQuery:
		return "schema_query"
	case RouteJSONProxy:
		return "json_proxy"
	default:
		return "not_found"
	}
}

// Gateway paths.
const (
	PathPage    = "/"
	PathGraphQL = "/graphql"
	PathChat    = "/api/chat"
)

// Decide maps a method and path to a Route. Preflight requests never reach
// it; the CORS middleware answers them first.
func Decide(method, path string) Route {
	switch {
	case path == PathGraphQL:
		return RouteSchemaQuery
	case path == PathPage && method == http.MethodGet:
		return RouteStaticPage
	case path == PathChat && method == http.MethodPost:
		return RouteJSONProxy
	default:
		return RouteNotFound
	}
}

// Dispatcher sends each request to the handler its Route names.
type Dispatcher struct {
	page    *PageHandler
	graphql *GraphQLHandler
	chat    *ChatHandler
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(page *PageHandler, gql *GraphQLHandler, chat *ChatHandler) *Dispatcher {
	return &Dispatcher{page: page, graphql: gql, chat: chat}
}

// Handle decides the route once and runs its handler.
func (d *Dispatcher) Handle(c echo.Context) error {
	req := c.Request()
	switch Decide(req.Method, req.URL.Path) {
	case RouteStaticPage:
		return d.page.Handle(c)
	case RouteSchemaQuery:
		return d.graphql.Handle(c)
	case RouteJSONProxy:
		return d.chat.Handle(c)
	default:
		return NotFound(c)
	}
}

// NotFound writes the plain-text 404 response.
func NotFound(c echo.Context) error {
	return c.String(http.StatusNotFound, "Not Found")
}

// RegisterRoutes wires the operational endpoints and mounts the dispatcher
// as the catch-all for everything else.
func RegisterRoutes(e *echo.Echo, d *Dispatcher, health *HealthHandler, cfg *config.Config, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/", d.Handle)
	e.Any("/*", d.Handle)
}
