// Package routes assembles the admin HTTP API.
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/klevu/module-m2-indexing-sub002/pkg/health"
	"github.com/klevu/module-m2-indexing-sub002/pkg/middleware"
	"github.com/klevu/module-m2-indexing-sub002/pkg/routes/discovery"
	"github.com/klevu/module-m2-indexing-sub002/pkg/routes/history"
	"github.com/klevu/module-m2-indexing-sub002/pkg/routes/syncrun"
)

// Handlers groups the route handlers of the API. A nil handler leaves
// its routes unregistered.
type Handlers struct {
	Discovery *discovery.Handler
	Sync      *syncrun.Handler
	History   *history.Handler
	Health    *health.Checker
}

// NewServer returns an echo instance with middleware and every route.
func NewServer(serviceName string, handlers Handlers, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if handlers.Health != nil {
		handlers.Health.RegisterRoutes(e)
	}
	if handlers.Discovery != nil {
		handlers.Discovery.Register(e.Group("/discovery"))
	}
	if handlers.Sync != nil {
		handlers.Sync.Register(e.Group("/sync"))
	}
	if handlers.History != nil {
		handlers.History.Register(e.Group("/history"))
	}
	return e
}
