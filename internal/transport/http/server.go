// Package http is the HTTP/SSE Front: the six endpoints spec.md §6 names,
// grounded on the teacher's internal/transport/http/server.go and v1
// handler layout, trimmed from the teacher's external+internal server
// split to the single headless service this system exposes.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/orchestrator/internal/config"
	"github.com/xiaot623/gogo/orchestrator/internal/graph"
	"github.com/xiaot623/gogo/orchestrator/internal/repository"
)

// NewServer builds the Echo server exposing the market-insight API.
func NewServer(store *repository.Store, engine *graph.Engine, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h := &Handler{store: store, engine: engine, cfg: cfg, runs: newRunTracker()}
	h.RegisterRoutes(e)

	return e
}
