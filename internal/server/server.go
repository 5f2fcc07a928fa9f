package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quizchain/quizchain/config"
	"github.com/quizchain/quizchain/internal/solver"
	"github.com/quizchain/quizchain/internal/telemetry"
)

// loopRunner runs one solve request to a terminal outcome. Satisfied by
// *solver.Loop; tests substitute a stub.
type loopRunner interface {
	Solve(ctx context.Context, req solver.SolveRequest) solver.SolveResult
}

// Server exposes the solving loop over HTTP.
type Server struct {
	cfg    *config.Config
	loop   loopRunner
	tele   *telemetry.Telemetry
	logger *log.Logger
}

// New wires a Server around a solving loop.
func New(cfg *config.Config, loop loopRunner, tele *telemetry.Telemetry) *Server {
	return &Server{
		cfg:    cfg,
		loop:   loop,
		tele:   tele,
		logger: log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
}

// Run builds the echo instance, registers routes and blocks serving.
func (s *Server) Run(addr string) error {
	e := s.buildEcho()
	s.logger.Printf("listening on %s", addr)
	return e.Start(addr)
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/quiz", s.handleSolve)
	api.GET("/config", s.handleConfig)
	api.GET("/stats", s.handleStats)

	return e
}

func (s *Server) handleConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, ConfigView{
		TotalBudget: s.cfg.Solver.TotalBudget.String(),
		MaxSteps:    s.cfg.Solver.MaxSteps,
		Chain:       s.cfg.LLM.Chain,
		MaxFiles:    s.cfg.Ingest.MaxFiles,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	if s.tele == nil {
		return echo.NewHTTPError(http.StatusNotFound, "telemetry disabled")
	}
	snap := s.tele.Snapshot()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total_requests":      snap.TotalRequests,
		"requests_by_outcome": snap.RequestsByOutcome,
		"total_steps":         snap.TotalSteps,
		"model_calls":         snap.ModelCalls,
		"model_failures":      snap.ModelFailures,
		"render_escalations":  snap.RenderEscalations,
		"average_elapsed_ms":  snap.AverageElapsed.Milliseconds(),
	})
}
