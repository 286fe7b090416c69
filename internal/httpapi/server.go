// Package httpapi exposes the indexing and search API over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/docindex"
	"github.com/fyrsmithlabs/reposearch/internal/orchestrator"
)

// Server provides the HTTP endpoints for reposearch.
type Server struct {
	echo   *echo.Echo
	orch   *orchestrator.Orchestrator
	index  docindex.Index
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server.
func NewServer(orch *orchestrator.Orchestrator, index docindex.Index, logger *zap.Logger, cfg *Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		orch:   orch,
		index:  index,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	repos := v1.Group("/repositories/:owner/:name")
	repos.POST("/index", s.handleIndex)
	repos.POST("/refresh", s.handleRefresh)
	repos.DELETE("/index", s.handleRemove)
	repos.GET("/status", s.handleStatus)

	v1.POST("/search", s.handleSearch)
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Text         string              `json:"text"`
	Type         docindex.SearchType `json:"type,omitempty"`
	Filters      []docindex.Filter   `json:"filters,omitempty"`
	Top          int                 `json:"top,omitempty"`
	Skip         int                 `json:"skip,omitempty"`
	RepositoryID string              `json:"repositoryId,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// repositoryID joins the owner and name path parameters.
func repositoryID(c echo.Context) string {
	return c.Param("owner") + "/" + c.Param("name")
}

// handleIndex starts indexing in the background and returns the claimed or
// live status.
func (s *Server) handleIndex(c echo.Context) error {
	force := c.QueryParam("force") == "true"
	status := s.orch.StartIndexRepository(repositoryID(c), force)
	return c.JSON(http.StatusAccepted, status)
}

func (s *Server) handleRefresh(c echo.Context) error {
	status := s.orch.StartRefreshRepositoryIndex(repositoryID(c))
	return c.JSON(http.StatusAccepted, status)
}

func (s *Server) handleRemove(c echo.Context) error {
	status := s.orch.RemoveRepositoryFromIndex(c.Request().Context(), repositoryID(c))
	if status.Status == orchestrator.StatusError {
		return c.JSON(http.StatusInternalServerError, status)
	}
	if !statusTerminal(status) {
		// Removal is refused while an operation is running.
		return c.JSON(http.StatusConflict, status)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleStatus(c echo.Context) error {
	status := s.orch.GetIndexingStatus(c.Request().Context(), repositoryID(c))
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	query := docindex.Query{
		Text:    req.Text,
		Type:    req.Type,
		Filters: req.Filters,
		Top:     req.Top,
		Skip:    req.Skip,
	}

	var (
		results *docindex.Results
		err     error
	)
	if req.RepositoryID != "" {
		results, err = s.index.SearchRepository(c.Request().Context(), req.RepositoryID, query)
	} else {
		results, err = s.index.Search(c.Request().Context(), query)
	}
	if err != nil {
		if errors.Is(err, docindex.ErrInvalidQuery) || errors.Is(err, docindex.ErrUnsupportedOperator) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	return c.JSON(http.StatusOK, results)
}

func statusTerminal(s *orchestrator.IndexStatus) bool {
	switch s.Status {
	case orchestrator.StatusInProgress, orchestrator.StatusRefreshing:
		return false
	default:
		return true
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
