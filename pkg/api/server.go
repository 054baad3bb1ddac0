// Package api exposes the active pair session over HTTP: a gin REST API,
// a websocket hub pushing series updates, and a gRPC health service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/websocket"

	"github.com/yourusername/quantstream/pkg/client"
	"github.com/yourusername/quantstream/pkg/model"
	"github.com/yourusername/quantstream/pkg/series"
	"github.com/yourusername/quantstream/pkg/session"
	"github.com/yourusername/quantstream/pkg/stats"
)

// Controller is the part of session.Manager the API drives.
type Controller interface {
	Activate(ctx context.Context, sel model.Selection) error
	Reload(ctx context.Context) error
	Retry(ctx context.Context) error
	Deactivate()
	Status() session.Status
}

// Options configures a Server.
type Options struct {
	Host    string
	Port    int
	Symbols []string          // selectable symbols, presets included
	Pairs   []model.Selection // preset pairs
}

// Server provides the HTTP API and the websocket endpoint.
type Server struct {
	ctrl    Controller
	store   *series.Store
	hub     *Hub
	opts    Options
	engine  *gin.Engine
	server  *http.Server
	started time.Time

	mu        sync.RWMutex
	commandMu sync.Mutex // serializes session commands
	running   bool
}

// APIResponse is the standard API response format
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SeriesResponse is the body of GET /api/v1/series?metric=.
type SeriesResponse struct {
	Session string               `json:"session"`
	Metric  model.Metric         `json:"metric"`
	Points  []model.Point        `json:"points"`
	Stats   seriesStats          `json:"stats"`
	Bounds  map[string]time.Time `json:"bounds,omitempty"`
}

type seriesStats struct {
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Variance float64 `json:"variance"`
	Count    int     `json:"count"`
}

// NewServer creates the API server. hub may be nil, in which case /ws is
// not mounted and series are read from store directly.
func NewServer(ctrl Controller, store *series.Store, hub *Hub, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		ctrl:    ctrl,
		store:   store,
		hub:     hub,
		opts:    opts,
		started: time.Now(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/symbols", s.handleSymbols)
		v1.GET("/session", s.handleStatus)
		v1.POST("/session", s.handleActivate)
		v1.DELETE("/session", s.handleDeactivate)
		v1.POST("/session/reload", s.handleReload)
		v1.POST("/session/retry", s.handleRetry)
		v1.GET("/series", s.handleSeries)
	}
	if hub != nil {
		r.GET("/ws", gin.WrapH(websocket.Handler(hub.HandleWebSocket)))
	}
	s.engine = r

	// No WriteTimeout: it would also cut hijacked websocket connections.
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the API server
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("API server already running")
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[API] Starting HTTP API server on %s", s.server.Addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[API] Error starting server: %v", err)
		}
	}()
	return nil
}

// Stop stops the API server
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	log.Println("[API] Stopping HTTP API server...")
	if err := s.server.Close(); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	log.Println("[API] HTTP API server stopped")
	return nil
}

// IsRunning returns whether the API server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// handleHealth handles GET /api/v1/health
func (s *Server) handleHealth(c *gin.Context) {
	st := s.ctrl.Status()
	health := map[string]interface{}{
		"status":  "ok",
		"state":   st.State,
		"session": st.Session,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	if s.hub != nil {
		health["ws_clients"] = s.hub.Clients()
		health["ws_dropped"] = s.hub.Dropped()
	}
	sendSuccess(c, "Healthy", health)
}

// handleSymbols handles GET /api/v1/symbols
func (s *Server) handleSymbols(c *gin.Context) {
	symbols, pairs := s.opts.Symbols, s.opts.Pairs
	if symbols == nil {
		symbols = []string{}
	}
	if pairs == nil {
		pairs = []model.Selection{}
	}
	sendSuccess(c, "Symbols", gin.H{
		"symbols":    symbols,
		"pairs":      pairs,
		"timeframes": model.Timeframes(),
		"window": gin.H{
			"min":     model.MinWindowSize,
			"max":     model.MaxWindowSize,
			"default": model.DefaultWindowSize,
		},
	})
}

// handleStatus handles GET /api/v1/session
func (s *Server) handleStatus(c *gin.Context) {
	sendSuccess(c, "Session status", s.ctrl.Status())
}

// handleActivate handles POST /api/v1/session
func (s *Server) handleActivate(c *gin.Context) {
	var sel model.Selection
	if err := c.ShouldBindJSON(&sel); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	log.Printf("[API] Activate requested: %s", sel.Normalize())
	if err := s.ctrl.Activate(c.Request.Context(), sel); err != nil {
		sendError(c, statusFor(err), err.Error())
		return
	}
	sendSuccess(c, "Session activated", s.ctrl.Status())
}

// handleDeactivate handles DELETE /api/v1/session
func (s *Server) handleDeactivate(c *gin.Context) {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	s.ctrl.Deactivate()
	if s.hub != nil {
		s.hub.Clear()
	}
	sendSuccess(c, "Session deactivated", s.ctrl.Status())
}

// handleReload handles POST /api/v1/session/reload
func (s *Server) handleReload(c *gin.Context) {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	if err := s.ctrl.Reload(c.Request.Context()); err != nil {
		sendError(c, statusFor(err), err.Error())
		return
	}
	sendSuccess(c, "Session reloaded", s.ctrl.Status())
}

// handleRetry handles POST /api/v1/session/retry
func (s *Server) handleRetry(c *gin.Context) {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	if err := s.ctrl.Retry(c.Request.Context()); err != nil {
		sendError(c, statusFor(err), err.Error())
		return
	}
	sendSuccess(c, "Session seeded", s.ctrl.Status())
}

// handleSeries handles GET /api/v1/series[?metric=][&last=][&from=&to=]
func (s *Server) handleSeries(c *gin.Context) {
	last := 0
	if v := c.Query("last"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, fmt.Sprintf("invalid last %q", v))
			return
		}
		last = n
	}

	name := c.Query("metric")
	if name == "" {
		sendSuccess(c, "Series", s.store.Snapshot(last))
		return
	}

	metric, err := model.ParseMetric(name)
	if err != nil {
		sendError(c, http.StatusBadRequest, err.Error())
		return
	}
	ts, _ := s.store.Series(metric)

	var (
		points []model.Point
		rs     stats.RollingWindowStats
	)
	if c.Query("from") != "" || c.Query("to") != "" {
		from, to, err := parseRange(c.Query("from"), c.Query("to"))
		if err != nil {
			sendError(c, http.StatusBadRequest, err.Error())
			return
		}
		points = ts.GetRange(from, to)
		if last > 0 && len(points) > last {
			points = points[len(points)-last:]
		}
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		rs = stats.CalculateRollingStats(values, 0)
	} else {
		points = ts.GetLast(last)
		rs = ts.Stats(last)
	}

	resp := SeriesResponse{
		Session: s.store.Session(),
		Metric:  metric,
		Points:  points,
		Stats:   seriesStats{Mean: rs.Mean, Std: rs.Std, Variance: rs.Variance, Count: rs.Count},
	}
	if len(points) > 0 {
		resp.Bounds = map[string]time.Time{
			"first": points[0].Time,
			"last":  points[len(points)-1].Time,
		}
	}
	sendSuccess(c, "Series", resp)
}

// parseRange reads RFC3339 bounds; a missing bound is open.
func parseRange(fromStr, toStr string) (from, to time.Time, err error) {
	to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	if fromStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			return from, to, fmt.Errorf("invalid from %q", fromStr)
		}
	}
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return from, to, fmt.Errorf("invalid to %q", toStr)
		}
	}
	if to.Before(from) {
		return from, to, errors.New("range ends before it starts")
	}
	return from, to, nil
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidSelection), errors.Is(err, model.ErrUnsupportedTimeframe):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoSelection), errors.Is(err, session.ErrNotFailed),
		errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, client.ErrSnapshotUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// sendSuccess sends a success response
func sendSuccess(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// sendError sends an error response
func sendError(c *gin.Context, statusCode int, errorMsg string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   errorMsg,
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
