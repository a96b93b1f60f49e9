// Package api exposes the acquisition controller over HTTP
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/driver"
	"github.com/roman-kulish/pn-raman/internal/spectrometer"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
	"github.com/roman-kulish/pn-raman/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Scanner is the part of acquisition.Controller served over HTTP
type Scanner interface {
	Devices(ctx context.Context) ([]spectrometer.DeviceInfo, error)
	StartScan(ctx context.Context, params acquisition.Params) (*acquisition.Session, error)
	Current() *acquisition.Session
	Cancel() error
}

// Laser sets the excitation power
type Laser interface {
	SetDutyCycle(ctx context.Context, percent float64) error
	DutyCycle() (float64, bool)
}

// SessionStore lists recorded sessions
type SessionStore interface {
	Session(ctx context.Context, id string) (*spectrum.ScanSession, error)
	Sessions(ctx context.Context) ([]*spectrum.ScanSession, error)
}

func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "api"))
	}
}

func WithLaser(l Laser) func(s *Server) {
	return func(s *Server) {
		s.laser = l
	}
}

func WithStore(st SessionStore) func(s *Server) {
	return func(s *Server) {
		s.store = st
	}
}

// WithDefaults fills fields a scan request leaves empty
func WithDefaults(p acquisition.Params) func(s *Server) {
	return func(s *Server) {
		s.defaults = p
	}
}

// Server routes HTTP requests to the scanner. Scans outlive the request that started them and
// are bound to the context passed to Serve.
type Server struct {
	scanner  Scanner
	laser    Laser
	store    SessionStore
	defaults acquisition.Params

	engine *gin.Engine
	ctx    context.Context

	logger *slog.Logger
}

func New(scanner Scanner, options ...func(s *Server)) *Server {
	s := &Server{
		scanner: scanner,
		ctx:     context.Background(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.engine.Group("/api/v1")

	v1.GET("/devices", s.devices)

	v1.POST("/scans", s.startScan)
	v1.GET("/scans/current", s.currentScan)
	v1.DELETE("/scans/current", s.cancelScan)

	v1.GET("/laser", s.laserState)
	v1.PUT("/laser", s.setLaser)

	v1.GET("/sessions", s.sessions)
	v1.GET("/sessions/:id", s.session)
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on addr until ctx is done, then shuts the listener down
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.ctx = ctx

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) devices(c *gin.Context) {
	devices, err := s.scanner.Devices(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if devices == nil {
		devices = []spectrometer.DeviceInfo{}
	}
	c.JSON(http.StatusOK, devices)
}

func (s *Server) startScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	params := req.Params(s.defaults)
	session, err := s.scanner.StartScan(s.ctx, params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, startResponse{ID: session.ID()})
}

func (s *Server) currentScan(c *gin.Context) {
	session := s.scanner.Current()
	if session == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: acquisition.ErrNoSession.Error()})
		return
	}
	c.JSON(http.StatusOK, newScanStatus(session, time.Now()))
}

func (s *Server) cancelScan(c *gin.Context) {
	if err := s.scanner.Cancel(); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) laserState(c *gin.Context) {
	if s.laser == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no laser controller configured"})
		return
	}
	var resp laserRequest
	if pct, ok := s.laser.DutyCycle(); ok {
		resp.DutyCycle = &pct
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) setLaser(c *gin.Context) {
	if s.laser == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no laser controller configured"})
		return
	}

	var req laserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.DutyCycle == nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "dutyCycle is required"})
		return
	}
	if err := s.laser.SetDutyCycle(c.Request.Context(), *req.DutyCycle); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) sessions(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no session store configured"})
		return
	}
	sessions, err := s.store.Sessions(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []*spectrum.ScanSession{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (s *Server) session(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no session store configured"})
		return
	}
	session, err := s.store.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// fail maps err to a status code
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case driver.IsConfigError(err):
		status = http.StatusBadRequest
	case errors.Is(err, acquisition.ErrSessionActive):
		status = http.StatusConflict
	case errors.Is(err, acquisition.ErrNoSession), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, driver.ErrTimeout):
		status = http.StatusGatewayTimeout
	case driver.IsDeviceError(err):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}
