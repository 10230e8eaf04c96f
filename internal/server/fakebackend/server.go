// Package fakebackend is a development stand-in for the search backend and
// the billing provider. It keeps everything in memory and finishes one
// engine per status poll, which makes client behaviour easy to observe.
package fakebackend

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/dmitrijs2005/revsearch/internal/logging"
)

// Server is the echo HTTP server of the fake backend.
type Server struct {
	cfg  *Config
	log  logging.Logger
	echo *echo.Echo
}

// NewServer builds the server and registers every route.
func NewServer(cfg *Config, state *State, log logging.Logger) *Server {
	log = log.With("component", "searchd")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogMethod:  true,
		LogURI:     true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug(c.Request().Context(), "request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))

	h := &handlers{cfg: cfg, state: state, log: log, now: time.Now}

	e.GET("/health", healthCheck)

	v1 := e.Group("/v1")
	v1.POST("/users", h.createUser)
	v1.POST("/auth", h.authorize)

	search := v1.Group("/search", h.authenticate)
	search.POST("", h.createSearch)
	search.GET("/:id", h.searchStatus)

	billing := v1.Group("/billing")
	billing.GET("/products", h.products)
	billing.POST("/purchase", h.purchase)
	billing.POST("/restore", h.restore)
	billing.GET("/status", h.subscriptionStatus)

	return &Server{cfg: cfg, log: log, echo: e}
}

// requestContext tags every log record of a request with its id.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := logging.ContextWith(req.Context(), "req_id", c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

// Handler exposes the routes, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Listen binds the configured address. Serve must follow.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.cfg.HTTP.Addr)
	}
	s.echo.Listener = ln
	return nil
}

// Addr is the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.echo.Listener == nil {
		return nil
	}
	return s.echo.Listener.Addr()
}

// Serve blocks until Shutdown.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info(ctx, "starting HTTP server", "addr", s.Addr())
	if err := s.echo.Start(s.cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to serve http")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	s.log.Info(ctx, "shutting down HTTP server")
	return errors.WithStack(s.echo.Shutdown(ctx))
}
