package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
	"github.com/karelxkk/svx-dashboard/internal/adapter/websocket"
	"github.com/karelxkk/svx-dashboard/internal/domain"
	"github.com/karelxkk/svx-dashboard/internal/stream"
)

// Broker is the registry streams attach to.
type Broker interface {
	stream.Registrar
	Count() int
	Closed() bool
}

// Snapshotter builds the events sent to a client right after it connects.
type Snapshotter interface {
	InitialEvents(ctx context.Context) []domain.Event
}

type Options struct {
	AppEnv     string
	Addr       string
	SSEPath    string
	WSPath     string
	CORSOrigin string
	TrustProxy bool

	ConnectRate  float64
	ConnectBurst int

	Pump stream.Options

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

type Server struct {
	echo  *echo.Echo
	opts  Options
	clock clockwork.Clock

	broker    Broker
	snapshots Snapshotter
	metrics   *metrics.Set
	upgrader  *ws.Upgrader

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires routes. m may be nil.
func NewServer(opts Options, broker Broker, snapshots Snapshotter, clock clockwork.Clock, m *metrics.Set, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if opts.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	srv := &Server{
		echo:         e,
		opts:         opts,
		clock:        clock,
		broker:       broker,
		snapshots:    snapshots,
		metrics:      m,
		upgrader:     websocket.NewUpgrader(websocket.NewCheckOrigin(opts.CORSOrigin, opts.AppEnv == "development")),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

// ServeHTTP lets tests drive the router directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	slog.Info("Starting server", "addr", s.opts.Addr, "sse_path", s.opts.SSEPath, "ws_path", s.opts.WSPath)
	if err := s.echo.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) streamMetrics() *metrics.StreamMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Stream
}
