package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
	"github.com/pscheid92/tilecast/internal/adapter/websocket"
	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/pscheid92/tilecast/internal/platform/config"
	"github.com/pscheid92/tilecast/internal/relay"
)

type relayService interface {
	Ingest(ctx context.Context, p domain.Payload) error
	Peek() (domain.Payload, bool)
	Subscribe(ctx context.Context, clientID string) (*relay.Subscription, error)
}

// Options carries the collaborators of the relay HTTP surface. Centrifuge may
// be nil, which leaves /connection/websocket unregistered.
type Options struct {
	Relay         relayService
	Centrifuge    http.Handler
	Registry      *prometheus.Registry
	HTTPMetrics   *metrics.HTTPMetrics
	StreamMetrics *metrics.StreamMetrics
	HealthChecks  []HealthCheck
	Clock         clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Relay

	relay         relayService
	streamer      *websocket.Streamer
	centrifuge    http.Handler
	upgrader      gorilla.Upgrader
	registry      *prometheus.Registry
	httpMetrics   *metrics.HTTPMetrics
	streamMetrics *metrics.StreamMetrics
	healthChecks  []HealthCheck
	limits        *streamLimits
	clock         clockwork.Clock
	startTime     time.Time

	// streams is cancelled on Shutdown so long-lived push handlers return.
	streams     context.Context
	stopStreams context.CancelFunc
}

func NewServer(cfg *config.Relay, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Registry == nil {
		opts.Registry = metrics.NewRegistry()
	}
	if opts.HTTPMetrics == nil {
		opts.HTTPMetrics = metrics.NewHTTPMetrics(opts.Registry)
	}
	if opts.StreamMetrics == nil {
		opts.StreamMetrics = metrics.NewStreamMetrics(opts.Registry)
	}

	checkOrigin := websocket.NewCheckOrigin(cfg.AllowedOrigins, cfg.IsDevelopment())
	streams, stop := context.WithCancel(context.Background())

	srv := &Server{
		echo:          e,
		config:        cfg,
		relay:         opts.Relay,
		streamer:      websocket.NewStreamer(opts.Clock, opts.StreamMetrics),
		centrifuge:    opts.Centrifuge,
		upgrader:      gorilla.Upgrader{CheckOrigin: checkOrigin},
		registry:      opts.Registry,
		httpMetrics:   opts.HTTPMetrics,
		streamMetrics: opts.StreamMetrics,
		healthChecks:  opts.HealthChecks,
		limits:        newStreamLimits(cfg.MaxStreamsPerIP, cfg.StreamConnectRate, cfg.StreamConnectBurst, opts.Clock),
		clock:         opts.Clock,
		startTime:     opts.Clock.Now(),
		streams:       streams,
		stopStreams:   stop,
	}

	srv.registerRoutes()
	return srv
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting relay", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stopStreams()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
