package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/tilecast/internal/adapter/httpserver"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
	"github.com/pscheid92/tilecast/internal/adapter/redis"
	"github.com/pscheid92/tilecast/internal/adapter/websocket"
	"github.com/pscheid92/tilecast/internal/app"
	"github.com/pscheid92/tilecast/internal/mock"
	"github.com/pscheid92/tilecast/internal/platform/config"
	"github.com/pscheid92/tilecast/internal/platform/logging"
	"github.com/pscheid92/tilecast/internal/platform/version"
	"github.com/pscheid92/tilecast/internal/relay"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Relay {
	cfg, err := config.LoadRelay()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Relay, reg prometheus.Registerer) *goredis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	m := metrics.NewRedisMetrics(reg)
	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(m), redis.NewBreakerHook(m))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Relay starting", "env", cfg.AppEnv, "port", cfg.Port, "role", cfg.Role, "version", version.Get().Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	streamMetrics := metrics.NewStreamMetrics(registry)

	redisClient := setupRedis(ctx, cfg, registry)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	opts := []relay.Option{
		relay.WithClock(clock),
		relay.WithMetrics(metrics.NewRelayMetrics(registry)),
		relay.WithMaxSubscribers(cfg.MaxSubscribers),
	}
	var mirror *redis.Mirror
	if redisClient != nil {
		mirror = redis.NewMirror(redisClient)
		if cfg.Role == config.RolePrimary {
			if err := mirror.Reset(ctx); err != nil {
				slog.Warn("Failed to clear mirrored latest value", "error", err)
			}
			opts = append(opts, relay.WithMirror(mirror))
		}
	}
	if cfg.Role == config.RoleReplica {
		opts = append(opts, relay.ReadOnly())
	}
	rl := relay.New(relay.NewStore(), opts...)

	var node *websocket.Node
	if cfg.CentrifugeEnabled {
		var err error
		node, err = websocket.NewNode(streamMetrics, cfg.LogLevel)
		if err != nil {
			slog.Error("Failed to create centrifuge node", "error", err)
			os.Exit(1)
		}
		if err := node.Run(); err != nil {
			slog.Error("Failed to start centrifuge node", "error", err)
			os.Exit(1)
		}
	}

	serverOpts := httpserver.Options{
		Relay:         rl,
		Registry:      registry,
		StreamMetrics: streamMetrics,
		Clock:         clock,
	}
	if node != nil {
		serverOpts.Centrifuge = node.Handler(websocket.NewCheckOrigin(cfg.AllowedOrigins, cfg.IsDevelopment()))
	}
	if redisClient != nil {
		serverOpts.HealthChecks = append(serverOpts.HealthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	srv := httpserver.NewServer(cfg, serverOpts)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	if node != nil {
		g.Go(func() error {
			node.Follow(gctx, rl)
			return nil
		})
	}

	if cfg.Role == config.RoleReplica {
		g.Go(func() error { return mirror.Follow(gctx, rl) })
	}

	if cfg.MockInterval > 0 && cfg.Role == config.RolePrimary {
		slog.Info("Mock producer enabled", "interval", cfg.MockInterval)
		ticker := app.NewMockTicker(mock.NewGenerator(nil), rl, clock, cfg.MockInterval)
		g.Go(func() error {
			ticker.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if node != nil {
			if err := node.Shutdown(shutdownCtx); err != nil {
				slog.Error("Centrifuge shutdown error", "error", err)
			}
		}
		rl.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Relay stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Relay stopped")
}
