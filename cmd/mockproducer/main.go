package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/tilecast/internal/app"
	"github.com/pscheid92/tilecast/internal/mock"
	"github.com/pscheid92/tilecast/internal/platform/config"
	"github.com/pscheid92/tilecast/internal/platform/logging"
	"github.com/pscheid92/tilecast/internal/producer"
)

func main() {
	cfg, err := config.LoadProducer()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Mock producer starting", "relay", cfg.RelayURL, "interval", cfg.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	client := producer.NewClient(cfg.RelayURL, producer.WithClock(clock))
	app.NewMockTicker(mock.NewGenerator(nil), client, clock, cfg.Interval).Run(ctx)

	slog.Info("Mock producer stopped")
}
