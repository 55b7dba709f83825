package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/pscheid92/tilecast/internal/platform/correlation"
)

const defaultTickInterval = 2 * time.Second

// PayloadSource yields the next payload to ingest.
type PayloadSource interface {
	Next() domain.Payload
}

// MockTicker pushes a generated payload into an ingester once at start and
// then on every tick. It is used by the relay's mock mode and by the
// standalone mock producer.
type MockTicker struct {
	source   PayloadSource
	sink     domain.Ingester
	clock    clockwork.Clock
	interval time.Duration
}

func NewMockTicker(source PayloadSource, sink domain.Ingester, clock clockwork.Clock, interval time.Duration) *MockTicker {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MockTicker{source: source, sink: sink, clock: clock, interval: interval}
}

// Run blocks until ctx is cancelled or the sink reports it has stopped.
// Individual ingest failures are logged and the next tick tries again.
func (t *MockTicker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for t.emit(ctx) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

func (t *MockTicker) emit(ctx context.Context) bool {
	tickCtx := correlation.WithID(ctx, correlation.NewID())
	p := t.source.Next()

	err := t.sink.Ingest(tickCtx, p)
	switch {
	case err == nil:
		slog.DebugContext(tickCtx, "Ticker: ingested mock payload", "recommendations", len(p.Recommendations))
	case errors.Is(err, domain.ErrRelayStopped):
		slog.InfoContext(tickCtx, "Ticker: relay stopped, exiting")
		return false
	case ctx.Err() != nil:
		return false
	default:
		slog.WarnContext(tickCtx, "Ticker: ingest failed", "error", err)
	}
	return true
}
