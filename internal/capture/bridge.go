package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
)

const (
	// failureWarnAfter consecutive failed passes raise a render warning.
	failureWarnAfter = 3

	slotRenderPass = "render-pass"

	DefaultMemoryWarn = 0.8
)

// Frame is one successfully rasterized bitmap. Generation increases with
// every surface change; the image is never written to after publication.
type Frame struct {
	Image      *image.RGBA
	Generation uint64
}

// Health carries the bridge's soft warnings.
type Health struct {
	RenderWarning bool
	MemoryWarning bool
	MemoryRatio   float64
}

type BridgeOptions struct {
	Guard      *Guard
	Probe      *MemoryProbe
	MemoryWarn float64
	Metrics    *metrics.CaptureMetrics
	Clock      clockwork.Clock
	// OnHealth is called from the render worker whenever a warning is raised or cleared.
	OnHealth func(Health)
}

// Bridge rasterizes surfaces on a single worker. A newer Update cancels the
// pass in flight and replaces any queued one; results of cancelled or
// superseded passes are dropped. A failed pass keeps the previous frame.
type Bridge struct {
	raster Rasterizer
	opts   BridgeOptions

	mu      sync.Mutex
	pending *Surface
	// want is the surface the bridge is converging on: the latest request,
	// cleared when its pass fails so that a repeated request retries.
	want   *Surface
	seq    uint64
	abort  context.CancelFunc
	health Health

	frame atomic.Pointer[Frame]
	wake  chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// owned by the worker
	failures int
}

func NewBridge(raster Rasterizer, opts BridgeOptions) *Bridge {
	if opts.Guard == nil {
		opts.Guard = NewGuard()
	}
	if opts.MemoryWarn <= 0 {
		opts.MemoryWarn = DefaultMemoryWarn
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCaptureMetrics(prometheus.NewRegistry())
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.OnHealth == nil {
		opts.OnHealth = func(Health) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		raster: raster,
		opts:   opts,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Update requests a pass for s. A request equal to the one queued, in flight
// or last rendered is ignored; after a failed pass the same surface renders again.
func (b *Bridge) Update(s Surface) {
	b.mu.Lock()
	if b.want != nil && b.want.Equal(s) {
		b.mu.Unlock()
		return
	}
	b.want = &s
	b.pending = &s
	b.seq++
	if b.abort != nil {
		b.abort()
	}
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Current returns the latest good frame, or nil before the first successful pass.
func (b *Bridge) Current() *Frame {
	return b.frame.Load()
}

func (b *Bridge) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.health
}

// Close stops the worker and waits for it. A pass in flight is cancelled and its result dropped.
func (b *Bridge) Close() {
	b.closeOnce.Do(b.cancel)
	<-b.done
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.wake:
		}
		for b.next() {
		}
	}
}

// next runs the queued pass, if any.
func (b *Bridge) next() bool {
	b.mu.Lock()
	s := b.pending
	if s == nil || b.ctx.Err() != nil {
		b.mu.Unlock()
		return false
	}
	b.pending = nil
	seq := b.seq
	passCtx, abort := context.WithCancel(b.ctx)
	b.abort = abort
	b.mu.Unlock()

	b.opts.Guard.Own(slotRenderPass, Releaser(abort))
	b.pass(passCtx, seq, *s)
	b.opts.Guard.Release(slotRenderPass)
	return true
}

func (b *Bridge) pass(ctx context.Context, seq uint64, s Surface) {
	start := b.opts.Clock.Now()
	img, err := b.rasterize(ctx, s)
	b.opts.Metrics.RenderDuration.Observe(b.opts.Clock.Since(start).Seconds())

	b.mu.Lock()
	stale := seq != b.seq || ctx.Err() != nil
	if !stale && (err != nil || img == nil) {
		b.want = nil
	}
	b.mu.Unlock()

	switch {
	case stale:
		b.opts.Metrics.RenderPasses.WithLabelValues("discarded").Inc()
		slog.Debug("Dropping superseded render pass", "generation", seq)
		return
	case err != nil || img == nil:
		b.failures++
		slog.Warn("Render pass failed, keeping last frame", "generation", seq, "error", err, "consecutive", b.failures)
		if b.failures == failureWarnAfter {
			b.updateHealth(func(h *Health) { h.RenderWarning = true })
		}
		b.opts.Metrics.RenderPasses.WithLabelValues("failed").Inc()
		return
	}

	b.frame.Store(&Frame{Image: img, Generation: seq})
	if b.failures >= failureWarnAfter {
		b.updateHealth(func(h *Health) { h.RenderWarning = false })
	}
	b.failures = 0
	b.sampleMemory()
	b.opts.Metrics.RenderPasses.WithLabelValues("ok").Inc()
}

// rasterize turns a panicking rasterizer into a failed pass.
func (b *Bridge) rasterize(ctx context.Context, s Surface) (img *image.RGBA, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Rasterizer panic recovered", "panic", rec)
			img, err = nil, fmt.Errorf("rasterizer panic: %v", rec)
		}
	}()
	return b.raster.Rasterize(ctx, s)
}

func (b *Bridge) sampleMemory() {
	ratio, ok := b.opts.Probe.Ratio()
	if !ok {
		return
	}
	b.opts.Metrics.MemoryRatio.Set(ratio)

	high := ratio > b.opts.MemoryWarn
	if high {
		slog.Warn("Memory usage is high", "ratio", ratio, "threshold", b.opts.MemoryWarn)
	}
	b.updateHealth(func(h *Health) {
		h.MemoryWarning = high
		h.MemoryRatio = ratio
	})
}

func (b *Bridge) updateHealth(change func(*Health)) {
	b.mu.Lock()
	before := b.health
	change(&b.health)
	after := b.health
	b.mu.Unlock()

	if before.RenderWarning != after.RenderWarning || before.MemoryWarning != after.MemoryWarning {
		b.opts.OnHealth(after)
	}
}
