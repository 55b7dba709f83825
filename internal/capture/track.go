package capture

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultFPS = 10

// FrameSource yields the bitmap to sample.
type FrameSource interface {
	Current() *Frame
}

// FrameSink receives sampled frames.
type FrameSink interface {
	WriteFrame(f *Frame)
}

// Track samples a FrameSource at a fixed rate, independent of how often the
// bitmap changes; between changes the same frame is written again.
type Track struct {
	source FrameSource
	sink   FrameSink
	clock  clockwork.Clock
	period time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewTrack(source FrameSource, sink FrameSink, clock clockwork.Clock, fps int) *Track {
	if fps <= 0 {
		fps = DefaultFPS
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Track{source: source, sink: sink, clock: clock, period: time.Second / time.Duration(fps)}
}

// Start begins sampling. Starting a running track has no effect.
func (t *Track) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.clock.NewTicker(t.period), t.stop, t.done)
}

// Stop halts sampling and waits for the sampler to exit. Safe to call more than once.
func (t *Track) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (t *Track) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *Track) run(ticker clockwork.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if f := t.source.Current(); f != nil {
				t.sink.WriteFrame(f)
			}
		}
	}
}
