package capture

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	frame atomic.Pointer[Frame]
}

func (s *staticSource) Current() *Frame { return s.frame.Load() }

type chanSink chan *Frame

func (c chanSink) WriteFrame(f *Frame) { c <- f }

func awaitFrame(t *testing.T, frames chanSink) *Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame written")
		return nil
	}
}

func TestTrack_RepeatsCurrentFrame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	src := &staticSource{}
	frame := &Frame{Image: bitmap(), Generation: 4}
	src.frame.Store(frame)
	frames := make(chanSink, 4)

	track := NewTrack(src, frames, clock, 10)
	track.Start()
	defer track.Stop()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	for range 3 {
		clock.Advance(100 * time.Millisecond)
		assert.Same(t, frame, awaitFrame(t, frames))
	}
}

func TestTrack_SkipsUntilFirstFrame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	src := &staticSource{}
	frames := make(chanSink, 4)

	track := NewTrack(src, frames, clock, 5)
	track.Start()
	defer track.Stop()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(200 * time.Millisecond)
	select {
	case <-frames:
		t.Fatal("frame written before the bridge produced one")
	case <-time.After(50 * time.Millisecond):
	}

	frame := &Frame{Image: bitmap(), Generation: 1}
	src.frame.Store(frame)
	clock.Advance(200 * time.Millisecond)
	assert.Same(t, frame, awaitFrame(t, frames))
}

func TestTrack_StartStopIdempotent(t *testing.T) {
	track := NewTrack(&staticSource{}, make(chanSink, 1), clockwork.NewFakeClock(), 0)
	assert.Equal(t, time.Second/DefaultFPS, track.period)
	assert.False(t, track.Running())

	track.Start()
	track.Start()
	assert.True(t, track.Running())

	track.Stop()
	track.Stop()
	assert.False(t, track.Running())

	track.Start()
	assert.True(t, track.Running())
	track.Stop()
}
