package capture

import (
	"bytes"
	"image/jpeg"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
)

const (
	jpegQuality = 85

	// readyAfterFrames frames must have arrived before the sink counts as playable.
	readyAfterFrames = 2
)

// Sink is the video sink bound to the track. It encodes each bitmap
// generation to JPEG once and fans the bytes out to every stream client.
type Sink struct {
	metrics *metrics.CaptureMetrics

	mu         sync.Mutex
	jpeg       []byte
	generation uint64
	encoded    bool
	frames     uint64
	clients    map[chan []byte]struct{}
}

func NewSink(m *metrics.CaptureMetrics) *Sink {
	if m == nil {
		m = metrics.NewCaptureMetrics(prometheus.NewRegistry())
	}
	return &Sink{metrics: m, clients: make(map[chan []byte]struct{})}
}

func (s *Sink) WriteFrame(f *Frame) {
	if f == nil || f.Image == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.encoded || f.Generation != s.generation {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
			slog.Warn("Failed to encode frame", "generation", f.Generation, "error", err)
			return
		}
		s.jpeg, s.generation, s.encoded = buf.Bytes(), f.Generation, true
		s.metrics.FramesEncoded.Inc()
	}
	s.frames++

	for ch := range s.clients {
		offerLatest(ch, s.jpeg)
	}
}

// offerLatest replaces an unread frame so a slow client always gets the newest one.
func offerLatest(ch chan []byte, frame []byte) {
	select {
	case ch <- frame:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- frame:
	default:
	}
}

// Ready reports whether enough frames arrived for playback.
func (s *Sink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames >= readyAfterFrames
}

// Latest returns the current JPEG, if any.
func (s *Sink) Latest() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jpeg, s.encoded
}

// SinkStatus is served on /status.
type SinkStatus struct {
	Ready      bool   `json:"ready"`
	Frames     uint64 `json:"frames"`
	Generation uint64 `json:"generation"`
	Clients    int    `json:"clients"`
}

func (s *Sink) Status() SinkStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SinkStatus{
		Ready:      s.frames >= readyAfterFrames,
		Frames:     s.frames,
		Generation: s.generation,
		Clients:    len(s.clients),
	}
}

// subscribe registers a stream client. The returned func unregisters it.
func (s *Sink) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)

	s.mu.Lock()
	s.clients[ch] = struct{}{}
	if s.encoded {
		ch <- s.jpeg
	}
	s.mu.Unlock()
	s.metrics.SinkClients.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.clients, ch)
			s.mu.Unlock()
			s.metrics.SinkClients.Dec()
		})
	}
}
