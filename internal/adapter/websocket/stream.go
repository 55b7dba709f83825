package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/pscheid92/tilecast/internal/relay"
	"github.com/pscheid92/tilecast/internal/wire"
)

const (
	writeDeadline   = 5 * time.Second
	pingInterval    = 30 * time.Second
	pongDeadline    = 60 * time.Second
	maxClientFrame  = 4096
	transportLabel  = "websocket"
	CloseSuperseded = 4001
)

// Subscription is the relay handle a stream forwards from.
type Subscription interface {
	Updates() <-chan domain.Payload
	Reason() relay.Reason
	Close()
}

type Streamer struct {
	clock   clockwork.Clock
	metrics *metrics.StreamMetrics
}

func NewStreamer(clock clockwork.Clock, m *metrics.StreamMetrics) *Streamer {
	return &Streamer{clock: clock, metrics: m}
}

// Stream writes every payload from sub to conn as a text frame until the
// subscription ends, the peer goes away or ctx is cancelled. Frames sent by
// the peer are read and dropped. It closes both sub and conn before returning.
func (s *Streamer) Stream(ctx context.Context, conn *websocket.Conn, sub Subscription) {
	s.metrics.ActiveConnections.WithLabelValues(transportLabel).Inc()
	defer s.metrics.ActiveConnections.WithLabelValues(transportLabel).Dec()

	readDone := make(chan struct{})
	go s.readLoop(conn, readDone)

	defer func() {
		sub.Close()
		_ = conn.Close()
		<-readDone
	}()

	ticker := s.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case p, ok := <-sub.Updates():
			if !ok {
				writeClose(conn, closeCodeFor(sub.Reason()), string(sub.Reason()))
				return
			}
			if err := s.writePayload(conn, p); err != nil {
				s.logWriteErr(ctx, err)
				return
			}
		case <-ticker.Chan():
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logWriteErr(ctx, err)
				return
			}
		case <-readDone:
			return
		case <-ctx.Done():
			writeClose(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func (s *Streamer) writePayload(conn *websocket.Conn, p domain.Payload) error {
	data, err := wire.Encode(p)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.metrics.MessagesSent.WithLabelValues(transportLabel).Inc()
	return nil
}

func (s *Streamer) logWriteErr(ctx context.Context, err error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		s.metrics.SlowClientsClosed.WithLabelValues(transportLabel).Inc()
		slog.WarnContext(ctx, "Closing stalled websocket subscriber", "error", err)
		return
	}
	slog.DebugContext(ctx, "Websocket write failed", "error", err)
}

func (s *Streamer) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongDeadline))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		slog.Debug("Ignoring websocket client message", "type", frameType(msgType), "bytes", len(data))
		_ = conn.SetReadDeadline(time.Now().Add(pongDeadline))
	}
}

func frameType(t int) string {
	switch t {
	case websocket.TextMessage:
		return "text"
	case websocket.BinaryMessage:
		return "binary"
	default:
		return "other"
	}
}

func closeCodeFor(reason relay.Reason) int {
	switch reason {
	case relay.ReasonSuperseded:
		return CloseSuperseded
	case relay.ReasonSlow:
		return websocket.CloseTryAgainLater
	case relay.ReasonShutdown:
		return websocket.CloseGoingAway
	default:
		return websocket.CloseNormalClosure
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
}
