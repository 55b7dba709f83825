package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/tilecast/internal/wire"
)

const (
	sseHeartbeat = 15 * time.Second
	sseLabel     = "sse"
)

// handleSSE streams one "data:" event per payload. When the relay ends the
// subscription a final "close" event names the reason.
func (s *Server) handleSSE(c echo.Context) error {
	ctx := c.Request().Context()

	clientID, err := clientIDFrom(c)
	if err != nil {
		return err
	}
	release, err := s.admitStream(c)
	if err != nil {
		return err
	}
	defer release()

	sub, err := s.relay.Subscribe(ctx, clientID)
	if err != nil {
		return err
	}
	defer sub.Close()

	s.streamMetrics.ActiveConnections.WithLabelValues(sseLabel).Inc()
	defer s.streamMetrics.ActiveConnections.WithLabelValues(sseLabel).Dec()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	slog.DebugContext(ctx, "SSE subscriber connected", "client_id", clientID)

	heartbeat := s.clock.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case p, ok := <-sub.Updates():
			if !ok {
				_, _ = fmt.Fprintf(w, "event: close\ndata: %s\n\n", sub.Reason())
				w.Flush()
				return nil
			}
			data, err := wire.Encode(p)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to encode payload for SSE", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return nil
			}
			w.Flush()
			s.streamMetrics.MessagesSent.WithLabelValues(sseLabel).Inc()

		case <-heartbeat.Chan():
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()

		case <-ctx.Done():
			return nil
		case <-s.streams.Done():
			return nil
		}
	}
}
