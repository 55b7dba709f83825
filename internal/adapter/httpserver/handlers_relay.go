package httpserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/tilecast/internal/platform/errors"
	"github.com/pscheid92/tilecast/internal/wire"
)

const (
	maxIngestBody     = "1M"
	maxIngestBytes    = 1 << 20
	clientIDParam     = "clientId"
	maxClientIDLength = 128
)

func (s *Server) registerRelayRoutes() {
	s.echo.POST("/update", s.handleIngest,
		middleware.BodyLimit(maxIngestBody),
		newRateLimiter(s.config.IngestRate, s.config.IngestBurst),
	)
	s.echo.GET("/latest", s.handleLatest)
	s.echo.GET("/", s.handleStream)
	s.echo.GET("/events", s.handleStream)
	s.echo.GET("/ws", s.handleWebsocket)

	if s.centrifuge != nil {
		s.echo.GET("/connection/websocket", echo.WrapHandler(centrifugeCredentials(s.centrifuge)))
	}
}

func (s *Server) handleIngest(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge {
			return apperrors.TooLarge(maxIngestBytes)
		}
		return apperrors.Validation("failed to read request body", err)
	}

	p, err := wire.Decode(body)
	if err != nil {
		return apperrors.From(err).With("bytes", len(body))
	}

	if err := s.relay.Ingest(ctx, p); err != nil {
		return err
	}

	slog.DebugContext(ctx, "Payload ingested", "recommendations", len(p.Recommendations), "hand", len(p.Hand))
	if err := c.JSON(http.StatusOK, map[string]string{"status": "accepted"}); err != nil {
		return fmt.Errorf("failed to write ingest response: %w", err)
	}
	return nil
}

// handleLatest answers 204 until the first payload arrives.
func (s *Server) handleLatest(c echo.Context) error {
	p, ok := s.relay.Peek()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}

	data, err := wire.Encode(p)
	if err != nil {
		return apperrors.Internal("failed to encode latest payload", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	if err := c.JSONBlob(http.StatusOK, data); err != nil {
		return fmt.Errorf("failed to write latest response: %w", err)
	}
	return nil
}

// handleStream serves the push channel: websocket for upgrade requests, SSE otherwise.
func (s *Server) handleStream(c echo.Context) error {
	if gorilla.IsWebSocketUpgrade(c.Request()) {
		return s.handleWebsocket(c)
	}
	return s.handleSSE(c)
}

func (s *Server) handleWebsocket(c echo.Context) error {
	clientID, err := clientIDFrom(c)
	if err != nil {
		return err
	}

	release, err := s.admitStream(c)
	if err != nil {
		return err
	}
	defer release()

	sub, err := s.relay.Subscribe(c.Request().Context(), clientID)
	if err != nil {
		return err
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		sub.Close()
		slog.DebugContext(c.Request().Context(), "Websocket upgrade failed", "error", err)
		return nil
	}

	slog.DebugContext(c.Request().Context(), "Websocket subscriber connected", "client_id", clientID)
	s.streamer.Stream(s.streams, conn, sub)
	return nil
}

// admitStream applies the per-address stream limits to c.
func (s *Server) admitStream(c echo.Context) (func(), error) {
	ip := c.RealIP()
	release, reason, ok := s.limits.acquire(ip)
	if !ok {
		s.streamMetrics.Rejected.WithLabelValues(string(reason)).Inc()
		slog.DebugContext(c.Request().Context(), "Stream refused", "client", ip, "reason", reason)
		return nil, apperrors.RateLimited().With("reason", string(reason))
	}
	return release, nil
}

// clientIDFrom returns the clientId query parameter, or a fresh id when absent.
func clientIDFrom(c echo.Context) (string, error) {
	id := c.QueryParam(clientIDParam)
	if id == "" {
		return uuid.NewString(), nil
	}
	if len(id) > maxClientIDLength {
		return "", apperrors.Validation("clientId too long", nil).With("max_length", maxClientIDLength)
	}
	return id, nil
}
