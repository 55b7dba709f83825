package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const mjpegBoundary = "frame"

// SinkServer exposes a Sink over HTTP so an external player can consume the track.
type SinkServer struct {
	echo     *echo.Echo
	sink     *Sink
	addr     string
	listener net.Listener

	streams     context.Context
	stopStreams context.CancelFunc
}

func NewSinkServer(addr string, sink *Sink) *SinkServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	streams, stop := context.WithCancel(context.Background())
	s := &SinkServer{echo: e, sink: sink, addr: addr, streams: streams, stopStreams: stop}

	e.GET("/stream.mjpeg", s.handleStream)
	e.GET("/frame.jpg", s.handleFrame)
	e.GET("/status", s.handleStatus)
	return s
}

// Listen binds the address so StreamURL is known before Serve runs.
func (s *SinkServer) Listen() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = l
	s.echo.Listener = l
	return nil
}

// StreamURL is the MJPEG endpoint for players.
func (s *SinkServer) StreamURL() string {
	addr := s.addr
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	return "http://" + addr + "/stream.mjpeg"
}

// Serve blocks until Shutdown.
func (s *SinkServer) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	slog.Info("Serving video sink", "url", s.StreamURL())
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve video sink: %w", err)
	}
	return nil
}

// HandleMetrics mounts h at /metrics next to the stream.
func (s *SinkServer) HandleMetrics(h http.Handler) {
	s.echo.GET("/metrics", echo.WrapHandler(h))
}

func (s *SinkServer) Handler() http.Handler {
	return s.echo
}

func (s *SinkServer) Shutdown(ctx context.Context) error {
	s.stopStreams()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown video sink: %w", err)
	}
	return nil
}

func (s *SinkServer) handleStream(c echo.Context) error {
	frames, unsubscribe := s.sink.subscribe()
	defer unsubscribe()

	mw := multipart.NewWriter(c.Response())
	if err := mw.SetBoundary(mjpegBoundary); err != nil {
		return fmt.Errorf("set boundary: %w", err)
	}
	c.Response().Header().Set(echo.HeaderContentType, "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.streams.Done():
			return nil
		case frame := <-frames:
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   {"image/jpeg"},
				"Content-Length": {strconv.Itoa(len(frame))},
			})
			if err != nil {
				return nil
			}
			if _, err := part.Write(frame); err != nil {
				return nil
			}
			c.Response().Flush()
		}
	}
}

func (s *SinkServer) handleFrame(c echo.Context) error {
	frame, ok := s.sink.Latest()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	if err := c.Blob(http.StatusOK, "image/jpeg", frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *SinkServer) handleStatus(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.sink.Status()); err != nil {
		return fmt.Errorf("write sink status: %w", err)
	}
	return nil
}
