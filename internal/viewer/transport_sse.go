package viewer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// ErrClosedByRelay is returned when the relay ends the stream itself, e.g.
// because another connection took over this client id.
var ErrClosedByRelay = errors.New("closed by relay")

const maxSSELine = 1 << 20

// SSEDialer connects to the relay's Server-Sent Events push channel.
type SSEDialer struct {
	Endpoint url.URL
	Options  DialerOptions
}

func (d *SSEDialer) Dial(ctx context.Context, clientID string) (Transport, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withClientID(d.Endpoint, clientID), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", d.Options.userAgent())

	resp, err := d.Options.httpClient().Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open sse stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("open sse stream: unexpected status %d", resp.StatusCode)
	}
	return &sseTransport{resp: resp, cancel: cancel}, nil
}

type sseTransport struct {
	resp   *http.Response
	cancel context.CancelFunc
	once   sync.Once
}

func (t *sseTransport) Receive(ctx context.Context, handle func([]byte)) error {
	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	scanner := bufio.NewScanner(t.resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxSSELine)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == "close" {
				return fmt.Errorf("%w: %s", ErrClosedByRelay, strings.Join(data, "\n"))
			}
			if len(data) > 0 {
				handle([]byte(strings.Join(data, "\n")))
			}
			event, data = "", data[:0]
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read sse stream: %w", err)
	}
	return errors.New("sse stream ended")
}

func (t *sseTransport) Close() error {
	t.once.Do(func() {
		t.cancel()
		_ = t.resp.Body.Close()
	})
	return nil
}
