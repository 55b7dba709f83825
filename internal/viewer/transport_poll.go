package viewer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const maxPollBody = 1 << 20

// PollDialer reads GET /latest on a fixed interval instead of holding a push
// channel open. Only changed payloads are handed on.
type PollDialer struct {
	Endpoint url.URL
	Options  DialerOptions
}

func (d *PollDialer) Dial(ctx context.Context, clientID string) (Transport, error) {
	t := &pollTransport{url: withClientID(d.Endpoint, clientID), opts: d.Options}
	body, err := t.fetch(ctx)
	if err != nil {
		return nil, err
	}
	t.pending = body
	return t, nil
}

type pollTransport struct {
	url     string
	opts    DialerOptions
	last    []byte
	pending []byte
}

func (t *pollTransport) Receive(ctx context.Context, handle func([]byte)) error {
	t.deliver(t.pending, handle)
	t.pending = nil

	ticker := t.opts.clock().NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}

		body, err := t.fetch(ctx)
		if err != nil {
			return err
		}
		t.deliver(body, handle)
	}
}

func (t *pollTransport) deliver(body []byte, handle func([]byte)) {
	if body == nil || bytes.Equal(body, t.last) {
		return
	}
	t.last = body
	handle(body)
}

// fetch returns nil for 204, the "no data yet" answer.
func (t *pollTransport) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("User-Agent", t.opts.userAgent())

	resp, err := t.opts.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll latest: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
		if err != nil {
			return nil, fmt.Errorf("read latest: %w", err)
		}
		return body, nil
	default:
		return nil, fmt.Errorf("poll latest: unexpected status %d", resp.StatusCode)
	}
}

func (t *pollTransport) Close() error { return nil }
