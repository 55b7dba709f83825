package viewer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadDeadline     = 75 * time.Second
	wsMaxFrame         = 1 << 20
)

// WebsocketDialer connects to the relay's /ws push channel.
type WebsocketDialer struct {
	Endpoint url.URL
	Options  DialerOptions
}

func (d *WebsocketDialer) Dial(ctx context.Context, clientID string) (Transport, error) {
	dialer := gorilla.Dialer{HandshakeTimeout: wsHandshakeTimeout, Proxy: http.ProxyFromEnvironment}
	header := http.Header{"User-Agent": []string{d.Options.userAgent()}}

	conn, resp, err := dialer.DialContext(ctx, withClientID(d.Endpoint, clientID), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(wsMaxFrame)
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *gorilla.Conn
	once sync.Once
}

func (t *wsTransport) Receive(ctx context.Context, handle func([]byte)) error {
	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	extend := func() error { return t.conn.SetReadDeadline(time.Now().Add(wsReadDeadline)) }
	if err := extend(); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	t.conn.SetPingHandler(func(data string) error {
		_ = extend()
		return t.conn.WriteControl(gorilla.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var closeErr *gorilla.CloseError
			if errors.As(err, &closeErr) && closeErr.Code != gorilla.CloseNormalClosure {
				return fmt.Errorf("%w: %s (%d)", ErrClosedByRelay, closeErr.Text, closeErr.Code)
			}
			return fmt.Errorf("read websocket: %w", err)
		}
		_ = extend()
		if msgType == gorilla.TextMessage {
			handle(data)
		}
	}
}

func (t *wsTransport) Close() error {
	t.once.Do(func() {
		_ = t.conn.WriteControl(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = t.conn.Close()
	})
	return nil
}
