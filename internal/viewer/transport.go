package viewer

import (
	"context"
	"net"
	"net/url"
)

// Dialer opens one transport attempt to the relay.
type Dialer interface {
	Dial(ctx context.Context, clientID string) (Transport, error)
}

// Transport is one live connection. Receive blocks, calling handle for every
// message body, until the connection ends or ctx is cancelled. Close is safe
// to call at any time and more than once.
type Transport interface {
	Receive(ctx context.Context, handle func([]byte)) error
	Close() error
}

// NewDialer picks the transport for the session's protocol. A positive
// pollEvery with an http(s) protocol selects polling instead of SSE.
func NewDialer(s Settings, opts DialerOptions) Dialer {
	switch {
	case s.Protocol.Streaming():
		return &WebsocketDialer{Endpoint: endpoint(s, "/ws"), Options: opts}
	case opts.PollInterval > 0:
		return &PollDialer{Endpoint: endpoint(s, "/latest"), Options: opts}
	default:
		return &SSEDialer{Endpoint: endpoint(s, "/events"), Options: opts}
	}
}

func endpoint(s Settings, path string) url.URL {
	host, port, _ := net.SplitHostPort(s.BackendAddress)
	return url.URL{Scheme: string(s.Protocol), Host: net.JoinHostPort(host, port), Path: path}
}

func withClientID(u url.URL, clientID string) string {
	q := u.Query()
	q.Set("clientId", clientID)
	u.RawQuery = q.Encode()
	return u.String()
}
