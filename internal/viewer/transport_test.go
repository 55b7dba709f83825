package viewer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverURL(t *testing.T, ts *httptest.Server, path string) url.URL {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	u.Path = path
	return *u
}

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handle(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(b))
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestNewDialer(t *testing.T) {
	s := Settings{Protocol: ProtocolWSS, BackendAddress: "relay.example:443", ClientID: "c"}
	ws, ok := NewDialer(s, DialerOptions{}).(*WebsocketDialer)
	require.True(t, ok)
	assert.Equal(t, "wss://relay.example:443/ws", ws.Endpoint.String())

	s.Protocol = ProtocolHTTP
	_, ok = NewDialer(s, DialerOptions{}).(*SSEDialer)
	assert.True(t, ok)

	poll, ok := NewDialer(s, DialerOptions{PollInterval: time.Second}).(*PollDialer)
	require.True(t, ok)
	assert.Equal(t, "http://relay.example:443/latest", poll.Endpoint.String())
}

func TestSSETransport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "viewer-1", r.URL.Query().Get("clientId"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: first\n\n: ping\n\ndata: second\n\nevent: close\ndata: superseded\n\n")
	}))
	defer ts.Close()

	d := &SSEDialer{Endpoint: serverURL(t, ts, "/events")}
	tr, err := d.Dial(context.Background(), "viewer-1")
	require.NoError(t, err)
	defer func() { _ = tr.Close() }()

	var got collector
	err = tr.Receive(context.Background(), got.handle)

	require.ErrorIs(t, err, ErrClosedByRelay)
	assert.Contains(t, err.Error(), "superseded")
	assert.Equal(t, []string{"first", "second"}, got.all())
}

func TestSSETransport_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := (&SSEDialer{Endpoint: serverURL(t, ts, "/events")}).Dial(context.Background(), "c")
	assert.Error(t, err)
}

func TestSSETransport_CancelUnblocksReceive(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	tr, err := (&SSEDialer{Endpoint: serverURL(t, ts, "/events")}).Dial(context.Background(), "c")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tr.Receive(ctx, func([]byte) {}) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitTimeout):
		t.Fatal("Receive ignored cancellation")
	}
}

func TestWebsocketTransport(t *testing.T) {
	upgrader := gorilla.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteMessage(gorilla.TextMessage, []byte("hello"))
		_ = conn.WriteMessage(gorilla.BinaryMessage, []byte("ignored"))
		_ = conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(4001, "superseded"))
		_, _, _ = conn.ReadMessage()
	}))
	defer ts.Close()

	endpoint := serverURL(t, ts, "/ws")
	endpoint.Scheme = "ws"

	tr, err := (&WebsocketDialer{Endpoint: endpoint}).Dial(context.Background(), "viewer-1")
	require.NoError(t, err)
	defer func() { _ = tr.Close() }()

	var got collector
	err = tr.Receive(context.Background(), got.handle)

	require.ErrorIs(t, err, ErrClosedByRelay)
	assert.True(t, strings.Contains(err.Error(), "4001"))
	assert.Equal(t, []string{"hello"}, got.all())
}

func TestPollTransport_EmitsOnlyChanges(t *testing.T) {
	responses := []string{"", "A", "A", "B"}
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		i := int(calls.Add(1)) - 1
		if i >= len(responses) {
			i = len(responses) - 1
		}
		if responses[i] == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(responses[i]))
	}))
	defer ts.Close()

	clock := clockwork.NewFakeClock()
	d := &PollDialer{Endpoint: serverURL(t, ts, "/latest"), Options: DialerOptions{PollInterval: time.Second, Clock: clock}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := d.Dial(ctx, "c")
	require.NoError(t, err)

	var got collector
	go func() { _ = tr.Receive(ctx, got.handle) }()

	for want := int32(2); want <= 4; want++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)
		require.Eventually(t, func() bool { return calls.Load() == want }, waitTimeout, 5*time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(got.all()) == 2 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []string{"A", "B"}, got.all())
}

func TestPollTransport_ErrorEndsReceive(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	clock := clockwork.NewFakeClock()
	d := &PollDialer{Endpoint: serverURL(t, ts, "/latest"), Options: DialerOptions{PollInterval: time.Second, Clock: clock}}
	tr, err := d.Dial(context.Background(), "c")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- tr.Receive(context.Background(), func([]byte) {}) }()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Second)

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "500")
	case <-time.After(waitTimeout):
		t.Fatal("poll error did not end Receive")
	}
}
