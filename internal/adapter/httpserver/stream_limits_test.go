package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	apperrors "github.com/pscheid92/tilecast/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamLimits_PerIP(t *testing.T) {
	l := newStreamLimits(2, 100, 100, clockwork.NewFakeClock())

	r1, _, ok := l.acquire("10.0.0.1")
	require.True(t, ok)
	_, _, ok = l.acquire("10.0.0.1")
	require.True(t, ok)

	_, reason, ok := l.acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, limitPerIP, reason)

	_, _, ok = l.acquire("10.0.0.2")
	assert.True(t, ok, "other addresses are unaffected")

	r1()
	r1()
	assert.Equal(t, 1, l.openStreams("10.0.0.1"))
	_, _, ok = l.acquire("10.0.0.1")
	assert.True(t, ok)
}

func TestStreamLimits_ConnectRate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newStreamLimits(100, 1, 2, clock)

	for range 2 {
		_, _, ok := l.acquire("10.0.0.1")
		require.True(t, ok)
	}
	_, reason, ok := l.acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, limitRate, reason)

	clock.Advance(time.Second)
	_, _, ok = l.acquire("10.0.0.1")
	assert.True(t, ok)
}

func TestStreamLimits_SweepsIdleLimiters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newStreamLimits(10, 1, 1, clock)

	release, _, ok := l.acquire("10.0.0.1")
	require.True(t, ok)
	release()

	clock.Advance(rateEntryIdle + sweepEvery + time.Second)
	_, _, ok = l.acquire("10.0.0.2")
	require.True(t, ok)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.rates, "10.0.0.1")
	assert.Contains(t, l.rates, "10.0.0.2")
}

func TestSSE_PerIPLimitRejects(t *testing.T) {
	srv, r := newTestServer(t, withStreamLimit(1))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	_ = openSSE(t, ts, "viewer-1")
	waitForSubscribers(t, r, 1)

	resp, err := http.Get(ts.URL + "/events?clientId=viewer-2")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, 1, r.SubscriberCount())
}

func TestWebsocket_PerIPLimitRejects(t *testing.T) {
	srv, _ := newTestServer(t, withStreamLimit(0))

	req := httptest.NewRequest(http.MethodGet, "/ws?clientId=viewer-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, apperrors.TypeRateLimited, decodeErrorResponse(t, rec).Type)
}
