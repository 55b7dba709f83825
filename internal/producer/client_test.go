package producer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/pscheid92/tilecast/internal/platform/correlation"
	"github.com/pscheid92/tilecast/internal/platform/retry"
	"github.com/pscheid92/tilecast/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, RateLimitBackoff: time.Millisecond}
}

func samplePayload() domain.Payload {
	return domain.Payload{
		Kind: domain.KindRecommendations,
		Recommendations: []domain.Recommendation{
			{Action: domain.Named(domain.ActionPon), Confidence: 0.9, ConsumedTiles: []domain.Tile{"5p", "5p"}},
		},
		Hand:        []domain.Tile{"1m", "5p", "5p"},
		LastDiscard: "5p",
	}
}

func TestIngest_PostsEnvelope(t *testing.T) {
	var got domain.Payload
	var gotCorrelation, gotAgent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ingestPath, r.URL.Path)
		gotCorrelation = r.Header.Get(correlation.Header)
		gotAgent = r.Header.Get("User-Agent")

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		got, err = wire.Decode(body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", WithRetryPolicy(fastPolicy()))
	ctx := correlation.WithID(context.Background(), "tick-1")

	require.NoError(t, c.Ingest(ctx, samplePayload()))
	assert.Equal(t, domain.ActionPon, got.Recommendations[0].Action.Name())
	assert.Equal(t, "tick-1", gotCorrelation)
	assert.Contains(t, gotAgent, "tilecast-producer/")
}

func TestIngest_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetryPolicy(fastPolicy()))

	require.NoError(t, c.Ingest(context.Background(), samplePayload()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestIngest_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetryPolicy(fastPolicy()))

	require.NoError(t, c.Ingest(context.Background(), samplePayload()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestIngest_HonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	var waited time.Duration
	policy := fastPolicy()
	policy.MaxRetryAfter = 2 * time.Millisecond
	policy.OnRetry = func(_ int, _ error, backoff time.Duration) { waited = backoff }
	c := NewClient(ts.URL, WithRetryPolicy(policy))

	require.NoError(t, c.Ingest(context.Background(), samplePayload()))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2*time.Millisecond, waited)
}

func TestParseRetryAfter(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	cases := map[string]time.Duration{
		"":                              0,
		"7":                             7 * time.Second,
		"-3":                            0,
		"soon":                          0,
		"Wed, 14 Oct 2026 12:00:09 GMT": 9 * time.Second,
		"Wed, 14 Oct 2026 11:59:00 GMT": 0,
	}
	for value, expected := range cases {
		assert.Equal(t, expected, parseRetryAfter(value, clock), "value %q", value)
	}
}

func TestIngest_RejectionIsPermanent(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "validation", status: http.StatusBadRequest, want: domain.ErrMalformedPayload},
		{name: "too large", status: http.StatusRequestEntityTooLarge, want: domain.ErrMalformedPayload},
		{name: "replica", status: http.StatusConflict, want: domain.ErrReplicaIngest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope","type":"validation"}`))
			}))
			defer ts.Close()

			c := NewClient(ts.URL, WithRetryPolicy(fastPolicy()))
			err := c.Ingest(context.Background(), samplePayload())

			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "nope")
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestIngest_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetryPolicy(fastPolicy()))
	err := c.Ingest(context.Background(), samplePayload())

	require.ErrorIs(t, err, domain.ErrRelayStopped)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, retry.Retry, classify(io.ErrUnexpectedEOF))
	assert.Equal(t, retry.Stop, classify(&retry.PermanentError{Err: io.EOF}))
	assert.Equal(t, retry.After, classify(&StatusError{Code: http.StatusTooManyRequests}))
	assert.Equal(t, retry.Retry, classify(&StatusError{Code: http.StatusBadGateway}))
	assert.Equal(t, retry.Stop, classify(&StatusError{Code: http.StatusNotFound}))
}
