// Package producer is the ingest side of the relay's HTTP surface: a client
// that posts payloads to POST /update with retry on transient failures.
package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/pscheid92/tilecast/internal/platform/correlation"
	"github.com/pscheid92/tilecast/internal/platform/retry"
	"github.com/pscheid92/tilecast/internal/platform/version"
	"github.com/pscheid92/tilecast/internal/wire"
)

const (
	requestTimeout  = 5 * time.Second
	maxErrorBody    = 4 << 10
	ingestPath      = "/update"
	defaultAttempts = 4
)

// StatusError is a non-2xx ingest response. Wait holds the relay's
// Retry-After, if it sent one.
type StatusError struct {
	Code    int
	Message string
	Wait    time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay responded %d: %s", e.Code, e.Message)
}

func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

type Client struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
	agent   string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

func WithClock(c clockwork.Clock) Option { return func(cl *Client) { cl.policy.Clock = c } }

func WithRetryPolicy(p retry.Policy) Option { return func(cl *Client) { cl.policy = p } }

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		agent:   version.UserAgent("producer"),
		policy: retry.Policy{
			MaxAttempts:      defaultAttempts,
			InitialBackoff:   250 * time.Millisecond,
			MaxBackoff:       2 * time.Second,
			RateLimitBackoff: 2 * time.Second,
			MaxRetryAfter:    10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Ingest failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		}
	}
	return c
}

// Ingest posts p to the relay. Rejections map back onto the domain
// sentinels so callers can tell a bad payload from a replica.
func (c *Client) Ingest(ctx context.Context, p domain.Payload) error {
	body, err := wire.Encode(p)
	if err != nil {
		return err
	}
	ctx, id := correlation.Ensure(ctx)

	err = retry.DoVoid(ctx, c.policy, classify, func(ctx context.Context) error {
		return c.post(ctx, id, body)
	})
	if err != nil {
		return toDomainError(err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, correlationID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ingestPath, bytes.NewReader(body))
	if err != nil {
		return &retry.PermanentError{Err: fmt.Errorf("build ingest request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set(correlation.Header, correlationID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post ingest: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return &StatusError{
		Code:    resp.StatusCode,
		Message: errorMessage(resp.Body),
		Wait:    parseRetryAfter(resp.Header.Get("Retry-After"), c.policy.Clock),
	}
}

// parseRetryAfter accepts both the delay-seconds and the HTTP-date form.
func parseRetryAfter(value string, clock clockwork.Clock) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return max(0, time.Duration(secs)*time.Second)
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	now := time.Now()
	if clock != nil {
		now = clock.Now()
	}
	return max(0, at.Sub(now))
}

func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

func classify(err error) retry.Action {
	var perm *retry.PermanentError
	if errors.As(err, &perm) {
		return retry.Stop
	}
	var status *StatusError
	if !errors.As(err, &status) {
		return retry.Retry
	}
	switch {
	case status.Code == http.StatusTooManyRequests:
		return retry.After
	case status.Code >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

func toDomainError(err error) error {
	var status *StatusError
	if !errors.As(err, &status) {
		return err
	}
	switch status.Code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %w", domain.ErrMalformedPayload, err)
	case http.StatusConflict:
		return fmt.Errorf("%w: %w", domain.ErrReplicaIngest, err)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w", domain.ErrRelayStopped, err)
	default:
		return err
	}
}
