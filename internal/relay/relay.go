// Package relay stores the latest recommendation payload and fans each ingest
// out to every live subscriber.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
	"github.com/pscheid92/tilecast/internal/domain"
)

const (
	DefaultBufferSize     = 16
	DefaultMaxSubscribers = 1000

	mirrorTimeout = 2 * time.Second
	stopTimeout   = 10 * time.Second
	cmdQueueSize  = 256
)

// Mirror forwards accepted payloads to other relay instances.
type Mirror interface {
	Publish(ctx context.Context, p domain.Payload) error
}

type relayCmd interface{ isRelayCmd() }

type baseRelayCmd struct{}

func (baseRelayCmd) isRelayCmd() {}

type publishCmd struct {
	baseRelayCmd
	payload domain.Payload
	ack     chan struct{}
}

type subscribeCmd struct {
	baseRelayCmd
	clientID string
	reply    chan subscribeReply
}

type subscribeReply struct {
	sub *Subscription
	err error
}

type unsubscribeCmd struct {
	baseRelayCmd
	sub *Subscription
}

type countCmd struct {
	baseRelayCmd
	reply chan int
}

type stopCmd struct {
	baseRelayCmd
}

type Option func(*Relay)

func WithClock(c clockwork.Clock) Option { return func(r *Relay) { r.clock = c } }

func WithMetrics(m *metrics.RelayMetrics) Option { return func(r *Relay) { r.metrics = m } }

// WithBufferSize sets how many undelivered payloads a subscriber may queue before it is evicted.
func WithBufferSize(n int) Option { return func(r *Relay) { r.bufferSize = max(n, 1) } }

func WithMaxSubscribers(n int) Option { return func(r *Relay) { r.maxSubscribers = n } }

// WithMirror publishes every ingested payload to m after local delivery.
func WithMirror(m Mirror) Option { return func(r *Relay) { r.mirror = m } }

// ReadOnly makes Ingest fail with domain.ErrReplicaIngest. Payloads then arrive only through Apply.
func ReadOnly() Option { return func(r *Relay) { r.readOnly = true } }

// Relay is an actor: one goroutine owns the subscriber set and is the only
// writer of the Store, so per-subscriber delivery follows ingest order.
type Relay struct {
	cmdCh chan relayCmd
	done  chan struct{}
	store *Store
	clock clockwork.Clock

	metrics        *metrics.RelayMetrics
	mirror         Mirror
	readOnly       bool
	bufferSize     int
	maxSubscribers int

	subs     map[uint64]*Subscription
	byClient map[string]*Subscription
	nextID   uint64

	stopOnce sync.Once
}

func New(store *Store, opts ...Option) *Relay {
	r := &Relay{
		cmdCh:          make(chan relayCmd, cmdQueueSize),
		done:           make(chan struct{}),
		store:          store,
		clock:          clockwork.NewRealClock(),
		bufferSize:     DefaultBufferSize,
		maxSubscribers: DefaultMaxSubscribers,
		subs:           make(map[uint64]*Subscription),
		byClient:       make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewRelayMetrics(prometheus.NewRegistry())
	}
	go r.run()
	return r
}

// Ingest validates p, makes it the latest value and delivers it to every
// subscriber before returning. Rejected payloads change nothing.
func (r *Relay) Ingest(ctx context.Context, p domain.Payload) error {
	if r.readOnly {
		r.metrics.Ingests.WithLabelValues("replica").Inc()
		return domain.ErrReplicaIngest
	}
	sorted, err := r.apply(ctx, p)
	if err != nil {
		return err
	}
	r.metrics.Ingests.WithLabelValues("accepted").Inc()

	if r.mirror != nil {
		r.publishMirror(ctx, sorted)
	}
	return nil
}

// Apply delivers p locally without mirroring it. Replicas feed mirrored payloads through here.
func (r *Relay) Apply(ctx context.Context, p domain.Payload) error {
	_, err := r.apply(ctx, p)
	return err
}

// apply validates and sorts a private copy of p and hands it to the loop.
// The copy is what every subscriber and the mirror see.
func (r *Relay) apply(ctx context.Context, p domain.Payload) (domain.Payload, error) {
	if err := p.Validate(); err != nil {
		r.metrics.Ingests.WithLabelValues("rejected").Inc()
		return domain.Payload{}, err
	}
	p = p.Clone()
	p.SortRecommendations()

	ack := make(chan struct{})
	if err := r.send(ctx, publishCmd{payload: p, ack: ack}); err != nil {
		return domain.Payload{}, err
	}
	select {
	case <-ack:
		return p, nil
	case <-r.done:
		return domain.Payload{}, domain.ErrRelayStopped
	case <-ctx.Done():
		// The loop still delivers the command; only the caller stops waiting.
		return domain.Payload{}, fmt.Errorf("ingest wait: %w", ctx.Err())
	}
}

func (r *Relay) publishMirror(ctx context.Context, p domain.Payload) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()

	if err := r.mirror.Publish(ctx, p); err != nil {
		r.metrics.MirrorPublishes.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "Mirror publish failed", "error", err)
		return
	}
	r.metrics.MirrorPublishes.WithLabelValues("ok").Inc()
}

// Subscribe registers a subscriber. A non-empty clientID replaces any live
// subscription with the same id, which ends with ReasonSuperseded.
func (r *Relay) Subscribe(ctx context.Context, clientID string) (*Subscription, error) {
	reply := make(chan subscribeReply, 1)
	if err := r.send(ctx, subscribeCmd{clientID: clientID, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.sub, res.err
	case <-r.done:
		return nil, domain.ErrRelayStopped
	case <-ctx.Done():
		return nil, fmt.Errorf("subscribe wait: %w", ctx.Err())
	}
}

// Peek never blocks; ok is false until the first successful ingest.
func (r *Relay) Peek() (domain.Payload, bool) {
	return r.store.Peek()
}

// SubscriberCount returns -1 once the relay has stopped.
func (r *Relay) SubscriberCount() int {
	reply := make(chan int, 1)
	if err := r.send(context.Background(), countCmd{reply: reply}); err != nil {
		return -1
	}
	select {
	case n := <-reply:
		return n
	case <-r.done:
		return -1
	}
}

// Stop ends every subscription and waits for the loop to exit. Idempotent.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		select {
		case r.cmdCh <- stopCmd{}:
		case <-r.done:
			return
		}

		timeout := r.clock.NewTimer(stopTimeout)
		defer timeout.Stop()

		select {
		case <-r.done:
			slog.Info("Relay stopped")
		case <-timeout.Chan():
			slog.Warn("Relay stop timeout exceeded", "timeout", stopTimeout)
		}
	})
}

func (r *Relay) send(ctx context.Context, cmd relayCmd) error {
	select {
	case r.cmdCh <- cmd:
		return nil
	case <-r.done:
		return domain.ErrRelayStopped
	case <-ctx.Done():
		return fmt.Errorf("relay command: %w", ctx.Err())
	}
}

func (r *Relay) run() {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Relay panic recovered", "panic", rec)
			r.endAll(ReasonShutdown)
		}
	}()

	depthTicker := r.clock.NewTicker(time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			r.metrics.CommandQueueSize.Set(float64(len(r.cmdCh)))

		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case publishCmd:
				r.handlePublish(c)
			case subscribeCmd:
				c.reply <- r.handleSubscribe(c)
			case unsubscribeCmd:
				if r.subs[c.sub.id] == c.sub {
					r.end(c.sub, ReasonClosed)
				}
			case countCmd:
				c.reply <- len(r.subs)
			case stopCmd:
				r.endAll(ReasonShutdown)
				return
			default:
				slog.Warn("Relay received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (r *Relay) handlePublish(c publishCmd) {
	start := r.clock.Now()
	r.store.put(c.payload)

	for _, sub := range r.subs {
		select {
		case sub.ch <- c.payload:
		default:
			slog.Warn("Evicting slow subscriber", "client_id", sub.clientID, "buffer", r.bufferSize)
			r.end(sub, ReasonSlow)
		}
	}

	r.metrics.FanoutDuration.Observe(r.clock.Since(start).Seconds())
	close(c.ack)
}

func (r *Relay) handleSubscribe(c subscribeCmd) subscribeReply {
	if c.clientID != "" {
		if prev, ok := r.byClient[c.clientID]; ok {
			slog.Info("Superseding subscriber with same client id", "client_id", c.clientID)
			r.end(prev, ReasonSuperseded)
		}
	}
	if len(r.subs) >= r.maxSubscribers {
		r.metrics.Evictions.WithLabelValues("rejected").Inc()
		return subscribeReply{err: fmt.Errorf("%w: max %d", domain.ErrRelayFull, r.maxSubscribers)}
	}

	r.nextID++
	sub := &Subscription{
		id:       r.nextID,
		clientID: c.clientID,
		ch:       make(chan domain.Payload, r.bufferSize),
		relay:    r,
	}
	if latest, ok := r.store.Peek(); ok {
		sub.ch <- latest
	}

	r.subs[sub.id] = sub
	if c.clientID != "" {
		r.byClient[c.clientID] = sub
	}
	r.metrics.Subscribers.Set(float64(len(r.subs)))
	return subscribeReply{sub: sub}
}

func (r *Relay) end(sub *Subscription, reason Reason) {
	delete(r.subs, sub.id)
	if r.byClient[sub.clientID] == sub {
		delete(r.byClient, sub.clientID)
	}
	sub.end(reason)

	r.metrics.Evictions.WithLabelValues(string(reason)).Inc()
	r.metrics.Subscribers.Set(float64(len(r.subs)))
}

func (r *Relay) endAll(reason Reason) {
	for _, sub := range r.subs {
		r.end(sub, reason)
	}
}

var (
	_ domain.Ingester     = (*Relay)(nil)
	_ domain.LatestSource = (*Relay)(nil)
)
