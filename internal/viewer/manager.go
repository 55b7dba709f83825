package viewer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/pscheid92/tilecast/internal/wire"
)

const (
	DefaultBackoffFloor   = time.Second
	DefaultBackoffCeiling = 30 * time.Second

	// malformedWarnAfter consecutive undecodable messages raise a protocol warning.
	malformedWarnAfter = 5
	malformedWarning   = "relay is sending malformed messages"
)

// Options configures a Manager. OnStatus and OnPayload are called from the
// manager's goroutine, one at a time, in event order. They must not call
// back into the Manager.
type Options struct {
	ClientID       string
	Dialer         Dialer
	Clock          clockwork.Clock
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	Metrics        *metrics.ViewerMetrics
	OnStatus       func(Status)
	OnPayload      func(domain.Payload)
}

// Manager owns the viewer's single connection to the relay and drives the
// Disconnected, Connecting, Connected, Backoff and Closed states. All state
// lives in one goroutine; transports report back through events tagged with
// their attempt number so late events from a replaced attempt are dropped.
type Manager struct {
	opts Options

	events chan event
	cmds   chan command
	done   chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	// owned by run
	status    Status
	delay     time.Duration
	seq       uint64
	live      *attempt
	timer     clockwork.Timer
	malformed int
}

type attempt struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
}

type eventKind int

const (
	evOpened eventKind = iota
	evMessage
	evEnded
	evTimer
)

type event struct {
	kind    eventKind
	attempt uint64
	data    []byte
	err     error
}

type command int

const (
	cmdReconnect command = iota
	cmdClose
)

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.BackoffFloor <= 0 {
		opts.BackoffFloor = DefaultBackoffFloor
	}
	if opts.BackoffCeiling < opts.BackoffFloor {
		opts.BackoffCeiling = max(DefaultBackoffCeiling, opts.BackoffFloor)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewViewerMetrics(prometheus.NewRegistry())
	}
	if opts.OnStatus == nil {
		opts.OnStatus = func(Status) {}
	}
	if opts.OnPayload == nil {
		opts.OnPayload = func(domain.Payload) {}
	}
	return &Manager{
		opts:   opts,
		events: make(chan event),
		cmds:   make(chan command),
		done:   make(chan struct{}),
		status: Status{State: StateDisconnected},
		delay:  opts.BackoffFloor,
	}
}

// Start makes the first connection attempt. Calling it again has no effect.
func (m *Manager) Start() {
	m.startOnce.Do(func() { go m.run() })
}

// Reconnect drops the current attempt or pending backoff and connects again right away.
func (m *Manager) Reconnect() {
	select {
	case m.cmds <- cmdReconnect:
	case <-m.done:
	}
}

// Close tears the connection down and waits until every transport has been
// drained. No reconnect happens afterwards. Safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		// A manager that was never started has nothing to tear down.
		m.startOnce.Do(func() { close(m.done) })
		select {
		case m.cmds <- cmdClose:
		case <-m.done:
		}
	})
	<-m.done
}

// Done is closed once the manager reached StateClosed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) run() {
	defer close(m.done)
	m.connect()

	for {
		var timerC <-chan time.Time
		if m.timer != nil {
			timerC = m.timer.Chan()
		}

		select {
		case cmd := <-m.cmds:
			switch cmd {
			case cmdReconnect:
				slog.Info("Manual reconnect requested")
				m.stopTimer()
				m.connect()
			case cmdClose:
				m.teardown()
				return
			}

		case <-timerC:
			m.timer = nil
			m.opts.Metrics.ReconnectDelay.Set(0)
			m.connect()

		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev event) {
	if m.live == nil || ev.attempt != m.live.id {
		return
	}

	switch ev.kind {
	case evOpened:
		m.delay = m.opts.BackoffFloor
		m.setStatus(Status{State: StateConnected, Warning: m.status.Warning})

	case evMessage:
		m.receive(ev.data)

	case evEnded:
		m.dropLive()
		m.scheduleReconnect(ev.err)
	}
}

func (m *Manager) receive(data []byte) {
	p, err := wire.Decode(data)
	if err != nil {
		m.malformed++
		m.opts.Metrics.MalformedDropped.Inc()
		slog.Warn("Dropping malformed message", "error", err, "consecutive", m.malformed)
		if m.malformed == malformedWarnAfter {
			s := m.status
			s.Warning = malformedWarning
			m.setStatus(s)
		}
		return
	}

	if m.malformed >= malformedWarnAfter {
		s := m.status
		s.Warning = ""
		m.setStatus(s)
	}
	m.malformed = 0
	m.opts.Metrics.PayloadsReceived.Inc()
	m.opts.OnPayload(p)
}

// connect closes any live transport before opening a new attempt, so this
// viewer never holds two connections under the same client id.
func (m *Manager) connect() {
	m.dropLive()

	m.seq++
	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{id: m.seq, cancel: cancel, done: make(chan struct{})}
	m.live = a

	m.setStatus(Status{State: StateConnecting, Warning: m.status.Warning})
	go m.runAttempt(ctx, a)
}

func (m *Manager) runAttempt(ctx context.Context, a *attempt) {
	defer close(a.done)

	send := func(ev event) bool {
		ev.attempt = a.id
		select {
		case m.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	t, err := m.opts.Dialer.Dial(ctx, m.opts.ClientID)
	if err != nil {
		send(event{kind: evEnded, err: err})
		return
	}
	defer func() { _ = t.Close() }()

	if !send(event{kind: evOpened}) {
		return
	}
	err = t.Receive(ctx, func(data []byte) {
		send(event{kind: evMessage, data: data})
	})
	send(event{kind: evEnded, err: err})
}

// dropLive cancels the live attempt and waits for its goroutine to finish.
func (m *Manager) dropLive() {
	if m.live == nil {
		return
	}
	m.live.cancel()
	<-m.live.done
	m.live = nil
}

func (m *Manager) scheduleReconnect(cause error) {
	if m.timer != nil {
		return
	}
	delay := m.delay
	m.timer = m.opts.Clock.NewTimer(delay)
	m.delay = min(m.delay*2, m.opts.BackoffCeiling)

	m.opts.Metrics.ReconnectDelay.Set(delay.Seconds())
	slog.Warn("Disconnected from relay, retrying", "delay", delay, "error", cause)
	m.setStatus(Status{State: StateBackoff, Delay: delay, Err: cause, Warning: m.status.Warning})
}

func (m *Manager) stopTimer() {
	if m.timer == nil {
		return
	}
	m.timer.Stop()
	m.timer = nil
	m.opts.Metrics.ReconnectDelay.Set(0)
}

func (m *Manager) teardown() {
	m.stopTimer()
	m.dropLive()
	m.setStatus(Status{State: StateClosed})
}

func (m *Manager) setStatus(s Status) {
	if s.State != m.status.State {
		m.opts.Metrics.StatusChanges.WithLabelValues(s.State.String()).Inc()
	}
	m.status = s
	m.opts.OnStatus(s)
}
