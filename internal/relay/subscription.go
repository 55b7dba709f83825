package relay

import (
	"sync"
	"sync/atomic"

	"github.com/pscheid92/tilecast/internal/domain"
)

// Reason says why a subscription ended.
type Reason string

const (
	ReasonClosed     Reason = "closed"
	ReasonSuperseded Reason = "superseded"
	ReasonSlow       Reason = "slow"
	ReasonShutdown   Reason = "shutdown"
)

// Subscription is one subscriber's view of the relay. Updates yields the
// latest value at subscribe time (if any) followed by every later ingest in
// order. The channel is closed when the subscription ends.
type Subscription struct {
	id       uint64
	clientID string
	ch       chan domain.Payload
	reason   atomic.Pointer[Reason]
	relay    *Relay
	once     sync.Once
}

func (s *Subscription) Updates() <-chan domain.Payload {
	return s.ch
}

func (s *Subscription) ClientID() string {
	return s.clientID
}

// Reason is empty while the subscription is live.
func (s *Subscription) Reason() Reason {
	if r := s.reason.Load(); r != nil {
		return *r
	}
	return ""
}

// Close unregisters the subscription. Safe to call more than once and after the relay stopped.
func (s *Subscription) Close() {
	s.once.Do(func() {
		select {
		case s.relay.cmdCh <- unsubscribeCmd{sub: s}:
		case <-s.relay.done:
		}
	})
}

func (s *Subscription) end(reason Reason) {
	s.reason.Store(&reason)
	close(s.ch)
}
