package relay

import (
	"sync/atomic"

	"github.com/pscheid92/tilecast/internal/domain"
)

// Store is the single-slot latest-value cell. Only the relay loop writes it;
// readers get the stored value and must treat its slices as read-only.
type Store struct {
	latest atomic.Pointer[domain.Payload]
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) put(p domain.Payload) {
	s.latest.Store(&p)
}

// Peek returns the latest payload, or ok=false before the first ingest.
func (s *Store) Peek() (domain.Payload, bool) {
	p := s.latest.Load()
	if p == nil {
		return domain.Payload{}, false
	}
	return *p, true
}
