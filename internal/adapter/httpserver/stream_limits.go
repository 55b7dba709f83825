package httpserver

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	rateEntryIdle = 10 * time.Minute
	sweepEvery    = 5 * time.Minute
)

type limitReason string

const (
	limitPerIP limitReason = "per_ip_limit"
	limitRate  limitReason = "rate_limit"
)

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// streamLimits caps how many push streams one address holds open and how
// fast it may open new ones. The relay's subscriber cap applies on top.
type streamLimits struct {
	clock    clockwork.Clock
	maxPerIP int
	rate     rate.Limit
	burst    int

	mu      sync.Mutex
	open    map[string]int
	rates   map[string]*rateEntry
	sweepAt time.Time
}

func newStreamLimits(maxPerIP int, perSecond float64, burst int, clock clockwork.Clock) *streamLimits {
	return &streamLimits{
		clock:    clock,
		maxPerIP: maxPerIP,
		rate:     rate.Limit(perSecond),
		burst:    burst,
		open:     make(map[string]int),
		rates:    make(map[string]*rateEntry),
		sweepAt:  clock.Now().Add(sweepEvery),
	}
}

// acquire admits one stream for ip. The returned release is idempotent.
func (l *streamLimits) acquire(ip string) (func(), limitReason, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.sweepAt) {
		l.sweep(now)
		l.sweepAt = now.Add(sweepEvery)
	}

	entry, ok := l.rates[ip]
	if !ok {
		entry = &rateEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.rates[ip] = entry
	}
	entry.lastSeen = now
	if !entry.limiter.AllowN(now, 1) {
		return nil, limitRate, false
	}

	if l.open[ip] >= l.maxPerIP {
		return nil, limitPerIP, false
	}
	l.open[ip]++

	var once sync.Once
	return func() { once.Do(func() { l.release(ip) }) }, "", true
}

func (l *streamLimits) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := l.open[ip]; n > 1 {
		l.open[ip] = n - 1
	} else {
		delete(l.open, ip)
	}
}

func (l *streamLimits) openStreams(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[ip]
}

// sweep drops idle rate limiters. Must be called with mu held.
func (l *streamLimits) sweep(now time.Time) {
	cutoff := now.Add(-rateEntryIdle)
	for ip, entry := range l.rates {
		if entry.lastSeen.Before(cutoff) {
			delete(l.rates, ip)
		}
	}
}
