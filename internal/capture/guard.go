package capture

import (
	"log/slog"
	"sync"
)

// Releaser frees one resource. It is called exactly once.
type Releaser func()

// Guard gives every capture resource exactly one owner. Resources live in
// named slots; putting a new set into a slot releases the previous set
// first. Close releases everything, is idempotent and does not stop at a
// panicking releaser, so it can be deferred on error paths.
type Guard struct {
	mu     sync.Mutex
	slots  map[string][]Releaser
	order  []string
	closed bool
}

func NewGuard() *Guard {
	return &Guard{slots: make(map[string][]Releaser)}
}

// Own stores releasers in slot after releasing what the slot held. On a
// closed guard the releasers run immediately.
func (g *Guard) Own(slot string, releasers ...Releaser) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		runReleasers(slot, releasers)
		return
	}
	prev, existed := g.slots[slot]
	g.slots[slot] = releasers
	if !existed {
		g.order = append(g.order, slot)
	}
	g.mu.Unlock()

	runReleasers(slot, prev)
}

// Release frees slot now. Releasing an empty slot is a no-op.
func (g *Guard) Release(slot string) {
	g.mu.Lock()
	prev, ok := g.slots[slot]
	if ok {
		delete(g.slots, slot)
		g.order = removeSlot(g.order, slot)
	}
	g.mu.Unlock()

	runReleasers(slot, prev)
}

// Held reports whether slot currently owns anything.
func (g *Guard) Held(slot string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.slots[slot]
	return ok
}

// Close releases every slot, newest first, in a single synchronous pass.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	slots, order := g.slots, g.order
	g.slots, g.order = nil, nil
	g.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		runReleasers(order[i], slots[order[i]])
	}
}

func runReleasers(slot string, releasers []Releaser) {
	for _, r := range releasers {
		release(slot, r)
	}
}

func release(slot string, r Releaser) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Releaser panicked", "slot", slot, "panic", p)
		}
	}()
	if r != nil {
		r()
	}
}

func removeSlot(order []string, slot string) []string {
	for i, s := range order {
		if s == slot {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
