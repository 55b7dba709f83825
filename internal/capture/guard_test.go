package capture

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type releaseLog struct {
	mu    sync.Mutex
	names []string
}

func (l *releaseLog) releaser(name string) Releaser {
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.names = append(l.names, name)
	}
}

func (l *releaseLog) got() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func TestGuard_OwnReleasesPreviousSet(t *testing.T) {
	var log releaseLog
	g := NewGuard()

	g.Own("track", log.releaser("timer-1"), log.releaser("track-1"))
	assert.Empty(t, log.got())

	g.Own("track", log.releaser("timer-2"))
	assert.Equal(t, []string{"timer-1", "track-1"}, log.got())
	assert.True(t, g.Held("track"))
}

func TestGuard_Release(t *testing.T) {
	var log releaseLog
	g := NewGuard()
	g.Own("sink", log.releaser("sink"))

	g.Release("sink")
	g.Release("sink")
	g.Release("never-owned")

	assert.Equal(t, []string{"sink"}, log.got())
	assert.False(t, g.Held("sink"))
}

func TestGuard_CloseReleasesEverythingOnceNewestFirst(t *testing.T) {
	var log releaseLog
	g := NewGuard()
	g.Own("connection", log.releaser("connection"))
	g.Own("sink", log.releaser("sink"))
	g.Own("track", log.releaser("track"))

	g.Close()
	g.Close()

	assert.Equal(t, []string{"track", "sink", "connection"}, log.got())
}

func TestGuard_CloseSurvivesPanickingReleaser(t *testing.T) {
	var log releaseLog
	g := NewGuard()
	g.Own("a", log.releaser("a"))
	g.Own("b", func() { panic("boom") }, log.releaser("b"))

	assert.NotPanics(t, g.Close)
	assert.Equal(t, []string{"b", "a"}, log.got())
}

func TestGuard_OwnAfterCloseReleasesImmediately(t *testing.T) {
	var log releaseLog
	g := NewGuard()
	g.Close()

	g.Own("late", log.releaser("late"))

	assert.Equal(t, []string{"late"}, log.got())
	assert.False(t, g.Held("late"))
}

func TestGuard_ConcurrentUse(t *testing.T) {
	g := NewGuard()
	var wg sync.WaitGroup
	var mu sync.Mutex
	released := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Own("pass", func() {
				mu.Lock()
				released++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	g.Close()

	assert.Equal(t, 50, released)
}
