package capture

import (
	"math"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryProbe_Ratio(t *testing.T) {
	p := &MemoryProbe{limit: 1000, read: func() uint64 { return 850 }}

	ratio, ok := p.Ratio()

	assert.True(t, ok)
	assert.InDelta(t, 0.85, ratio, 1e-9)
}

func TestMemoryProbe_UnknownLimit(t *testing.T) {
	prev := debug.SetMemoryLimit(math.MaxInt64)
	defer debug.SetMemoryLimit(prev)

	p := NewMemoryProbe(0)
	_, ok := p.Ratio()
	assert.False(t, ok)

	var nilProbe *MemoryProbe
	_, ok = nilProbe.Ratio()
	assert.False(t, ok)
}

func TestMemoryProbe_ReadsRuntimeHeap(t *testing.T) {
	p := NewMemoryProbe(1 << 40)

	ratio, ok := p.Ratio()

	assert.True(t, ok)
	assert.Greater(t, ratio, 0.0)
	assert.Less(t, ratio, 1.0)
}
