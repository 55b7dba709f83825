package capture

import (
	"math"
	"runtime/debug"
	"runtime/metrics"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// MemoryProbe compares live heap usage against a limit. With no known limit
// the probe is unavailable and never warns.
type MemoryProbe struct {
	limit int64
	read  func() uint64
}

// NewMemoryProbe uses limit, or the runtime soft memory limit when limit <= 0.
func NewMemoryProbe(limit int64) *MemoryProbe {
	if limit <= 0 {
		if soft := debug.SetMemoryLimit(-1); soft > 0 && soft != math.MaxInt64 {
			limit = soft
		}
	}
	return &MemoryProbe{limit: limit, read: readHeapObjects}
}

// Ratio returns heap usage as a fraction of the limit.
func (p *MemoryProbe) Ratio() (float64, bool) {
	if p == nil || p.limit <= 0 {
		return 0, false
	}
	used := p.read()
	if used == 0 {
		return 0, false
	}
	return float64(used) / float64(p.limit), true
}

func readHeapObjects() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}
