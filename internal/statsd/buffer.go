package statsd

import "github.com/ethpandaops/cwbackend/internal/backend"

// Self-instrumentation counters added to every snapshot.
const (
	PacketsReceivedKey = "statsd.packets_received"
	BadLinesKey        = "statsd.bad_lines_seen"
	MetricsReceivedKey = "statsd.metrics_received"
)

// Buffer accumulates samples for one flush interval. It is not safe for
// concurrent use; the server's run loop owns it.
type Buffer struct {
	counters map[string]float64
	timers   map[string][]float64
	gauges   map[string]float64
	received int
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		counters: make(map[string]float64, 64),
		timers:   make(map[string][]float64, 64),
		gauges:   make(map[string]float64, 64),
	}
}

// Add folds one sample into the buffer.
func (b *Buffer) Add(s Sample) {
	b.received++

	switch s.Type {
	case TypeCounter:
		b.counters[s.Name] += s.Value / s.SampleRate
	case TypeTimer:
		b.timers[s.Name] = append(b.timers[s.Name], s.Value)
	case TypeGauge:
		if s.Delta {
			b.gauges[s.Name] += s.Value
		} else {
			b.gauges[s.Name] = s.Value
		}
	}
}

// Rotate returns the interval's snapshot and starts a new interval.
// Counters and timers reset; gauges keep their last value.
func (b *Buffer) Rotate() backend.Snapshot {
	gauges := make(map[string]float64, len(b.gauges))
	for k, v := range b.gauges {
		gauges[k] = v
	}

	snap := backend.Snapshot{
		Counters: b.counters,
		Timers:   b.timers,
		Gauges:   gauges,
	}

	snap.Counters[MetricsReceivedKey] += float64(b.received)

	b.counters = make(map[string]float64, len(snap.Counters))
	b.timers = make(map[string][]float64, len(snap.Timers))
	b.received = 0

	return snap
}
