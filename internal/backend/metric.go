package backend

import "time"

// Kind identifies which statsd metric family a record came from.
type Kind uint8

const (
	// KindCount is a counter value for one flush interval.
	KindCount Kind = iota
	// KindTiming is a statistic set computed from timer samples.
	KindTiming
	// KindGauge is the last known value of a gauge.
	KindGauge
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindCount:
		return "count"
	case KindTiming:
		return "timing"
	case KindGauge:
		return "gauge"
	default:
		return "unknown"
	}
}

// Snapshot is one interval's worth of aggregated metrics handed over
// by the host aggregator.
type Snapshot struct {
	Counters map[string]float64
	Timers   map[string][]float64
	Gauges   map[string]float64
}

// TotalMetrics returns the number of metric names in the snapshot.
func (s Snapshot) TotalMetrics() int {
	return len(s.Counters) + len(s.Timers) + len(s.Gauges)
}

// TimingStats is the statistic set reported for a timer.
type TimingStats struct {
	Minimum     float64
	Maximum     float64
	Sum         float64
	SampleCount int
}

// Record is one normalized metric ready for submission.
type Record struct {
	Name      string
	Kind      Kind
	Timestamp time.Time
	// Dimensions is shared by every record of a flush and must not be modified.
	Dimensions []Dimension
	// Value is set for KindCount and KindGauge.
	Value float64
	// Stats is set for KindTiming only.
	Stats *TimingStats
}

// Batch is a single submission to the ingestion API.
type Batch struct {
	Namespace string
	Records   []Record
}

// Counts returns the number of counter, timer and gauge records in the batch.
func (b Batch) Counts() (counters, timers, gauges int) {
	for _, r := range b.Records {
		switch r.Kind {
		case KindCount:
			counters++
		case KindTiming:
			timers++
		case KindGauge:
			gauges++
		}
	}

	return counters, timers, gauges
}
