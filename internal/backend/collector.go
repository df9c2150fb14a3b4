package backend

import (
	"math"
	"time"
)

// Collector converts one snapshot into normalized records.
type Collector struct {
	filter     *Filter
	dimensions []Dimension
}

// NewCollector creates a Collector that tags every record with dimensions.
func NewCollector(filter *Filter, dimensions []Dimension) *Collector {
	return &Collector{
		filter:     filter,
		dimensions: dimensions,
	}
}

// Collect filters the snapshot and returns its records in the order
// timers, counters, gauges. Within a kind, records are sorted by name.
func (c *Collector) Collect(timestamp int64, snap Snapshot) []Record {
	ts := time.Unix(timestamp, 0).UTC()

	records := make([]Record, 0, snap.TotalMetrics())
	records = c.collectTimers(records, ts, snap.Timers)
	records = c.collectCounters(records, ts, snap.Counters)
	records = c.collectGauges(records, ts, snap.Gauges)

	return records
}

func (c *Collector) collectTimers(
	records []Record,
	ts time.Time,
	timers map[string][]float64,
) []Record {
	for _, name := range admittedNames(c.filter, timers) {
		stats := ComputeTimingStats(timers[name])

		records = append(records, Record{
			Name:       name,
			Kind:       KindTiming,
			Timestamp:  ts,
			Dimensions: c.dimensions,
			Stats:      &stats,
		})
	}

	return records
}

func (c *Collector) collectCounters(
	records []Record,
	ts time.Time,
	counters map[string]float64,
) []Record {
	for _, name := range admittedNames(c.filter, counters) {
		records = append(records, Record{
			Name:       name,
			Kind:       KindCount,
			Timestamp:  ts,
			Dimensions: c.dimensions,
			Value:      counters[name],
		})
	}

	return records
}

func (c *Collector) collectGauges(
	records []Record,
	ts time.Time,
	gauges map[string]float64,
) []Record {
	for _, name := range admittedNames(c.filter, gauges) {
		records = append(records, Record{
			Name:       name,
			Kind:       KindGauge,
			Timestamp:  ts,
			Dimensions: c.dimensions,
			Value:      gauges[name],
		})
	}

	return records
}

// ComputeTimingStats returns min, max, sum and count over samples.
// An empty sample set is treated as a single zero sample.
func ComputeTimingStats(samples []float64) TimingStats {
	if len(samples) == 0 {
		return TimingStats{SampleCount: 1}
	}

	stats := TimingStats{
		Minimum:     samples[0],
		Maximum:     samples[0],
		SampleCount: len(samples),
	}

	// Neumaier summation keeps the result stable regardless of sample order.
	var sum, comp float64

	for _, v := range samples {
		if v < stats.Minimum {
			stats.Minimum = v
		}

		if v > stats.Maximum {
			stats.Maximum = v
		}

		t := sum + v
		if math.Abs(sum) >= math.Abs(v) {
			comp += (sum - t) + v
		} else {
			comp += (v - t) + sum
		}

		sum = t
	}

	stats.Sum = sum + comp

	return stats
}
