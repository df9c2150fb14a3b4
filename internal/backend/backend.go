// Package backend turns statsd flush snapshots into CloudWatch metric batches.
//
// A flush filters the snapshot and normalizes it into records. It then applies
// the cardinality limit and submits the records in batches of at most 20, each
// batch in its own goroutine. Batch outcomes only update the health state;
// Flush never reports errors back to its caller.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cwbackend/internal/export"
)

// Flusher is the capability an aggregator binds to its flush and status events.
type Flusher interface {
	// Flush forwards one interval's snapshot. timestamp is in unix seconds.
	Flush(timestamp int64, snap Snapshot)
	// Status reports health fields to fn.
	Status(fn StatusFunc)
}

// RecordSink receives every record that passed filtering and limiting.
// Write must not block.
type RecordSink interface {
	Name() string
	Write(ctx context.Context, namespace string, records []Record) error
}

// Backend is the CloudWatch metrics backend.
type Backend struct {
	log     logrus.FieldLogger
	cfg     Config
	metrics *export.HealthMetrics

	dimensions []Dimension
	collector  *Collector
	limiter    *Limiter
	submitter  *Submitter
	health     *Health
	sinks      []RecordSink
}

// Ensure Backend implements Flusher.
var _ Flusher = (*Backend)(nil)

// New creates a Backend. startTime seeds both health timestamps.
// metrics may be nil.
func New(
	log logrus.FieldLogger,
	cfg Config,
	client Client,
	metrics *export.HealthMetrics,
	startTime int64,
) (*Backend, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if client == nil {
		return nil, fmt.Errorf("client is required")
	}

	filter, err := NewFilter(cfg.Whitelist, cfg.Blacklist)
	if err != nil {
		return nil, err
	}

	dims := NormalizeDimensions(cfg.Dimensions)

	b := &Backend{
		log:        log.WithField("component", "backend"),
		cfg:        cfg,
		metrics:    metrics,
		dimensions: dims,
		collector:  NewCollector(filter, dims),
		limiter:    NewLimiter(log, cfg.MetricsLimit),
		health:     NewHealth(startTime),
	}

	b.submitter = NewSubmitter(client, cfg.Namespace, MaxBatchSize, b.handleOutcome)

	if metrics != nil {
		metrics.LastFlushTimestamp.Set(float64(startTime))
		metrics.LastExceptionTimestamp.Set(float64(startTime))
	}

	b.log.WithFields(logrus.Fields{
		"namespace":     cfg.Namespace,
		"dimensions":    len(dims),
		"metrics_limit": cfg.MetricsLimit,
	}).Info("CloudWatch backend created")

	return b, nil
}

// AddSink registers a sink that receives every flushed record set.
// Must be called before the first Flush.
func (b *Backend) AddSink(s RecordSink) {
	b.sinks = append(b.sinks, s)
}

// Dimensions returns the normalized dimension list.
func (b *Backend) Dimensions() []Dimension {
	return b.dimensions
}

// Health returns the submission health tracker.
func (b *Backend) Health() *Health {
	return b.health
}

// Flush converts the snapshot into records and submits them.
func (b *Backend) Flush(timestamp int64, snap Snapshot) {
	ctx := context.Background()

	records := b.collector.Collect(timestamp, snap)
	filtered := snap.TotalMetrics() - len(records)

	records, dropped := b.limiter.Limit(records)

	if b.cfg.Debug {
		b.log.WithField("metrics", len(records)).Info("Flushing metrics")
	}

	for _, s := range b.sinks {
		if err := s.Write(ctx, b.cfg.Namespace, records); err != nil {
			b.log.WithError(err).WithField("sink", s.Name()).
				Debug("Record sink write failed")

			if b.metrics != nil {
				b.metrics.SinkWriteErrors.WithLabelValues(s.Name()).Inc()
			}
		}
	}

	batches := b.submitter.Submit(ctx, records)

	b.recordFlush(snap, filtered, dropped, len(records), batches)
}

func (b *Backend) recordFlush(snap Snapshot, filtered, dropped, records, batches int) {
	if b.metrics == nil {
		return
	}

	b.metrics.FlushesTotal.Inc()
	b.metrics.MetricsReceived.WithLabelValues(KindCount.String()).Add(float64(len(snap.Counters)))
	b.metrics.MetricsReceived.WithLabelValues(KindTiming.String()).Add(float64(len(snap.Timers)))
	b.metrics.MetricsReceived.WithLabelValues(KindGauge.String()).Add(float64(len(snap.Gauges)))
	b.metrics.MetricsDropped.WithLabelValues("filtered").Add(float64(filtered))
	b.metrics.MetricsDropped.WithLabelValues("cardinality").Add(float64(dropped))
	b.metrics.FlushRecords.Observe(float64(records))
	b.metrics.BatchesInFlight.Set(float64(b.submitter.InFlight()))

	if b.limiter.Enabled() {
		b.metrics.AdmittedMetrics.Set(float64(b.limiter.Admitted()))
	}

	if batches > 0 {
		b.metrics.RecordsSubmitted.Add(float64(records))
	}
}

// handleOutcome records the result of one batch. It runs on the
// submitting goroutine and may be called concurrently.
func (b *Backend) handleOutcome(o Outcome) {
	log := b.log.WithFields(logrus.Fields{
		"namespace": o.Batch.Namespace,
		"records":   len(o.Batch.Records),
	})

	if o.Success() {
		ts := b.health.RecordSuccess()

		if b.metrics != nil {
			b.metrics.BatchesSubmitted.WithLabelValues("success").Inc()
			b.metrics.BatchDuration.Observe(o.Duration.Seconds())
			b.metrics.LastFlushTimestamp.Set(float64(ts))
		}

		if b.cfg.DumpMessages {
			counters, timers, gauges := o.Batch.Counts()

			log.WithFields(logrus.Fields{
				"counters": counters,
				"timers":   timers,
				"gauges":   gauges,
			}).Info("CloudWatch received batch")
		}

		return
	}

	ts := b.health.RecordFailure(o.Err)

	if b.metrics != nil {
		b.metrics.BatchesSubmitted.WithLabelValues("error").Inc()
		b.metrics.BatchErrors.WithLabelValues(o.Err.Code).Inc()
		b.metrics.LastExceptionTimestamp.Set(float64(ts))
	}

	entry := log.WithFields(logrus.Fields{
		"code":    o.Err.Code,
		"message": o.Err.Message,
	})

	if b.cfg.DumpMessages {
		entry = entry.WithFields(logrus.Fields{
			"metric_names": recordNames(o.Batch.Records),
			"duration":     o.Duration.Round(time.Millisecond),
		})
	}

	entry.Error("CloudWatch batch submission failed")
}

func recordNames(records []Record) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Name
	}

	return names
}

// Status reports the health fields to fn.
func (b *Backend) Status(fn StatusFunc) {
	b.health.Status(fn)
}

// Close waits for in-flight batches to finish or ctx to expire.
func (b *Backend) Close(ctx context.Context) error {
	if err := b.submitter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for in-flight batches: %w", err)
	}

	return nil
}
