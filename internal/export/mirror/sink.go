package mirror

import (
	"context"
	"fmt"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cwbackend/internal/backend"
)

// Sink queues forwarded records for the mirror exporter.
type Sink struct {
	log  logrus.FieldLogger
	cfg  Config
	proc *processor.BatchItemProcessor[Row]
}

var _ backend.RecordSink = (*Sink)(nil)

// NewSink creates a Sink and its batch processor.
func NewSink(log logrus.FieldLogger, cfg Config) (*Sink, error) {
	cfg.ApplyDefaults()

	exporter, err := NewExporter(log, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	proc, err := processor.NewBatchItemProcessor[Row](
		exporter,
		"mirror",
		log,
		processor.WithMaxQueueSize(cfg.MaxQueueSize),
		processor.WithBatchTimeout(cfg.BatchTimeout),
		processor.WithExportTimeout(cfg.ExportTimeout),
		processor.WithMaxExportBatchSize(cfg.BatchSize),
		processor.WithWorkers(cfg.Workers),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	return &Sink{
		log:  log.WithField("sink", "mirror"),
		cfg:  cfg,
		proc: proc,
	}, nil
}

// Name implements backend.RecordSink.
func (s *Sink) Name() string { return "mirror" }

// Start starts the batch processor.
func (s *Sink) Start(ctx context.Context) {
	s.proc.Start(ctx)
	s.log.WithField("address", s.cfg.Address).Info("Mirror export started")
}

// Write queues records. It fails when the queue is full.
func (s *Sink) Write(ctx context.Context, namespace string, records []backend.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]*Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, NewRow(namespace, s.cfg.Source, r))
	}

	return s.proc.Write(ctx, rows)
}

// Stop drains queued rows and shuts the processor down.
func (s *Sink) Stop(ctx context.Context) error {
	if err := s.proc.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down mirror processor: %w", err)
	}

	return nil
}
