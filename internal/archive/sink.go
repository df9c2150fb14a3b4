// Package archive stores every forwarded record in ClickHouse.
package archive

import (
	"context"
	"fmt"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cwbackend/internal/backend"
	"github.com/ethpandaops/cwbackend/internal/export"
	"github.com/ethpandaops/cwbackend/internal/migrate"
)

type rowInserter interface {
	Insert(ctx context.Context, rows [][]any) error
}

// exporter implements processor.ItemExporter for archive rows.
type exporter struct {
	log    logrus.FieldLogger
	writer rowInserter
}

var _ processor.ItemExporter[Row] = (*exporter)(nil)

func (e *exporter) ExportItems(ctx context.Context, rows []*Row) error {
	values := make([][]any, 0, len(rows))

	for _, r := range rows {
		if r != nil {
			values = append(values, r.Values())
		}
	}

	if err := e.writer.Insert(ctx, values); err != nil {
		return fmt.Errorf("inserting %d rows: %w", len(values), err)
	}

	return nil
}

func (e *exporter) Shutdown(_ context.Context) error {
	return nil
}

// Sink queues forwarded records for insertion into ClickHouse.
type Sink struct {
	log    logrus.FieldLogger
	cfg    Config
	writer *export.ClickHouseWriter
	proc   *processor.BatchItemProcessor[Row]
}

var _ backend.RecordSink = (*Sink)(nil)

// NewSink creates a Sink. The connection is opened by Start.
func NewSink(log logrus.FieldLogger, cfg Config) (*Sink, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	writer := export.NewClickHouseWriter(log, cfg.ClickHouse)

	proc, err := newProcessor(log, cfg, writer)
	if err != nil {
		return nil, err
	}

	return &Sink{
		log:    log.WithField("sink", "archive"),
		cfg:    cfg,
		writer: writer,
		proc:   proc,
	}, nil
}

func newProcessor(
	log logrus.FieldLogger,
	cfg Config,
	writer rowInserter,
) (*processor.BatchItemProcessor[Row], error) {
	proc, err := processor.NewBatchItemProcessor[Row](
		&exporter{log: log, writer: writer},
		"archive",
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

	return proc, nil
}

// Name implements backend.RecordSink.
func (s *Sink) Name() string { return "archive" }

// Start connects to ClickHouse, applies migrations and starts the processor.
func (s *Sink) Start(ctx context.Context) error {
	if s.cfg.ShouldMigrate() {
		if err := migrate.New(s.log, s.cfg.ClickHouse.DSN()).Up(); err != nil {
			return fmt.Errorf("migrating archive schema: %w", err)
		}
	}

	if err := s.writer.Start(ctx); err != nil {
		return err
	}

	s.proc.Start(ctx)

	s.log.WithField("table", s.cfg.ClickHouse.Table).Info("Archive started")

	return nil
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

// Stop drains queued rows and closes the connection.
func (s *Sink) Stop(ctx context.Context) error {
	if err := s.proc.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("Archive processor shutdown failed")
	}

	return s.writer.Stop()
}
