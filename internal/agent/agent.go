package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cwbackend/internal/archive"
	"github.com/ethpandaops/cwbackend/internal/backend"
	"github.com/ethpandaops/cwbackend/internal/cloudwatch"
	"github.com/ethpandaops/cwbackend/internal/export"
	"github.com/ethpandaops/cwbackend/internal/export/mirror"
	"github.com/ethpandaops/cwbackend/internal/metadata"
	"github.com/ethpandaops/cwbackend/internal/statsd"
)

// Agent is the top-level orchestrator for cwbackend.
type Agent interface {
	// Start initializes all components and begins forwarding.
	Start(ctx context.Context) error
	// Stop shuts down all components gracefully.
	Stop() error
}

// clientFactory builds the ingestion client once configuration is final.
type clientFactory func(ctx context.Context) (backend.Client, error)

type agent struct {
	log    logrus.FieldLogger
	cfg    *Config
	health *export.HealthMetrics

	resolver  metadata.Resolver
	newClient clientFactory

	backend *backend.Backend
	statsd  *statsd.Server
	mirror  *mirror.Sink
	archive *archive.Sink

	cancel context.CancelFunc
}

// New creates a new Agent.
func New(log logrus.FieldLogger, cfg *Config) (Agent, error) {
	return newAgent(log, cfg, func(ctx context.Context) (backend.Client, error) {
		return cloudwatch.New(ctx, log, cfg.CloudWatch.API)
	})
}

func newAgent(log logrus.FieldLogger, cfg *Config, newClient clientFactory) (*agent, error) {
	a := &agent{
		log:       log.WithField("component", "agent"),
		cfg:       cfg,
		health:    export.NewHealthMetrics(log, cfg.Health),
		newClient: newClient,
	}

	if cfg.Metadata.IsEnabled() {
		a.resolver = metadata.NewResolver(log, cfg.Metadata)
	}

	if cfg.Mirror.Enabled {
		s, err := mirror.NewSink(log, cfg.Mirror)
		if err != nil {
			return nil, fmt.Errorf("creating mirror sink: %w", err)
		}

		a.mirror = s
	}

	if cfg.Archive.Enabled {
		s, err := archive.NewSink(log, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("creating archive sink: %w", err)
		}

		a.archive = s
	}

	return a, nil
}

func (a *agent) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	// 1. Health metrics server.
	if err := a.health.Start(ctx); err != nil {
		return fmt.Errorf("starting health metrics: %w", err)
	}

	// 2. Render dimension templates against instance metadata.
	bcfg := a.cfg.CloudWatch.Backend
	bcfg.Dimensions = a.resolveDimensions(ctx, bcfg.Dimensions)

	// 3. CloudWatch client and backend.
	client, err := a.newClient(ctx)
	if err != nil {
		return fmt.Errorf("creating cloudwatch client: %w", err)
	}

	a.backend, err = backend.New(a.log, bcfg, client, a.health, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("creating backend: %w", err)
	}

	// 4. Record sinks.
	if a.archive != nil {
		if err := a.archive.Start(ctx); err != nil {
			return fmt.Errorf("starting archive: %w", err)
		}

		a.backend.AddSink(a.archive)
	}

	if a.mirror != nil {
		a.mirror.Start(ctx)
		a.backend.AddSink(a.mirror)
	}

	a.health.SetStatusReporter(a.backend)

	// 5. statsd listener.
	if a.cfg.Statsd.IsEnabled() {
		a.statsd = statsd.NewServer(a.log, a.cfg.Statsd, a.backend, a.health)

		if err := a.statsd.Start(ctx); err != nil {
			return fmt.Errorf("starting statsd listener: %w", err)
		}
	}

	a.log.WithField("dimensions", a.backend.Dimensions()).Info("Agent fully started")

	return nil
}

// resolveDimensions looks up instance metadata and renders dims with it.
// Lookup failures leave the affected values unrendered.
func (a *agent) resolveDimensions(ctx context.Context, dims backend.OrderedMap) backend.OrderedMap {
	if dims.Len() == 0 {
		return dims
	}

	var md map[string]string

	if a.resolver != nil {
		a.log.Info("Requesting instance metadata")

		var err error

		md, err = a.resolver.Resolve(ctx)
		if err != nil {
			a.health.MetadataErrors.Inc()

			entry := a.log
			if a.cfg.CloudWatch.Backend.Debug {
				entry = entry.WithError(err)
			}

			entry.Warn("Could not access instance metadata service")
		}
	}

	out, unresolved := metadata.TemplateDimensions(dims, md)
	if len(unresolved) > 0 {
		a.log.WithField("dimensions", unresolved).Warn("Dimension templates left unrendered")
	}

	return out
}

func (a *agent) Stop() error {
	// Stop the listener first so its final flush reaches the backend.
	if a.statsd != nil {
		if err := a.statsd.Stop(); err != nil {
			a.log.WithError(err).Error("Error stopping statsd listener")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if a.backend != nil {
		if err := a.backend.Close(ctx); err != nil {
			a.log.WithError(err).Warn("Abandoned in-flight CloudWatch batches")
		}
	}

	if a.mirror != nil {
		if err := a.mirror.Stop(ctx); err != nil {
			a.log.WithError(err).Error("Error stopping mirror sink")
		}
	}

	if a.archive != nil {
		if err := a.archive.Stop(ctx); err != nil {
			a.log.WithError(err).Error("Error stopping archive sink")
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.health.Stop()
}
