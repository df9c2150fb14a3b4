package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HealthConfig configures the Prometheus health metrics server.
type HealthConfig struct {
	// Addr is the listen address for the health metrics server.
	// Defaults to ":9090".
	Addr string `yaml:"addr"`
}

// StatusReporter reports health fields one at a time.
type StatusReporter interface {
	Status(fn func(err error, source, field string, value int64))
}

// HealthMetrics exposes Prometheus metrics for backend health.
type HealthMetrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	statusMu sync.RWMutex
	status   StatusReporter

	// Flush pipeline.
	FlushesTotal     prometheus.Counter
	MetricsReceived  *prometheus.CounterVec // kind
	MetricsDropped   *prometheus.CounterVec // reason (filtered/cardinality)
	AdmittedMetrics  prometheus.Gauge
	RecordsSubmitted prometheus.Counter
	FlushRecords     prometheus.Histogram

	// Batch submission.
	BatchesSubmitted       *prometheus.CounterVec // result
	BatchErrors            *prometheus.CounterVec // code
	BatchesInFlight        prometheus.Gauge
	BatchDuration          prometheus.Histogram
	LastFlushTimestamp     prometheus.Gauge
	LastExceptionTimestamp prometheus.Gauge

	// Record sinks.
	SinkWriteErrors *prometheus.CounterVec // sink

	// statsd listener.
	StatsdPacketsReceived prometheus.Counter
	StatsdBadLines        prometheus.Counter
	StatsdSamplesDropped  prometheus.Counter
	StatsdChannelLength   prometheus.Gauge

	// Startup.
	MetadataErrors prometheus.Counter

	running atomic.Bool
}

// NewHealthMetrics creates a new health metrics server.
func NewHealthMetrics(
	log logrus.FieldLogger,
	cfg HealthConfig,
) *HealthMetrics {
	reg := prometheus.NewRegistry()

	h := &HealthMetrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,

		FlushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cwbackend",
			Name:      "flushes_total",
			Help:      "Total flushes received from the aggregator.",
		}),
		MetricsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cwbackend",
				Name:      "metrics_received_total",
				Help:      "Total metric names received in flush snapshots by kind.",
			},
			[]string{"kind"},
		),
		MetricsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cwbackend",
				Name:      "metrics_dropped_total",
				Help:      "Total metrics not forwarded by reason.",
			},
			[]string{"reason"},
		),
		AdmittedMetrics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cwbackend",
			Name:      "admitted_metric_names",
			Help:      "Distinct metric names holding a cardinality slot.",
		}),
		RecordsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cwbackend",
			Name:      "records_submitted_total",
			Help:      "Total records handed to the CloudWatch client.",
		}),
		FlushRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cwbackend",
			Name:      "flush_records",
			Help:      "Number of records per flush after filtering and limiting.",
			Buckets:   []float64{0, 1, 20, 100, 500, 1000, 5000},
		}),
		BatchesSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cwbackend",
				Name:      "batches_submitted_total",
				Help:      "Total PutMetricData batches by result.",
			},
			[]string{"result"},
		),
		BatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cwbackend",
				Name:      "batch_errors_total",
				Help:      "Total failed PutMetricData batches by error code.",
			},
			[]string{"code"},
		),
		BatchesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cwbackend",
			Name:      "batches_in_flight",
			Help:      "Batches submitted but not yet completed, sampled at flush.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cwbackend",
			Name:      "batch_duration_seconds",
			Help:      "PutMetricData call duration for successful batches.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 5}, // 10ms-5s
		}),
		LastFlushTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cwbackend",
			Name:      "last_flush_timestamp_seconds",
			Help:      "Unix time of the last successful batch.",
		}),
		LastExceptionTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cwbackend",
			Name:      "last_exception_timestamp_seconds",
			Help:      "Unix time of the last failed batch.",
		}),
		SinkWriteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cwbackend",
				Name:      "sink_write_errors_total",
				Help:      "Total record sink write failures by sink.",
			},
			[]string{"sink"},
		),
		StatsdPacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cwbackend",
			Name:      "statsd_packets_received_total",
			Help:      "Total statsd UDP packets received.",
		}),
		StatsdBadLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cwbackend",
			Name:      "statsd_bad_lines_total",
			Help:      "Total statsd lines that failed to parse.",
		}),
		StatsdSamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cwbackend",
			Name:      "statsd_samples_dropped_total",
			Help:      "Total statsd samples dropped because the channel was full.",
		}),
		StatsdChannelLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cwbackend",
			Name:      "statsd_channel_length",
			Help:      "Current number of samples waiting in the statsd channel.",
		}),
		MetadataErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cwbackend",
			Name:      "metadata_errors_total",
			Help:      "Total instance metadata lookups that failed.",
		}),
	}

	reg.MustRegister(
		h.FlushesTotal,
		h.MetricsReceived,
		h.MetricsDropped,
		h.AdmittedMetrics,
		h.RecordsSubmitted,
		h.FlushRecords,
	)

	reg.MustRegister(
		h.BatchesSubmitted,
		h.BatchErrors,
		h.BatchesInFlight,
		h.BatchDuration,
		h.LastFlushTimestamp,
		h.LastExceptionTimestamp,
		h.SinkWriteErrors,
	)

	reg.MustRegister(
		h.StatsdPacketsReceived,
		h.StatsdBadLines,
		h.StatsdSamplesDropped,
		h.StatsdChannelLength,
		h.MetadataErrors,
	)

	return h
}

// SetStatusReporter sets the source for the /status endpoint.
func (h *HealthMetrics) SetStatusReporter(r StatusReporter) {
	h.statusMu.Lock()
	h.status = r
	h.statusMu.Unlock()
}

// handleStatus writes {source: {field: value}} as JSON.
func (h *HealthMetrics) handleStatus(w http.ResponseWriter, _ *http.Request) {
	h.statusMu.RLock()
	reporter := h.status
	h.statusMu.RUnlock()

	out := make(map[string]map[string]int64, 1)

	if reporter != nil {
		reporter.Status(func(err error, source, field string, value int64) {
			if err != nil {
				return
			}

			if out[source] == nil {
				out[source] = make(map[string]int64, 2)
			}

			out[source][field] = value
		})
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(out); err != nil {
		h.log.WithError(err).Debug("Writing status response failed")
	}
}

// Start begins serving the /metrics endpoint.
func (h *HealthMetrics) Start(_ context.Context) error {
	if h.addr == "" {
		h.addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		h.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/status", h.handleStatus)

	// pprof endpoints for CPU/memory profiling.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}

	h.listener = ln

	h.server = &http.Server{
		Handler: mux,
	}

	h.running.Store(true)

	go func() {
		h.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := h.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			h.log.WithError(err).
				Error("Health metrics server error")
		}

		h.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started
// with ":0" to get the OS-assigned port.
func (h *HealthMetrics) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}

	return h.addr
}

// Stop gracefully shuts down the health metrics server.
func (h *HealthMetrics) Stop() error {
	if h.server == nil {
		return nil
	}

	return h.server.Close()
}
