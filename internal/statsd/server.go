// Package statsd is a minimal statsd aggregator that feeds the CloudWatch
// backend over UDP.
package statsd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/cwbackend/internal/backend"
	"github.com/ethpandaops/cwbackend/internal/export"
)

const maxPacketSize = 65535

// Server receives statsd packets and flushes a snapshot every interval.
type Server struct {
	log     logrus.FieldLogger
	cfg     Config
	flusher backend.Flusher
	health  *export.HealthMetrics

	conn     net.PacketConn
	sampleCh chan Sample
	buffer   *Buffer

	packets  atomic.Uint64
	badLines atomic.Uint64

	cancel   context.CancelFunc
	done     chan struct{}
	readDone chan struct{}

	now func() time.Time
}

// NewServer creates a Server. health may be nil.
func NewServer(
	log logrus.FieldLogger,
	cfg Config,
	flusher backend.Flusher,
	health *export.HealthMetrics,
) *Server {
	cfg.ApplyDefaults()

	return &Server{
		log:      log.WithField("component", "statsd"),
		cfg:      cfg,
		flusher:  flusher,
		health:   health,
		sampleCh: make(chan Sample, cfg.ChannelSize),
		buffer:   NewBuffer(),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
		now:      time.Now,
	}
}

// Start binds the UDP socket and starts the read and flush loops.
func (s *Server) Start(ctx context.Context) error {
	lc, err := listenConfig(s.cfg.ReusePort)
	if err != nil {
		return err
	}

	conn, err := lc.ListenPacket(ctx, "udp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}

	s.conn = conn

	ctx, s.cancel = context.WithCancel(ctx)

	go s.readLoop()
	go s.runLoop(ctx)

	s.log.WithFields(logrus.Fields{
		"addr":           conn.LocalAddr().String(),
		"flush_interval": s.cfg.FlushInterval,
	}).Info("statsd listener started")

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.conn != nil {
		return s.conn.LocalAddr().String()
	}

	return s.cfg.Addr
}

// Stop closes the socket and flushes whatever is buffered.
func (s *Server) Stop() error {
	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done

	err := s.conn.Close()
	<-s.readDone

	// The run loop has exited; drain leftovers into the final flush.
drain:
	for {
		select {
		case sample := <-s.sampleCh:
			s.buffer.Add(sample)
		default:
			break drain
		}
	}

	s.flush()

	s.log.Info("statsd listener stopped")

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing socket: %w", err)
	}

	return nil
}

func (s *Server) readLoop() {
	defer close(s.readDone)

	buf := make([]byte, maxPacketSize)

	for {
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			s.log.WithError(err).Debug("Reading statsd packet failed")

			continue
		}

		s.packets.Add(1)

		if s.health != nil {
			s.health.StatsdPacketsReceived.Inc()
		}

		for _, sample := range ParsePacket(buf[:n], s.badLine) {
			s.enqueue(sample)
		}
	}
}

func (s *Server) badLine(line string, err error) {
	s.badLines.Add(1)

	if s.health != nil {
		s.health.StatsdBadLines.Inc()
	}

	s.log.WithError(err).WithField("line", line).Debug("Bad statsd line")
}

func (s *Server) enqueue(sample Sample) {
	select {
	case s.sampleCh <- sample:
	default:
		s.log.WithField("metric", sample.Name).Warn("statsd sample channel full, dropping sample")

		if s.health != nil {
			s.health.StatsdSamplesDropped.Inc()
		}
	}
}

func (s *Server) runLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-s.sampleCh:
			s.buffer.Add(sample)
		case <-ticker.C:
			if s.health != nil {
				s.health.StatsdChannelLength.Set(float64(len(s.sampleCh)))
			}

			s.flush()
		}
	}
}

// flush hands the current interval to the backend. Callers must own the
// buffer.
func (s *Server) flush() {
	snap := s.buffer.Rotate()
	snap.Counters[PacketsReceivedKey] += float64(s.packets.Swap(0))
	snap.Counters[BadLinesKey] += float64(s.badLines.Swap(0))

	s.flusher.Flush(s.now().Unix(), snap)
}
