package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/cwbackend/internal/export"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

// fakeClient records every batch it receives.
type fakeClient struct {
	mu      sync.Mutex
	batches []Batch
	errFor  func(Batch) error
}

func (f *fakeClient) PutBatch(_ context.Context, batch Batch) error {
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	errFor := f.errFor
	f.mu.Unlock()

	if errFor != nil {
		return errFor(batch)
	}

	return nil
}

func (f *fakeClient) Batches() []Batch {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Batch, len(f.batches))
	copy(out, f.batches)

	return out
}

type recordingSink struct {
	mu      sync.Mutex
	written [][]Record
	err     error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(_ context.Context, _ string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.written = append(s.written, records)

	return s.err
}

const fixtureTime = int64(1451606400) // 2016-01-01T00:00:00Z

func newTestBackend(t *testing.T, cfg Config, client Client) *Backend {
	t.Helper()

	b, err := New(testLog(), cfg, client, nil, 0)
	require.NoError(t, err)

	return b
}

func flushAndWait(t *testing.T, b *Backend, snap Snapshot) {
	t.Helper()

	b.Flush(fixtureTime, snap)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, b.Close(ctx))
}

func TestNew_Defaults(t *testing.T) {
	b, err := New(testLog(), Config{}, &fakeClient{}, nil, 123)
	require.NoError(t, err)

	assert.Equal(t, DefaultNamespace, b.cfg.Namespace)
	assert.Empty(t, b.Dimensions())
	assert.Equal(t, int64(123), b.Health().LastFlush())
	assert.Equal(t, int64(123), b.Health().LastException())
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(testLog(), Config{Whitelist: []string{"("}}, &fakeClient{}, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compiling whitelist")
}

func TestNew_MissingClient(t *testing.T) {
	_, err := New(testLog(), Config{}, nil, nil, 0)
	require.Error(t, err)
}

func TestFlush_NoMetrics(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{}, client)

	flushAndWait(t, b, Snapshot{})

	assert.Empty(t, client.Batches())
}

func TestFlush_TooManyMetrics(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{}, client)

	counters := make(map[string]float64, 21)
	for i := range 21 {
		counters[fmt.Sprintf("api.counter_%02d", i)] = float64(i)
	}

	flushAndWait(t, b, Snapshot{Counters: counters})

	batches := client.Batches()
	require.Len(t, batches, 2)

	sizes := []int{len(batches[0].Records), len(batches[1].Records)}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	assert.Equal(t, []int{20, 1}, sizes)
}

func TestFlush_Counter(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{Namespace: "abc.123"}, client)

	flushAndWait(t, b, Snapshot{
		Counters: map[string]float64{
			"api.request_count":     100,
			"statsd.bad_lines_seen": 3,
		},
	})

	batches := client.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "abc.123", batches[0].Namespace)
	require.Len(t, batches[0].Records, 1)

	r := batches[0].Records[0]
	assert.Equal(t, "api.request_count", r.Name)
	assert.Equal(t, KindCount, r.Kind)
	assert.Equal(t, float64(100), r.Value)
	assert.Nil(t, r.Stats)
	assert.Equal(t, time.Unix(fixtureTime, 0).UTC(), r.Timestamp)
	assert.Empty(t, r.Dimensions)
}

func TestFlush_Timer(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{
		Namespace:  "abc.123",
		Dimensions: NewOrderedMap("InstanceId", "i-xyz"),
	}, client)

	flushAndWait(t, b, Snapshot{
		Timers: map[string][]float64{
			"api.request_time": {0, 1, 2, 3, 4},
		},
	})

	batches := client.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Records, 1)

	r := batches[0].Records[0]
	assert.Equal(t, "api.request_time", r.Name)
	assert.Equal(t, KindTiming, r.Kind)
	require.NotNil(t, r.Stats)
	assert.Equal(t, TimingStats{Minimum: 0, Maximum: 4, Sum: 10, SampleCount: 5}, *r.Stats)
	assert.Equal(t, []Dimension{{Name: "InstanceId", Value: "i-xyz"}}, r.Dimensions)
}

func TestFlush_Gauge(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{
		Dimensions: NewOrderedMap("InstanceId", "i-xyz"),
	}, client)

	flushAndWait(t, b, Snapshot{
		Gauges: map[string]float64{
			"api.num_sessions":    50,
			"statsd.timestamp_lag": 1,
		},
	})

	batches := client.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Records, 1)

	r := batches[0].Records[0]
	assert.Equal(t, "api.num_sessions", r.Name)
	assert.Equal(t, KindGauge, r.Kind)
	assert.Equal(t, float64(50), r.Value)
	assert.Len(t, r.Dimensions, 1)
}

func TestFlush_Whitelist(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{Whitelist: []string{`api\.`}}, client)

	flushAndWait(t, b, Snapshot{
		Counters: map[string]float64{"api.x": 1, "api2.x": 1},
	})

	batches := client.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Records, 1)
	assert.Equal(t, "api.x", batches[0].Records[0].Name)
}

func TestFlush_Blacklist(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{Blacklist: []string{`^api2\.`}}, client)

	flushAndWait(t, b, Snapshot{
		Counters: map[string]float64{"api.x": 1, "api2.x": 1, "statsd.x": 1},
	})

	batches := client.Batches()
	require.Len(t, batches, 1)

	names := recordNames(batches[0].Records)
	// A custom blacklist replaces the default one.
	assert.Equal(t, []string{"api.x", "statsd.x"}, names)
}

func TestFlush_EmptyWhitelistForwardsNothing(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{Whitelist: []string{}}, client)

	flushAndWait(t, b, Snapshot{
		Counters: map[string]float64{"api.x": 1},
	})

	assert.Empty(t, client.Batches())
}

func TestFlush_KindOrder(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{}, client)

	flushAndWait(t, b, Snapshot{
		Counters: map[string]float64{"b.count": 1, "a.count": 1},
		Timers:   map[string][]float64{"z.time": {1}},
		Gauges:   map[string]float64{"a.gauge": 1},
	})

	batches := client.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t,
		[]string{"z.time", "a.count", "b.count", "a.gauge"},
		recordNames(batches[0].Records),
	)
}

func TestFlush_MetricsLimitAcrossFlushes(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{MetricsLimit: 2}, client)

	flushAndWait(t, b, Snapshot{Counters: map[string]float64{"a": 1}})
	flushAndWait(t, b, Snapshot{Counters: map[string]float64{"b": 1, "c": 1}})
	flushAndWait(t, b, Snapshot{Counters: map[string]float64{"a": 1, "b": 1, "c": 1, "d": 1}})

	batches := client.Batches()
	require.Len(t, batches, 3)

	seen := make(map[string]struct{})
	for _, batch := range batches {
		for _, r := range batch.Records {
			seen[r.Name] = struct{}{}
		}
	}

	assert.Len(t, seen, 2)
	assert.Contains(t, seen, "a")
	assert.Contains(t, seen, "b")
	assert.Equal(t, []string{"a", "b"}, recordNames(batches[2].Records))
}

func TestStatus_SuccessThenFailure(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{}, client)

	ticks := []int64{1000, 2000}
	var mu sync.Mutex
	b.health.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		ts := ticks[0]
		ticks = ticks[1:]

		return time.Unix(ts, 0)
	}

	flushAndWait(t, b, Snapshot{Counters: map[string]float64{"api.ok": 1}})

	client.mu.Lock()
	client.errFor = func(Batch) error {
		return &SubmitError{Code: "Throttling", Message: "Rate exceeded"}
	}
	client.mu.Unlock()

	flushAndWait(t, b, Snapshot{Counters: map[string]float64{"api.fail": 1}})

	got := make(map[string]int64)
	b.Status(func(err error, source, field string, value int64) {
		assert.NoError(t, err)
		assert.Equal(t, "cloudwatch", source)
		got[field] = value
	})

	assert.Equal(t, map[string]int64{
		"last_flush":     1000,
		"last_exception": 2000,
	}, got)

	lastErr := b.Health().LastError()
	require.NotNil(t, lastErr)
	assert.Equal(t, "Throttling", lastErr.Code)
}

func TestFlush_PlainErrorIsRecorded(t *testing.T) {
	client := &fakeClient{errFor: func(Batch) error { return errors.New("connection reset") }}
	b := newTestBackend(t, Config{}, client)

	flushAndWait(t, b, Snapshot{Counters: map[string]float64{"api.x": 1}})

	lastErr := b.Health().LastError()
	require.NotNil(t, lastErr)
	assert.Equal(t, CodeUnknown, lastErr.Code)
	assert.Equal(t, "connection reset", lastErr.Message)
}

func TestFlush_SinksReceiveLimitedRecords(t *testing.T) {
	client := &fakeClient{}
	b := newTestBackend(t, Config{MetricsLimit: 1}, client)

	sink := &recordingSink{err: errors.New("queue full")}
	b.AddSink(sink)

	flushAndWait(t, b, Snapshot{Counters: map[string]float64{"a": 1, "b": 2}})

	require.Len(t, sink.written, 1)
	assert.Equal(t, []string{"a"}, recordNames(sink.written[0]))
}

func TestFlush_UpdatesHealthMetrics(t *testing.T) {
	metrics := export.NewHealthMetrics(testLog(), export.HealthConfig{})
	client := &fakeClient{}

	b, err := New(testLog(), Config{DumpMessages: true, Debug: true}, client, metrics, 0)
	require.NoError(t, err)

	flushAndWait(t, b, Snapshot{
		Counters: map[string]float64{"api.x": 1, "statsd.y": 1},
	})

	assert.Len(t, client.Batches(), 1)
}
