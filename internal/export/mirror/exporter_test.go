package mirror

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/cwbackend/internal/backend"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

type captured struct {
	mu       sync.Mutex
	bodies   [][]byte
	encoding string
	ctype    string
	header   string
}

func (c *captured) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.encoding = r.Header.Get("Content-Encoding")
		c.ctype = r.Header.Get("Content-Type")
		c.header = r.Header.Get("X-Api-Key")
		c.mu.Unlock()

		w.WriteHeader(status)
	}
}

func (c *captured) requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.bodies)
}

var ts = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

func testRecords() []backend.Record {
	return []backend.Record{
		{
			Name: "api.request_time", Kind: backend.KindTiming, Timestamp: ts,
			Dimensions: []backend.Dimension{{Name: "InstanceId", Value: "i-xyz"}},
			Stats:      &backend.TimingStats{Minimum: 0, Maximum: 4, Sum: 10, SampleCount: 5},
		},
		{Name: "api.request_count", Kind: backend.KindCount, Timestamp: ts, Value: 100},
	}
}

func TestExporter_ExportItems(t *testing.T) {
	c := &captured{}
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	e, err := NewExporter(testLog(), Config{
		Enabled:     true,
		Address:     server.URL,
		Compression: CompressionGzip,
		Headers:     map[string]string{"X-Api-Key": "secret"},
	})
	require.NoError(t, err)
	defer e.Shutdown(context.Background())

	rows := make([]*Row, 0, 2)
	for _, r := range testRecords() {
		rows = append(rows, NewRow("abc.123", "host-1", r))
	}

	require.NoError(t, e.ExportItems(context.Background(), rows))
	require.Equal(t, 1, c.requests())

	assert.Equal(t, "application/x-ndjson", c.ctype)
	assert.Equal(t, "gzip", c.encoding)
	assert.Equal(t, "secret", c.header)

	lines := strings.Split(strings.TrimSpace(string(decode(t, CompressionGzip, c.bodies[0]))), "\n")
	require.Len(t, lines, 2)

	var timer map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &timer))
	assert.Equal(t, "api.request_time", timer["name"])
	assert.Equal(t, "timing", timer["kind"])
	assert.Equal(t, "abc.123", timer["namespace"])
	assert.Equal(t, "host-1", timer["source"])
	assert.Equal(t, float64(10), timer["sum"])
	assert.Equal(t, float64(5), timer["count"])
	assert.NotContains(t, timer, "value")
	assert.Equal(t, map[string]any{"InstanceId": "i-xyz"}, timer["dimensions"])

	var counter map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &counter))
	assert.Equal(t, float64(100), counter["value"])
	assert.NotContains(t, counter, "sum")
	assert.NotContains(t, counter, "dimensions")
}

func TestExporter_ServerError(t *testing.T) {
	c := &captured{}
	server := httptest.NewServer(c.handler(http.StatusBadGateway))
	defer server.Close()

	e, err := NewExporter(testLog(), Config{Enabled: true, Address: server.URL, Compression: CompressionNone})
	require.NoError(t, err)

	err = e.ExportItems(context.Background(), []*Row{NewRow("ns", "", testRecords()[1])})
	assert.ErrorContains(t, err, "unexpected status code: 502")
}

func TestExporter_EmptyBatch(t *testing.T) {
	c := &captured{}
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	e, err := NewExporter(testLog(), Config{Enabled: true, Address: server.URL})
	require.NoError(t, err)

	require.NoError(t, e.ExportItems(context.Background(), nil))
	require.NoError(t, e.ExportItems(context.Background(), []*Row{nil}))
	assert.Zero(t, c.requests())
}

func TestNewRow_ZeroValueCounterKeepsValue(t *testing.T) {
	row := NewRow("ns", "", backend.Record{Name: "x", Kind: backend.KindCount, Timestamp: ts})

	require.NotNil(t, row.Value)
	assert.Zero(t, *row.Value)

	out, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"value":0`)
}

func TestSink_WritesThroughProcessor(t *testing.T) {
	c := &captured{}
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	s, err := NewSink(testLog(), Config{
		Enabled:      true,
		Address:      server.URL,
		Compression:  CompressionNone,
		BatchTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "mirror", s.Name())

	s.Start(context.Background())

	require.NoError(t, s.Write(context.Background(), "abc.123", testRecords()))
	require.NoError(t, s.Write(context.Background(), "abc.123", nil))

	require.Eventually(t, func() bool { return c.requests() > 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))

	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, b := range c.bodies {
		total += len(strings.Split(strings.TrimSpace(string(b)), "\n"))
	}

	assert.Equal(t, 2, total)
}
