package statsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want Sample
	}{
		{"api.request_count:1|c", Sample{Name: "api.request_count", Type: TypeCounter, Value: 1, SampleRate: 1}},
		{"api.request_count:5|c|@0.5", Sample{Name: "api.request_count", Type: TypeCounter, Value: 5, SampleRate: 0.5}},
		{"api.request_time:320|ms", Sample{Name: "api.request_time", Type: TypeTimer, Value: 320, SampleRate: 1}},
		{"api.request_time:1.5|h", Sample{Name: "api.request_time", Type: TypeTimer, Value: 1.5, SampleRate: 1}},
		{"api.num_sessions:50|g", Sample{Name: "api.num_sessions", Type: TypeGauge, Value: 50, SampleRate: 1}},
		{"api.num_sessions:+3|g", Sample{Name: "api.num_sessions", Type: TypeGauge, Value: 3, SampleRate: 1, Delta: true}},
		{"api.num_sessions:-2|g", Sample{Name: "api.num_sessions", Type: TypeGauge, Value: -2, SampleRate: 1, Delta: true}},
		{"my app/requests:1|c", Sample{Name: "my_app-requests", Type: TypeCounter, Value: 1, SampleRate: 1}},
		{"weird$name!:1|c|#tag:x", Sample{Name: "weirdname", Type: TypeCounter, Value: 1, SampleRate: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLine_Invalid(t *testing.T) {
	for _, line := range []string{
		"no_colon",
		":1|c",
		"x:1",
		"x:|c",
		"x:abc|c",
		"x:1|s",
		"x:1|c|@0",
		"x:1|c|@2",
		"x:NaN|g",
		"$$$:1|c",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := ParseLine(line)
			assert.Error(t, err)
		})
	}
}

func TestParsePacket(t *testing.T) {
	var bad []string

	samples := ParsePacket([]byte("a:1|c\n\nbogus\nb:2|ms\r\nc:3|g\n"), func(line string, _ error) {
		bad = append(bad, line)
	})

	require.Len(t, samples, 3)
	assert.Equal(t, "a", samples[0].Name)
	assert.Equal(t, "b", samples[1].Name)
	assert.Equal(t, "c", samples[2].Name)
	assert.Equal(t, []string{"bogus"}, bad)
}
