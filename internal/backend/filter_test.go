package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Admit(t *testing.T) {
	tests := []struct {
		name      string
		whitelist []string
		blacklist []string
		admitted  []string
		rejected  []string
	}{
		{
			name:      "defaults",
			whitelist: DefaultWhitelist(),
			blacklist: DefaultBlacklist(),
			admitted:  []string{"api.x", "mystatsd", "x"},
			rejected:  []string{"statsd.bad_lines_seen", "app.statsd.lag"},
		},
		{
			name:      "unanchored whitelist",
			whitelist: []string{`api\.`},
			admitted:  []string{"api.x", "v1.api.x"},
			rejected:  []string{"api2.x", "statsd.x"},
		},
		{
			name:      "empty whitelist admits nothing",
			whitelist: []string{},
			rejected:  []string{"api.x", ""},
		},
		{
			name:      "blacklist wins",
			whitelist: []string{".*"},
			blacklist: []string{`^api2\.`, `debug`},
			admitted:  []string{"api.x"},
			rejected:  []string{"api2.x", "api.debug.x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.whitelist, tt.blacklist)
			require.NoError(t, err)

			for _, name := range tt.admitted {
				assert.True(t, f.Admit(name), "expected %q to be admitted", name)
			}

			for _, name := range tt.rejected {
				assert.False(t, f.Admit(name), "expected %q to be rejected", name)
			}
		})
	}
}

func TestNewFilter_InvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{".*"}, []string{"[a-"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compiling blacklist")
	assert.Contains(t, err.Error(), `"[a-"`)
}

func TestAdmittedNames_Sorted(t *testing.T) {
	f, err := NewFilter(DefaultWhitelist(), DefaultBlacklist())
	require.NoError(t, err)

	names := admittedNames(f, map[string]float64{
		"c": 1, "a": 1, "statsd.x": 1, "b": 1,
	})

	assert.Equal(t, []string{"a", "b", "c"}, names)
}
