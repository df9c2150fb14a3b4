package statsd

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MetricType is the statsd type of a sample.
type MetricType uint8

const (
	// TypeCounter is a "c" sample.
	TypeCounter MetricType = iota
	// TypeTimer is an "ms" or "h" sample.
	TypeTimer
	// TypeGauge is a "g" sample.
	TypeGauge
)

// Sample is one parsed statsd line.
type Sample struct {
	Name  string
	Type  MetricType
	Value float64
	// SampleRate is in (0, 1]. Counters are scaled by 1/SampleRate.
	SampleRate float64
	// Delta marks a gauge update written as +N or -N.
	Delta bool
}

var (
	errMissingValue = errors.New("missing value")
	errMissingType  = errors.New("missing type")
	errEmptyName    = errors.New("empty metric name")
)

// ParseLine parses a single "name:value|type[|@rate]" line.
func ParseLine(line string) (Sample, error) {
	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		return Sample{}, errMissingValue
	}

	name = sanitizeName(name)
	if name == "" {
		return Sample{}, errEmptyName
	}

	fields := strings.Split(rest, "|")
	if len(fields) < 2 {
		return Sample{}, errMissingType
	}

	s := Sample{Name: name, SampleRate: 1}

	switch fields[1] {
	case "c":
		s.Type = TypeCounter
	case "ms", "h":
		s.Type = TypeTimer
	case "g":
		s.Type = TypeGauge
	default:
		return Sample{}, fmt.Errorf("unsupported type %q", fields[1])
	}

	raw := fields[0]
	if raw == "" {
		return Sample{}, errMissingValue
	}

	if s.Type == TypeGauge && (raw[0] == '+' || raw[0] == '-') {
		s.Delta = true
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Sample{}, fmt.Errorf("invalid value %q", raw)
	}

	s.Value = v

	for _, f := range fields[2:] {
		if !strings.HasPrefix(f, "@") {
			continue
		}

		rate, err := strconv.ParseFloat(f[1:], 64)
		if err != nil || rate <= 0 || rate > 1 {
			return Sample{}, fmt.Errorf("invalid sample rate %q", f)
		}

		s.SampleRate = rate
	}

	return s, nil
}

// ParsePacket parses every newline-separated line in data. Blank lines are
// skipped. onError receives each line that fails to parse.
func ParsePacket(data []byte, onError func(line string, err error)) []Sample {
	samples := make([]Sample, 0, bytes.Count(data, []byte{'\n'})+1)

	for _, raw := range bytes.Split(data, []byte{'\n'}) {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}

		s, err := ParseLine(line)
		if err != nil {
			if onError != nil {
				onError(line, err)
			}

			continue
		}

		samples = append(samples, s)
	}

	return samples
}

// sanitizeName turns whitespace into "_" and "/" into "-", then drops any
// character outside [a-zA-Z0-9_.-].
func sanitizeName(name string) string {
	var sb strings.Builder

	sb.Grow(len(name))

	prevSpace := false

	for _, r := range name {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !prevSpace {
				sb.WriteByte('_')
			}

			prevSpace = true

			continue
		case r == '/':
			sb.WriteByte('-')
		case r == '_' || r == '-' || r == '.',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9':
			sb.WriteRune(r)
		}

		prevSpace = false
	}

	return sb.String()
}
