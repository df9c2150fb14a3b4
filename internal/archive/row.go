package archive

import (
	"time"

	"github.com/ethpandaops/cwbackend/internal/backend"
)

// Row is one archived record in cloudwatch_records column order.
type Row struct {
	Timestamp   time.Time
	Namespace   string
	Name        string
	Kind        string
	Value       float64
	Minimum     float64
	Maximum     float64
	Sum         float64
	SampleCount uint32
	Dimensions  map[string]string
	Source      string
}

// NewRow converts a record.
func NewRow(namespace, source string, r backend.Record) *Row {
	row := &Row{
		Timestamp:  r.Timestamp,
		Namespace:  namespace,
		Name:       r.Name,
		Kind:       r.Kind.String(),
		Value:      r.Value,
		Dimensions: make(map[string]string, len(r.Dimensions)),
		Source:     source,
	}

	if r.Stats != nil {
		row.Minimum = r.Stats.Minimum
		row.Maximum = r.Stats.Maximum
		row.Sum = r.Stats.Sum
		row.SampleCount = uint32(r.Stats.SampleCount)
	}

	for _, d := range r.Dimensions {
		row.Dimensions[d.Name] = d.Value
	}

	return row
}

// Values returns the row's column values for a batch append.
func (r *Row) Values() []any {
	return []any{
		r.Timestamp,
		r.Namespace,
		r.Name,
		r.Kind,
		r.Value,
		r.Minimum,
		r.Maximum,
		r.Sum,
		r.SampleCount,
		r.Dimensions,
		r.Source,
	}
}
