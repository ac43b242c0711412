// Package metrics scores recorded runs.
package metrics

import "github.com/san-kum/driveline/internal/sim"

// Metric accumulates one score over a run, one record at a time.
type Metric interface {
	Name() string
	Observe(r sim.Record)
	Value() float64
	Reset()
}

// Standard returns the metrics reported for every run.
func Standard() []Metric {
	return []Metric{
		NewOdometryError(),
		NewHeadingError(),
		NewPathLength(),
		NewControlEffort(),
	}
}

// Evaluate feeds records through each metric and returns the values by name.
func Evaluate(records []sim.Record, ms ...Metric) map[string]float64 {
	if len(ms) == 0 {
		ms = Standard()
	}
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for _, r := range records {
			m.Observe(r)
		}
		out[m.Name()] = m.Value()
	}
	return out
}
