package metrics

import (
	"github.com/montanaflynn/stats"

	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/sim"
)

// Summary describes a distribution of per-sample errors.
type Summary struct {
	Mean float64 `json:"mean"`
	P95  float64 `json:"p95"`
	Max  float64 `json:"max"`
	Std  float64 `json:"std"`
}

// Summarize describes data; the zero Summary is returned for no data.
func Summarize(data []float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	var s Summary
	s.Mean, _ = stats.Mean(data)
	s.P95, _ = stats.Percentile(data, 95)
	s.Max, _ = stats.Max(data)
	s.Std, _ = stats.StandardDeviation(data)
	return s
}

// OdometryError tracks how far the estimated position strays from the truth, in feet.
// Value is the mean; Summary carries the rest of the distribution.
type OdometryError struct {
	errs stats.Float64Data
}

func NewOdometryError() *OdometryError { return &OdometryError{} }

func (o *OdometryError) Name() string { return "odometry_error_ft" }

func (o *OdometryError) Observe(r sim.Record) {
	o.errs = append(o.errs, r.PositionError())
}

func (o *OdometryError) Value() float64 { return o.Summary().Mean }

func (o *OdometryError) Summary() Summary { return Summarize(o.errs) }

func (o *OdometryError) Reset() { o.errs = o.errs[:0] }

// HeadingError is the mean absolute heading estimate error in degrees.
type HeadingError struct {
	errs stats.Float64Data
}

func NewHeadingError() *HeadingError { return &HeadingError{} }

func (h *HeadingError) Name() string { return "heading_error_deg" }

func (h *HeadingError) Observe(r sim.Record) {
	h.errs = append(h.errs, geom.RadToDeg(r.HeadingError()))
}

func (h *HeadingError) Value() float64 { return h.Summary().Mean }

func (h *HeadingError) Summary() Summary { return Summarize(h.errs) }

func (h *HeadingError) Reset() { h.errs = h.errs[:0] }
