package sim

import (
	"math"

	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/tracking"
)

// Record is one sampled instant of a simulated run.
type Record struct {
	// Time is simulated seconds since the run started.
	Time      float64
	Estimated tracking.Pose
	Truth     tracking.Pose
	// Power holds motor power indexed by drivetrain.MotorID.
	Power [4]float64
}

// PositionError is the distance in feet between the estimated and true positions.
func (r Record) PositionError() float64 {
	return r.Estimated.Pos.Sub(r.Truth.Pos).Magnitude()
}

// HeadingError is the absolute estimated heading error in radians, wrapped to [0, pi].
func (r Record) HeadingError() float64 {
	return math.Abs(geom.WrapAngle(r.Estimated.Heading - r.Truth.Heading))
}
