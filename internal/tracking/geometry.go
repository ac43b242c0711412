package tracking

import (
	"fmt"
	"math"

	"github.com/san-kum/driveline/internal/geom"
)

// Geometry describes the tracking wheels. Lengths are in inches.
type Geometry struct {
	TicksPerRev        float64
	LeftWheelDiameter  float64
	RightWheelDiameter float64
	BackWheelDiameter  float64
	// Wheelbase is the distance between the left and right tracking wheels.
	Wheelbase float64
	// BackOffset is how far the back wheel sits behind the turning centre.
	BackOffset float64
}

// DefaultGeometry matches 2.75" omni tracking wheels on 360-count encoders.
func DefaultGeometry() Geometry {
	return Geometry{
		TicksPerRev:        360,
		LeftWheelDiameter:  2.75,
		RightWheelDiameter: 2.75,
		BackWheelDiameter:  2.75,
		Wheelbase:          7.5,
		BackOffset:         4.5,
	}
}

func (g Geometry) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"ticks_per_rev", g.TicksPerRev},
		{"left_wheel_diameter", g.LeftWheelDiameter},
		{"right_wheel_diameter", g.RightWheelDiameter},
		{"back_wheel_diameter", g.BackWheelDiameter},
		{"wheelbase", g.Wheelbase},
	}
	for _, p := range positive {
		if !(p.value > 0) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%s must be positive, got %g", p.name, p.value)
		}
	}
	if math.IsNaN(g.BackOffset) || math.IsInf(g.BackOffset, 0) {
		return fmt.Errorf("back_offset must be finite, got %g", g.BackOffset)
	}
	return nil
}

func (g Geometry) inchesPerTick(diameter float64) float64 {
	return math.Pi * diameter / g.TicksPerRev
}

// LocalDisplacement returns the robot-frame displacement in inches for one update,
// given the wheel travel in inches and the change in encoder arc angle dTheta.
// With no rotation the wheels moved in straight lines; otherwise each wheel traced
// an arc and the chord of that arc is used.
func (g Geometry) LocalDisplacement(left, right, back, dTheta float64) geom.Vector2 {
	if dTheta == 0 {
		return geom.Vec(back, (left+right)/2)
	}
	chord := 2 * math.Sin(dTheta/2)
	return geom.Vec(
		chord*(back/dTheta-g.BackOffset),
		chord*(right/dTheta-g.Wheelbase/2),
	)
}
