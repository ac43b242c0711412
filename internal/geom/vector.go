// Package geom provides the planar vector type used for poses and motion demands.
//
// Whether a vector is in the robot's local frame or the field's global frame is a
// caller convention; see [LocalToGlobal] and [GlobalToLocal] for the conversions
// used throughout driveline.
package geom

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// Vector2 is an immutable 2D vector. Positions are in feet.
type Vector2 r2.Point

// Zero is the zero vector.
var Zero = Vector2{}

func Vec(x, y float64) Vector2 {
	return Vector2{X: x, Y: y}
}

// Polar builds a vector of the given magnitude pointing at angle (radians, CCW from +x).
func Polar(magnitude, angle float64) Vector2 {
	return Vector2{X: magnitude * math.Cos(angle), Y: magnitude * math.Sin(angle)}
}

func (v Vector2) point() r2.Point { return r2.Point(v) }

func (v Vector2) Add(o Vector2) Vector2 { return Vector2(v.point().Add(o.point())) }

func (v Vector2) Sub(o Vector2) Vector2 { return Vector2(v.point().Sub(o.point())) }

func (v Vector2) Scale(s float64) Vector2 { return Vector2(v.point().Mul(s)) }

func (v Vector2) Dot(o Vector2) float64 { return v.point().Dot(o.point()) }

// Magnitude returns sqrt(x²+y²).
func (v Vector2) Magnitude() float64 { return v.point().Norm() }

// Angle returns atan2(y, x). The zero vector has angle 0.
func (v Vector2) Angle() float64 { return math.Atan2(v.Y, v.X) }

func (v Vector2) IsZero() bool { return v.X == 0 && v.Y == 0 }

// IsValid reports whether both components are finite.
func (v Vector2) IsValid() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// Normalize returns the unit vector in the direction of v.
// The zero vector has no direction and normalizes to the zero vector.
func (v Vector2) Normalize() Vector2 {
	if v.IsZero() {
		return Zero
	}
	return Vector2(v.point().Normalize())
}

// Rotate returns v rotated CCW by angle radians.
func (v Vector2) Rotate(angle float64) Vector2 {
	return RotateVector(v, angle)
}

func (v Vector2) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", v.X, v.Y)
}
