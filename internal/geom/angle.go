package geom

import "math"

// FullTurn is one revolution in radians.
const FullTurn = 2 * math.Pi

// frameOffset is the quarter turn between the local frame, whose +y is the robot's
// forward axis, and headings measured CCW from the field's +x axis.
const frameOffset = math.Pi / 2

func DegToRad(d float64) float64 { return d * math.Pi / 180 }

func RadToDeg(r float64) float64 { return r * 180 / math.Pi }

// RotateVector rotates vec CCW by angle radians.
func RotateVector(vec Vector2, angle float64) Vector2 {
	sin, cos := math.Sincos(angle)
	return Vector2{
		X: vec.X*cos - vec.Y*sin,
		Y: vec.X*sin + vec.Y*cos,
	}
}

// WrapAngle maps a to the half-open interval (-pi, pi].
func WrapAngle(a float64) float64 {
	a = math.Mod(a, FullTurn)
	if a <= -math.Pi {
		a += FullTurn
	} else if a > math.Pi {
		a -= FullTurn
	}
	return a
}

// ShortestTarget returns the target angle equivalent to target (mod 2pi) that is
// closest to current, so a controller driving current toward it turns the short way.
func ShortestTarget(current, target float64) float64 {
	return current + WrapAngle(target-current)
}

// LocalToGlobal converts a robot-relative vector (x right, y forward) into the field
// frame for a robot whose forward axis points at heading.
func LocalToGlobal(local Vector2, heading float64) Vector2 {
	return RotateVector(local, heading-frameOffset)
}

// GlobalToLocal is the inverse of LocalToGlobal.
func GlobalToLocal(global Vector2, heading float64) Vector2 {
	return RotateVector(global, frameOffset-heading)
}
