// Package drivetrain turns open-loop speed commands into per-motor power.
//
// Speeds are in the actuator range [-MaxPower, MaxPower]. Rotation and yaw are
// clockwise-positive, seen from above.
package drivetrain

import (
	"context"
	"fmt"
	"math"
)

// MaxPower is the largest magnitude accepted by the actuators.
const MaxPower = 127.0

type MotorID int

const (
	FrontLeft MotorID = iota
	FrontRight
	BackLeft
	BackRight
)

func (m MotorID) String() string {
	switch m {
	case FrontLeft:
		return "front-left"
	case FrontRight:
		return "front-right"
	case BackLeft:
		return "back-left"
	case BackRight:
		return "back-right"
	default:
		return fmt.Sprintf("motor(%d)", int(m))
	}
}

// Actuator sets raw power on one motor.
type Actuator interface {
	SetPower(ctx context.Context, motor MotorID, power float64) error
}

// Drivetrain is the open-loop contract every chassis layout provides.
type Drivetrain interface {
	Forward(ctx context.Context, speed float64) error
	// Rotate turns in place, clockwise for positive speed.
	Rotate(ctx context.Context, speed float64) error
	Stop(ctx context.Context) error
	// Tank drives each side independently. Inputs with magnitude below threshold are
	// sent as zero.
	Tank(ctx context.Context, left, right, threshold float64) error
	// Arcade mixes a forward speed and a clockwise yaw. Inputs with magnitude below
	// threshold are sent as zero.
	Arcade(ctx context.Context, forward, yaw, threshold float64) error
}

// Holonomic drivetrains can also translate sideways.
type Holonomic interface {
	Drivetrain
	// Strafe moves right for positive speed.
	Strafe(ctx context.Context, speed float64) error
	// Mecanum combines strafe x, forward y and clockwise yaw.
	Mecanum(ctx context.Context, x, y, yaw float64) error
}

// Clamp limits v to [-MaxPower, MaxPower]. NaN becomes zero.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-MaxPower, math.Min(MaxPower, v))
}

// DeadBand returns 0 when |v| < threshold, v otherwise.
func DeadBand(v, threshold float64) float64 {
	if math.Abs(v) < threshold {
		return 0
	}
	return v
}

// CubicScale maps a raw stick value in [-127, 127] onto [-1, 1] along a cubic curve,
// trading top-end sensitivity for fine control near zero.
func CubicScale(raw float64) float64 {
	s := Clamp(raw) / MaxPower
	return s * s * s
}
