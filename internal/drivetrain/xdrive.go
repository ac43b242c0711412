package drivetrain

import (
	"context"
	"math"

	"go.uber.org/multierr"
)

// XDrive has an omni wheel at each corner mounted at 45 degrees, so it can strafe.
type XDrive struct {
	act Actuator
}

func NewXDrive(act Actuator) *XDrive {
	return &XDrive{act: act}
}

func (x *XDrive) Forward(ctx context.Context, speed float64) error {
	return x.Mecanum(ctx, 0, speed, 0)
}

func (x *XDrive) Rotate(ctx context.Context, speed float64) error {
	return x.Mecanum(ctx, 0, 0, speed)
}

func (x *XDrive) Strafe(ctx context.Context, speed float64) error {
	return x.Mecanum(ctx, speed, 0, 0)
}

func (x *XDrive) Stop(ctx context.Context) error {
	return x.Mecanum(ctx, 0, 0, 0)
}

func (x *XDrive) Tank(ctx context.Context, left, right, threshold float64) error {
	left = DeadBand(left, threshold)
	right = DeadBand(right, threshold)
	return x.apply(ctx, map[MotorID]float64{
		FrontLeft:  left,
		BackLeft:   left,
		FrontRight: right,
		BackRight:  right,
	})
}

func (x *XDrive) Arcade(ctx context.Context, forward, yaw, threshold float64) error {
	return x.Mecanum(ctx, 0, DeadBand(forward, threshold), DeadBand(yaw, threshold))
}

// Mecanum mixes strafe, forward and yaw. When a wheel would exceed MaxPower every
// wheel is scaled down together so the direction of travel is preserved.
func (x *XDrive) Mecanum(ctx context.Context, strafe, forward, yaw float64) error {
	power := map[MotorID]float64{
		FrontLeft:  forward + strafe + yaw,
		FrontRight: forward - strafe - yaw,
		BackLeft:   forward - strafe + yaw,
		BackRight:  forward + strafe - yaw,
	}

	peak := 0.0
	for _, p := range power {
		peak = math.Max(peak, math.Abs(p))
	}
	if peak > MaxPower {
		for m := range power {
			power[m] *= MaxPower / peak
		}
	}
	return x.apply(ctx, power)
}

func (x *XDrive) apply(ctx context.Context, power map[MotorID]float64) error {
	var err error
	for _, m := range []MotorID{FrontLeft, FrontRight, BackLeft, BackRight} {
		err = multierr.Append(err, x.act.SetPower(ctx, m, Clamp(power[m])))
	}
	return err
}
