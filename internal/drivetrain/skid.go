package drivetrain

import (
	"context"

	"go.uber.org/multierr"
)

// SkidSteer drives two motors per side; turning comes from the speed difference.
type SkidSteer struct {
	act   Actuator
	left  []MotorID
	right []MotorID
}

// NewSkidSteer wires the standard four-motor layout.
func NewSkidSteer(act Actuator) *SkidSteer {
	return &SkidSteer{
		act:   act,
		left:  []MotorID{FrontLeft, BackLeft},
		right: []MotorID{FrontRight, BackRight},
	}
}

func (s *SkidSteer) Forward(ctx context.Context, speed float64) error {
	return s.sides(ctx, speed, speed)
}

func (s *SkidSteer) Rotate(ctx context.Context, speed float64) error {
	return s.sides(ctx, speed, -speed)
}

func (s *SkidSteer) Stop(ctx context.Context) error {
	return s.sides(ctx, 0, 0)
}

func (s *SkidSteer) Tank(ctx context.Context, left, right, threshold float64) error {
	return s.sides(ctx, DeadBand(left, threshold), DeadBand(right, threshold))
}

func (s *SkidSteer) Arcade(ctx context.Context, forward, yaw, threshold float64) error {
	forward = DeadBand(forward, threshold)
	yaw = DeadBand(yaw, threshold)
	return s.sides(ctx, forward+yaw, forward-yaw)
}

// sides commands every motor even when some fail, then reports all failures.
func (s *SkidSteer) sides(ctx context.Context, left, right float64) error {
	var err error
	for _, m := range s.left {
		err = multierr.Append(err, s.act.SetPower(ctx, m, Clamp(left)))
	}
	for _, m := range s.right {
		err = multierr.Append(err, s.act.SetPower(ctx, m, Clamp(right)))
	}
	return err
}
