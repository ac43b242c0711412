package motion

import (
	"context"
	"math"

	"github.com/san-kum/driveline/internal/drivetrain"
	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/tracking"
)

type Status int

const (
	Continue Status = iota
	Settled
)

func (s Status) String() string {
	if s == Settled {
		return "settled"
	}
	return "continue"
}

// Command is one multi-tick motion. Step is called once per control period with the
// latest pose. A non-nil error is reported but does not end the command.
type Command interface {
	Name() string
	Step(ctx context.Context, pose tracking.Pose) (Status, error)
}

// rotateTo turns to a fixed heading, or to face a point when toward is set. The
// target is resolved against the pose on the first step.
type rotateTo struct {
	c       *Controller
	angle   float64
	toward  *geom.Vector2
	started bool
}

func (c *Controller) RotateToCommand(angle float64) Command {
	return &rotateTo{c: c, angle: angle}
}

// FaceCommand turns toward a field point.
func (c *Controller) FaceCommand(point geom.Vector2) Command {
	return &rotateTo{c: c, toward: &point}
}

func (r *rotateTo) Name() string {
	if r.toward != nil {
		return "face"
	}
	return "rotate_to"
}

func (r *rotateTo) Step(ctx context.Context, pose tracking.Pose) (Status, error) {
	if !r.started {
		r.started = true
		angle := r.angle
		if r.toward != nil {
			angle = r.toward.Sub(pose.Pos).Angle()
		}
		r.c.turn.Reset()
		r.c.turn.SetTarget(geom.ShortestTarget(pose.Heading, angle))
	}

	out := r.c.turn.Step(pose.Heading)
	err := r.c.Move(ctx, geom.Zero, out)
	if r.c.turn.IsSettled() {
		return Settled, err
	}
	return Continue, err
}

// driveTo closes the distance to target. The drive loop targets zero and senses the
// live distance, so its output is negated to drive toward the point.
type driveTo struct {
	c       *Controller
	target  geom.Vector2
	started bool
}

func (c *Controller) DriveToCommand(target geom.Vector2) Command {
	return &driveTo{c: c, target: target}
}

func (d *driveTo) Name() string { return "drive_to" }

func (d *driveTo) Step(ctx context.Context, pose tracking.Pose) (Status, error) {
	if !d.started {
		d.started = true
		d.c.drive.Reset()
		d.c.drive.SetTarget(0)
	}

	delta := d.target.Sub(pose.Pos)
	speed := -d.c.drive.Step(delta.Magnitude())
	err := d.c.Move(ctx, geom.Polar(speed, delta.Angle()), d.headingHold(pose, delta))
	if d.c.drive.IsSettled() {
		return Settled, err
	}
	return Continue, err
}

// headingHold steers a chassis that cannot strafe so its forward or backward axis
// keeps pointing at the target. Without it any heading error left by the turn phase
// becomes a lateral miss the drive loop cannot remove.
func (d *driveTo) headingHold(pose tracking.Pose, delta geom.Vector2) float64 {
	if _, ok := d.c.dt.(drivetrain.Holonomic); ok {
		return 0
	}
	if delta.Magnitude() <= d.c.cfg.Drive.Tolerance {
		return 0
	}
	bearing := delta.Angle()
	if geom.GlobalToLocal(delta, pose.Heading).Y < 0 {
		bearing += math.Pi
	}
	return d.c.cfg.Turn.Gains.P * geom.WrapAngle(bearing-pose.Heading)
}

// sequence runs its phases one after another.
type sequence struct {
	name   string
	phases []Command
	index  int
}

func Sequence(name string, phases ...Command) Command {
	return &sequence{name: name, phases: phases}
}

func (s *sequence) Name() string {
	if s.index < len(s.phases) {
		return s.name + "/" + s.phases[s.index].Name()
	}
	return s.name
}

func (s *sequence) Step(ctx context.Context, pose tracking.Pose) (Status, error) {
	if s.index >= len(s.phases) {
		return Settled, nil
	}
	status, err := s.phases[s.index].Step(ctx, pose)
	if status == Settled {
		s.index++
		if s.index >= len(s.phases) {
			return Settled, err
		}
	}
	return Continue, err
}

// MoveToPointCommand faces target, then drives to it. The turn is skipped when the
// robot is already within drive tolerance, where the bearing is meaningless.
func (c *Controller) MoveToPointCommand(target geom.Vector2) Command {
	return &moveToPoint{c: c, target: target}
}

type moveToPoint struct {
	c      *Controller
	target geom.Vector2
	seq    Command
}

func (m *moveToPoint) Name() string {
	if m.seq == nil {
		return "move_to_point"
	}
	return m.seq.Name()
}

func (m *moveToPoint) Step(ctx context.Context, pose tracking.Pose) (Status, error) {
	if m.seq == nil {
		phases := []Command{m.c.DriveToCommand(m.target)}
		if m.target.Sub(pose.Pos).Magnitude() > m.c.cfg.Drive.Tolerance {
			phases = append([]Command{m.c.FaceCommand(m.target)}, phases...)
		}
		m.seq = Sequence("move_to_point", phases...)
	}
	return m.seq.Step(ctx, pose)
}

func (c *Controller) MoveToOrientationCommand(target geom.Vector2, angle float64) Command {
	return Sequence("move_to_orientation", c.MoveToPointCommand(target), c.RotateToCommand(angle))
}
