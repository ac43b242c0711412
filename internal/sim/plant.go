package sim

import "github.com/san-kum/driveline/internal/geom"

// Plant state layout. Pose is in feet and radians, velocities in the robot frame,
// and tracking-wheel travel in inches.
const (
	StateX = iota
	StateY
	StateHeading
	StateVForward
	StateVStrafe
	StateOmega
	StateLeftTravel
	StateRightTravel
	StateBackTravel
	stateDim
)

// Control layout: commanded forward speed, strafe speed (ft/s) and CCW turn rate (rad/s).
const (
	ControlForward = iota
	ControlStrafe
	ControlOmega
	controlDim
)

// Plant is a rigid chassis whose body velocities follow the commanded velocities
// through a first-order lag, carrying three tracking wheels.
type Plant struct {
	// MotorLag is the velocity time constant in seconds.
	MotorLag float64
	// Wheelbase and BackOffset place the tracking wheels, in inches.
	Wheelbase  float64
	BackOffset float64
}

func (p *Plant) StateDim() int   { return stateDim }
func (p *Plant) ControlDim() int { return controlDim }

func (p *Plant) Derivative(x State, u Control, t float64) State {
	d := make(State, stateDim)

	vf, vs, omega := x[StateVForward], x[StateVStrafe], x[StateOmega]
	v := geom.LocalToGlobal(geom.Vec(vs, vf), x[StateHeading])
	d[StateX] = v.X
	d[StateY] = v.Y
	d[StateHeading] = omega

	d[StateVForward] = (u[ControlForward] - vf) / p.MotorLag
	d[StateVStrafe] = (u[ControlStrafe] - vs) / p.MotorLag
	d[StateOmega] = (u[ControlOmega] - omega) / p.MotorLag

	const inchesPerFoot = 12
	d[StateLeftTravel] = inchesPerFoot*vf - omega*p.Wheelbase/2
	d[StateRightTravel] = inchesPerFoot*vf + omega*p.Wheelbase/2
	d[StateBackTravel] = inchesPerFoot*vs + omega*p.BackOffset
	return d
}
