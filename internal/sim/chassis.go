// Package sim is a simulated robot chassis for exercising the control core without
// hardware. A [Chassis] accepts motor power like the real actuator link and serves
// tracking-wheel ticks and heading readings like the real sensors.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/driveline/internal/drivetrain"
	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/tracking"
)

const (
	LayoutSkid   = "skid"
	LayoutXDrive = "xdrive"
)

type Config struct {
	Layout string
	// MaxSpeed is the wheel surface speed at full power, ft/s.
	MaxSpeed float64
	// TrackWidth is the distance between the left and right drive wheels, ft.
	TrackWidth float64
	// MotorLag is the velocity time constant in seconds.
	MotorLag float64
	Dt       time.Duration
	Geometry tracking.Geometry

	HeadingNoiseDeg       float64
	HeadingDriftDegPerSec float64
	// HeadingClockwise makes the simulated sensor count clockwise-positive.
	HeadingClockwise bool
	// DropoutRate is the probability that any single sensor read fails.
	DropoutRate float64
	Seed        int64

	Start tracking.Pose
}

func DefaultConfig() Config {
	return Config{
		Layout:           LayoutSkid,
		MaxSpeed:         4,
		TrackWidth:       1.0,
		MotorLag:         0.05,
		Dt:               5 * time.Millisecond,
		Geometry:         tracking.DefaultGeometry(),
		HeadingClockwise: true,
		Seed:             1,
		Start:            tracking.Pose{Heading: math.Pi / 2},
	}
}

func (c Config) validate() error {
	if c.Layout != LayoutSkid && c.Layout != LayoutXDrive {
		return fmt.Errorf("unknown layout %q", c.Layout)
	}
	if c.MaxSpeed <= 0 {
		return fmt.Errorf("max speed must be positive, got %f", c.MaxSpeed)
	}
	if c.TrackWidth <= 0 {
		return fmt.Errorf("track width must be positive, got %f", c.TrackWidth)
	}
	if c.MotorLag <= 0 {
		return fmt.Errorf("motor lag must be positive, got %f", c.MotorLag)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %s", c.Dt)
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		return fmt.Errorf("dropout rate must be in [0, 1), got %f", c.DropoutRate)
	}
	if c.HeadingNoiseDeg < 0 {
		return fmt.Errorf("heading noise must not be negative, got %f", c.HeadingNoiseDeg)
	}
	return c.Geometry.Validate()
}

// Chassis is safe for concurrent use. Observers run with the chassis locked and must
// not call back into it.
type Chassis struct {
	cfg   Config
	plant *Plant
	integ Integrator
	clk   clock.Clock
	log   *zap.Logger

	mu         sync.Mutex
	x          State
	t          float64
	power      [4]float64
	tickOffset [3]int64
	headZero   float64
	rng        *rand.Rand
	observers  []Observer

	dropouts atomic.Int64
}

func NewChassis(cfg Config, integ Integrator, clk clock.Clock, log *zap.Logger) (*Chassis, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if integ == nil {
		return nil, fmt.Errorf("sim: integrator is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}

	x := make(State, stateDim)
	x[StateX] = cfg.Start.Pos.X
	x[StateY] = cfg.Start.Pos.Y
	x[StateHeading] = cfg.Start.Heading

	return &Chassis{
		cfg: cfg,
		plant: &Plant{
			MotorLag:   cfg.MotorLag,
			Wheelbase:  cfg.Geometry.Wheelbase,
			BackOffset: cfg.Geometry.BackOffset,
		},
		integ:     integ,
		clk:       clk,
		log:       log.Named("sim"),
		x:         x,
		headZero:  cfg.Start.Heading,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		observers: make([]Observer, 0),
	}, nil
}

func (c *Chassis) AddObserver(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

// SetPower implements drivetrain.Actuator.
func (c *Chassis) SetPower(_ context.Context, motor drivetrain.MotorID, power float64) error {
	if motor < drivetrain.FrontLeft || motor > drivetrain.BackRight {
		return fmt.Errorf("%w: %s", ErrUnknownMotor, motor)
	}
	c.mu.Lock()
	c.power[motor] = drivetrain.Clamp(power)
	c.mu.Unlock()
	return nil
}

// control converts motor power into commanded body velocities.
func (c *Chassis) control() Control {
	p := c.power
	perUnit := c.cfg.MaxSpeed / drivetrain.MaxPower
	u := make(Control, controlDim)

	switch c.cfg.Layout {
	case LayoutXDrive:
		fl, fr := p[drivetrain.FrontLeft], p[drivetrain.FrontRight]
		bl, br := p[drivetrain.BackLeft], p[drivetrain.BackRight]
		u[ControlForward] = (fl + fr + bl + br) / 4 * perUnit
		u[ControlStrafe] = (fl - fr - bl + br) / 4 * perUnit
		yaw := (fl - fr + bl - br) / 4 * perUnit
		u[ControlOmega] = -2 * yaw / c.cfg.TrackWidth
	default:
		left := (p[drivetrain.FrontLeft] + p[drivetrain.BackLeft]) / 2 * perUnit
		right := (p[drivetrain.FrontRight] + p[drivetrain.BackRight]) / 2 * perUnit
		u[ControlForward] = (left + right) / 2
		u[ControlOmega] = (right - left) / c.cfg.TrackWidth
	}
	return u
}

// Step advances the plant by dt seconds.
func (c *Chassis) Step(dt float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.integ.Step(c.plant, c.x, c.control(), c.t, dt)
	if !next.IsValid() {
		return fmt.Errorf("%w at t=%.4f", ErrUnstable, c.t)
	}
	c.x = next
	c.t += dt

	for _, o := range c.observers {
		o.OnStep(c.t, c.x)
	}
	return nil
}

// Run steps the plant every cfg.Dt of clock time until ctx is done.
func (c *Chassis) Run(ctx context.Context) error {
	ticker := c.clk.Ticker(c.cfg.Dt)
	defer ticker.Stop()

	c.log.Info("plant started",
		zap.String("layout", c.cfg.Layout),
		zap.Duration("dt", c.cfg.Dt),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Step(c.cfg.Dt.Seconds()); err != nil {
				return err
			}
		}
	}
}

// Ticks implements tracking.EncoderSource.
func (c *Chassis) Ticks(_ context.Context, id tracking.EncoderID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dropped() {
		return 0, fmt.Errorf("%w: %s encoder", ErrSensorDropout, id)
	}
	raw, err := c.rawTicks(id)
	if err != nil {
		return 0, err
	}
	return raw - c.tickOffset[id], nil
}

func (c *Chassis) rawTicks(id tracking.EncoderID) (int64, error) {
	g := c.cfg.Geometry
	var travel, diameter float64
	switch id {
	case tracking.Left:
		travel, diameter = c.x[StateLeftTravel], g.LeftWheelDiameter
	case tracking.Right:
		travel, diameter = c.x[StateRightTravel], g.RightWheelDiameter
	case tracking.Back:
		travel, diameter = c.x[StateBackTravel], g.BackWheelDiameter
	default:
		return 0, fmt.Errorf("sim: unknown encoder %s", id)
	}
	return int64(math.Round(travel / (math.Pi * diameter / g.TicksPerRev))), nil
}

// ResetTicks implements tracking.EncoderResetter.
func (c *Chassis) ResetTicks(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range []tracking.EncoderID{tracking.Left, tracking.Right, tracking.Back} {
		raw, err := c.rawTicks(id)
		if err != nil {
			return err
		}
		c.tickOffset[id] = raw
	}
	return nil
}

// HeadingDegrees implements tracking.HeadingSource. The reading is relative to the
// heading the chassis started at.
func (c *Chassis) HeadingDegrees(context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dropped() {
		return 0, fmt.Errorf("%w: heading sensor", ErrSensorDropout)
	}
	deg := geom.RadToDeg(c.x[StateHeading] - c.headZero)
	if c.cfg.HeadingClockwise {
		deg = -deg
	}
	deg += c.cfg.HeadingDriftDegPerSec * c.t
	if c.cfg.HeadingNoiseDeg > 0 {
		deg += c.rng.NormFloat64() * c.cfg.HeadingNoiseDeg
	}
	return deg, nil
}

func (c *Chassis) dropped() bool {
	if c.cfg.DropoutRate > 0 && c.rng.Float64() < c.cfg.DropoutRate {
		c.dropouts.Inc()
		return true
	}
	return false
}

// Truth returns the actual simulated pose.
func (c *Chassis) Truth() tracking.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tracking.Pose{
		Pos:     geom.Vec(c.x[StateX], c.x[StateY]),
		Heading: c.x[StateHeading],
	}
}

// Time returns the simulated time in seconds.
func (c *Chassis) Time() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Chassis) Dropouts() int64 { return c.dropouts.Load() }

// Power returns the last power applied to each motor, indexed by drivetrain.MotorID.
func (c *Chassis) Power() [4]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.power
}

// Sample captures the chassis at its current simulated time. The estimate is supplied
// by the caller.
func (c *Chassis) Sample(estimated tracking.Pose) Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Record{
		Time:      c.t,
		Estimated: estimated,
		Truth: tracking.Pose{
			Pos:     geom.Vec(c.x[StateX], c.x[StateY]),
			Heading: c.x[StateHeading],
		},
		Power: c.power,
	}
}

// Close cuts power to every motor.
func (c *Chassis) Close(ctx context.Context) error {
	var err error
	for m := drivetrain.FrontLeft; m <= drivetrain.BackRight; m++ {
		err = multierr.Append(err, c.SetPower(ctx, m, 0))
	}
	return err
}
