// Package motion drives the robot to field positions and headings using the pose
// from a tracking.Store, two PID loops and a drivetrain.
//
// Every blocking operation is a [Command] state machine run by [Controller.Run], which
// steps it once per control period until it settles, the context ends, the optional
// timeout passes, or the controller is disabled.
package motion

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/san-kum/driveline/internal/control"
	"github.com/san-kum/driveline/internal/drivetrain"
	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/tracking"
)

// Axis configures one PID loop.
type Axis struct {
	Gains             control.Gains
	Tolerance         float64
	IntegralTolerance float64
}

type Config struct {
	// Drive works in feet of distance to the target.
	Drive Axis
	// Turn works in radians of heading.
	Turn        Axis
	SettleDwell time.Duration
	Period      time.Duration
	// Timeout bounds each command; zero waits for settle indefinitely.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Drive: Axis{
			Gains:             control.Gains{P: 0.6, D: 2},
			Tolerance:         0.1,
			IntegralTolerance: 0.5,
		},
		Turn: Axis{
			Gains:             control.Gains{P: 1.2, I: 0.01, D: 4},
			Tolerance:         geom.DegToRad(2),
			IntegralTolerance: geom.DegToRad(10),
		},
		SettleDwell: control.DefaultSettleDwell,
		Period:      20 * time.Millisecond,
	}
}

// Controller is the closed-loop motion layer. It runs one command at a time.
type Controller struct {
	cfg   Config
	drive *control.PID
	turn  *control.PID
	dt    drivetrain.Drivetrain
	store *tracking.Store
	clk   clock.Clock
	log   *zap.Logger

	busy     atomic.Bool
	disabled atomic.Bool

	// mu orders drivetrain writes against Disable, so nothing reaches the motors after
	// the disabling stop. halt is closed on Disable and replaced on Enable.
	mu   sync.Mutex
	halt chan struct{}
}

func New(cfg Config, dt drivetrain.Drivetrain, store *tracking.Store, clk clock.Clock, log *zap.Logger) (*Controller, error) {
	if dt == nil || store == nil {
		return nil, fmt.Errorf("motion: drivetrain and store are required")
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("motion: period must be positive, got %s", cfg.Period)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("motion: timeout must not be negative, got %s", cfg.Timeout)
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}

	opts := []control.Option{control.WithClock(clk)}
	if cfg.SettleDwell > 0 {
		opts = append(opts, control.WithSettleDwell(cfg.SettleDwell))
	}
	drive, err := control.NewPID(0, cfg.Drive.Gains, cfg.Drive.Tolerance, cfg.Drive.IntegralTolerance, opts...)
	if err != nil {
		return nil, fmt.Errorf("motion: drive axis: %w", err)
	}
	turn, err := control.NewPID(0, cfg.Turn.Gains, cfg.Turn.Tolerance, cfg.Turn.IntegralTolerance, opts...)
	if err != nil {
		return nil, fmt.Errorf("motion: turn axis: %w", err)
	}

	return &Controller{
		cfg:   cfg,
		drive: drive,
		turn:  turn,
		dt:    dt,
		store: store,
		clk:   clk,
		log:   log.Named("motion"),
		halt:  make(chan struct{}),
	}, nil
}

// Move issues one open-loop command. direction is a field-frame velocity demand and
// turn a CCW rotation demand, both nominally in [-1, 1]; when |x|+|y|+|turn| exceeds
// 1 the demand is scaled down to fit. A skid-steer chassis cannot strafe, so it
// receives the magnitude of the demand along its forward axis, signed by whether the
// demand points ahead of or behind the robot. A disabled controller refuses with
// ErrDisabled and leaves the motors alone.
func (c *Controller) Move(ctx context.Context, direction geom.Vector2, turn float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled.Load() {
		return ErrDisabled
	}

	heading := c.store.Snapshot().Heading
	local := geom.GlobalToLocal(direction, heading)

	scale := math.Abs(local.X) + math.Abs(local.Y) + math.Abs(turn)
	if scale < 1 {
		scale = 1
	}
	// Drivetrain yaw is clockwise-positive.
	yaw := -turn / scale * drivetrain.MaxPower

	if h, ok := c.dt.(drivetrain.Holonomic); ok {
		return h.Mecanum(ctx, local.X/scale*drivetrain.MaxPower, local.Y/scale*drivetrain.MaxPower, yaw)
	}

	forward := math.Copysign(local.Magnitude(), local.Y) / scale * drivetrain.MaxPower
	if turn == 0 {
		return c.dt.Forward(ctx, forward)
	}
	return c.dt.Arcade(ctx, forward, yaw, 0)
}

// Run steps cmd every control period until it settles. The drivetrain is stopped
// whenever Run returns.
func (c *Controller) Run(ctx context.Context, cmd Command) error {
	name := cmd.Name()
	if c.disabled.Load() {
		return &CommandError{Command: name, Err: ErrDisabled}
	}
	if !c.busy.CompareAndSwap(false, true) {
		return &CommandError{Command: name, Err: ErrBusy}
	}
	defer c.busy.Store(false)
	defer c.stop(ctx)

	log := c.log.With(zap.String("command", name))
	halt := c.haltChan()
	start := c.clk.Now()
	log.Debug("command started")

	var last error
	steps := 0
	for {
		if err := ctx.Err(); err != nil {
			return &CommandError{Command: name, Elapsed: c.clk.Since(start), Err: err, Last: last}
		}
		if c.disabled.Load() {
			return &CommandError{Command: name, Elapsed: c.clk.Since(start), Err: ErrDisabled, Last: last}
		}

		status, err := cmd.Step(ctx, c.store.Snapshot())
		steps++
		// Disabled mid-step: whatever the step tried to write was refused.
		if c.disabled.Load() {
			return &CommandError{Command: name, Elapsed: c.clk.Since(start), Err: ErrDisabled, Last: last}
		}
		if err != nil {
			last = err
			log.Warn("step failed", zap.Error(err), zap.Int("step", steps))
		}
		if status == Settled {
			log.Info("command settled",
				zap.Duration("elapsed", c.clk.Since(start)),
				zap.Int("steps", steps),
			)
			return nil
		}

		if elapsed := c.clk.Since(start); c.cfg.Timeout > 0 && elapsed >= c.cfg.Timeout {
			log.Warn("command timed out", zap.Duration("elapsed", elapsed))
			return &CommandError{Command: name, Elapsed: elapsed, Err: ErrDidNotSettle, Last: last}
		}

		select {
		case <-ctx.Done():
			return &CommandError{Command: name, Elapsed: c.clk.Since(start), Err: ctx.Err(), Last: last}
		case <-halt:
			return &CommandError{Command: name, Elapsed: c.clk.Since(start), Err: ErrDisabled, Last: last}
		case <-c.clk.After(c.cfg.Period):
		}
	}
}

func (c *Controller) stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(ctx)
}

func (c *Controller) stopLocked(ctx context.Context) {
	if err := c.dt.Stop(context.WithoutCancel(ctx)); err != nil {
		c.log.Error("failed to stop drivetrain", zap.Error(err))
	}
}

// RotateTo turns in place to the field heading angle (radians) by the shorter way.
func (c *Controller) RotateTo(ctx context.Context, angle float64) error {
	return c.Run(ctx, c.RotateToCommand(angle))
}

// MoveToPoint turns to face target and then drives to it.
func (c *Controller) MoveToPoint(ctx context.Context, target geom.Vector2) error {
	return c.Run(ctx, c.MoveToPointCommand(target))
}

// MoveToOrientation drives to target and then turns to angle.
func (c *Controller) MoveToOrientation(ctx context.Context, target geom.Vector2, angle float64) error {
	return c.Run(ctx, c.MoveToOrientationCommand(target, angle))
}

// MoveRelative moves by offset and turns by angleOffset, both relative to the pose
// when the call is made.
func (c *Controller) MoveRelative(ctx context.Context, offset geom.Vector2, angleOffset float64) error {
	pose := c.store.Snapshot()
	return c.MoveToOrientation(ctx, pose.Pos.Add(offset), pose.Heading+angleOffset)
}

// Disable stops the drivetrain and makes any running or future command fail with
// ErrDisabled until Enable is called. Once Disable returns the stop is the last write
// the drivetrain sees from this controller, and a running command returns without
// waiting for its next period.
func (c *Controller) Disable(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled.Swap(true) {
		return
	}
	close(c.halt)
	c.log.Info("controller disabled")
	c.stopLocked(ctx)
}

func (c *Controller) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled.Swap(false) {
		c.halt = make(chan struct{})
		c.log.Info("controller enabled")
	}
}

func (c *Controller) haltChan() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halt
}

func (c *Controller) Enabled() bool { return !c.disabled.Load() }

func (c *Controller) Busy() bool { return c.busy.Load() }
