package control

import (
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultSettleDwell is how long the error must stay inside tolerance before the
// controller reports settled.
const DefaultSettleDwell = 2 * time.Second

// Gains are the proportional, integral and derivative coefficients.
type Gains struct {
	P float64 `yaml:"p" json:"p"`
	I float64 `yaml:"i" json:"i"`
	D float64 `yaml:"d" json:"d"`
}

func (g Gains) validate() error {
	terms := []struct {
		name  string
		value float64
	}{{"p", g.P}, {"i", g.I}, {"d", g.D}}

	for _, t := range terms {
		if math.IsNaN(t.value) || math.IsInf(t.value, 0) {
			return fmt.Errorf("%w: gain %s is not finite", ErrInvalidGains, t.name)
		}
		if t.value < 0 {
			return fmt.Errorf("%w: gain %s is negative (%g)", ErrInvalidGains, t.name, t.value)
		}
	}
	if g.P == 0 && g.I == 0 && g.D == 0 {
		return fmt.Errorf("%w: all gains are zero", ErrInvalidGains)
	}
	return nil
}

// State is a read-only copy of the controller's dynamic fields.
type State struct {
	Target     float64
	Sense      float64
	Error      float64
	LastError  float64
	Integral   float64
	Derivative float64
	Output     float64
	Settling   bool
	Settled    bool
}

// PID is a discrete-time controller for one axis. The integral and derivative terms
// are per step, not per second, so the gains assume a fixed control period.
//
// A PID is not safe for concurrent use; it belongs to whichever task runs the command.
type PID struct {
	gains             Gains
	tolerance         float64
	integralTolerance float64
	dwell             time.Duration
	clk               clock.Clock

	target     float64
	sense      float64
	err        float64
	lastErr    float64
	integral   float64
	derivative float64
	output     float64

	seeded      bool
	settling    bool
	settled     bool
	settleStart time.Time
}

type Option func(*PID)

// WithClock sets the clock used to time the settle dwell.
func WithClock(c clock.Clock) Option {
	return func(p *PID) { p.clk = c }
}

func WithSettleDwell(d time.Duration) Option {
	return func(p *PID) { p.dwell = d }
}

// NewPID returns a controller aimed at target. The integral term only accumulates
// while |error| <= integralTolerance; the controller settles once |error| <= tolerance
// has held for the settle dwell.
func NewPID(target float64, gains Gains, tolerance, integralTolerance float64, opts ...Option) (*PID, error) {
	p := &PID{
		gains:             gains,
		tolerance:         tolerance,
		integralTolerance: integralTolerance,
		dwell:             DefaultSettleDwell,
		clk:               clock.New(),
		target:            target,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := gains.validate(); err != nil {
		return nil, err
	}
	if !(tolerance > 0) || math.IsInf(tolerance, 0) {
		return nil, fmt.Errorf("%w: tolerance must be positive, got %g", ErrInvalidGains, tolerance)
	}
	if !(integralTolerance >= 0) {
		return nil, fmt.Errorf("%w: integral tolerance must not be negative, got %g", ErrInvalidGains, integralTolerance)
	}
	if p.dwell <= 0 {
		return nil, fmt.Errorf("%w: settle dwell must be positive, got %s", ErrInvalidGains, p.dwell)
	}
	if p.clk == nil {
		return nil, fmt.Errorf("%w: nil clock", ErrInvalidGains)
	}
	return p, nil
}

// Step advances the controller with a new measurement and returns the command.
func (p *PID) Step(measurement float64) float64 {
	p.sense = measurement
	p.err = p.target - measurement

	// Seeding lastErr on the first step keeps the derivative from spiking.
	if !p.seeded {
		p.lastErr = p.err
		p.seeded = true
	}

	p.integral += p.err
	p.derivative = p.err - p.lastErr
	p.lastErr = p.err

	if p.err == 0 || math.Abs(p.err) > p.integralTolerance {
		p.integral = 0
	}

	out := p.gains.P*p.err + p.gains.I*p.integral + p.gains.D*p.derivative

	if math.Abs(p.err) <= p.tolerance {
		now := p.clk.Now()
		if !p.settling {
			p.settling = true
			p.settleStart = now
		}
		if now.Sub(p.settleStart) >= p.dwell {
			p.settled = true
		}
		if p.settled {
			out = 0
		}
	} else {
		p.settling = false
		p.settled = false
	}

	p.output = out
	return out
}

// Reset zeroes the target and every dynamic field. Gains, tolerances and the dwell
// are kept, and the next Step seeds the derivative again.
func (p *PID) Reset() {
	p.target = 0
	p.sense = 0
	p.err = 0
	p.lastErr = 0
	p.integral = 0
	p.derivative = 0
	p.output = 0
	p.seeded = false
	p.settling = false
	p.settled = false
	p.settleStart = time.Time{}
}

func (p *PID) SetTarget(target float64) { p.target = target }

func (p *PID) Target() float64 { return p.target }

// Error returns the error computed by the most recent Step.
func (p *PID) Error() float64 { return p.err }

func (p *PID) IsSettled() bool { return p.settled }

func (p *PID) Gains() Gains { return p.gains }

func (p *PID) Tolerance() float64 { return p.tolerance }

func (p *PID) Snapshot() State {
	return State{
		Target:     p.target,
		Sense:      p.sense,
		Error:      p.err,
		LastError:  p.lastErr,
		Integral:   p.integral,
		Derivative: p.derivative,
		Output:     p.output,
		Settling:   p.settling,
		Settled:    p.settled,
	}
}

// SetGains replaces the gains between commands, as the tuner does.
func (p *PID) SetGains(g Gains) error {
	if err := g.validate(); err != nil {
		return err
	}
	p.gains = g
	return nil
}
