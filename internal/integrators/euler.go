// Package integrators advances simulated plants by one fixed time step.
package integrators

import (
	"fmt"

	"github.com/san-kum/driveline/internal/sim"
)

// New returns the integrator registered under name.
func New(name string) (sim.Integrator, error) {
	switch name {
	case "rk4", "":
		return NewRK4(), nil
	case "euler":
		return NewEuler(), nil
	default:
		return nil, fmt.Errorf("unknown integrator %q (want rk4 or euler)", name)
	}
}

// Euler is first order. It is cheap and adequate when dt is much shorter than the
// plant's time constants.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t float64, dt float64) sim.State {
	dx := dyn.Derivative(x, u, t)
	result := make(sim.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
