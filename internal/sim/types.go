package sim

import "math"

// State is a plant state vector, laid out by the State* indices.
type State []float64

// IsValid reports whether every component is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Control is the plant input held constant over one integration step.
type Control []float64

type Dynamics interface {
	Derivative(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn Dynamics, x State, u Control, t float64, dt float64) State
}

// Observer is notified after every plant step with the simulated time and state.
type Observer interface {
	OnStep(t float64, x State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t float64, x State)

func (f ObserverFunc) OnStep(t float64, x State) { f(t, x) }
