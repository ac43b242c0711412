// Package scenario runs scripted motion routines against the motion controller, either
// on a real drivetrain or on the simulated chassis wired up by a Rig.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("scenario: invalid")

type Kind string

const (
	MoveToPoint       Kind = "move_to_point"
	RotateTo          Kind = "rotate_to"
	MoveToOrientation Kind = "move_to_orientation"
	MoveRelative      Kind = "move_relative"
	// Arcade applies shaped joystick input for a fixed time.
	Arcade Kind = "arcade"
	Wait   Kind = "wait"
)

type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is one entry of a scenario. Which fields apply depends on Kind: X and Y are a
// field point in feet (an offset for move_relative), HeadingDeg a field heading (an
// offset for move_relative), Forward and Yaw raw stick values in [-127, 127].
type Step struct {
	Kind       Kind    `yaml:"kind"`
	X          float64 `yaml:"x,omitempty"`
	Y          float64 `yaml:"y,omitempty"`
	HeadingDeg float64 `yaml:"heading_deg,omitempty"`
	Forward    float64 `yaml:"forward,omitempty"`
	Yaw        float64 `yaml:"yaw,omitempty"`
	Threshold  float64 `yaml:"threshold,omitempty"`
	DurationMs int     `yaml:"duration_ms,omitempty"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Default is the autonomous routine: out to (1, 1), square up to 90 degrees, then
// finish at (10, 10) facing 95 degrees.
func Default() *Scenario {
	return &Scenario{
		Name:        "autonomous",
		Description: "drive to (1,1), face 90, finish at (10,10) facing 95",
		Steps: []Step{
			{Kind: MoveToPoint, X: 1, Y: 1},
			{Kind: RotateTo, HeadingDeg: 90},
			{Kind: MoveToOrientation, X: 10, Y: 10, HeadingDeg: 95},
		},
	}
}

func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: %q has no steps", ErrInvalidScenario, s.Name)
	}
	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidScenario, i+1, err)
		}
	}
	return nil
}

func (st Step) validate() error {
	for _, v := range []float64{st.X, st.Y, st.HeadingDeg, st.Forward, st.Yaw, st.Threshold} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: values must be finite", st.Kind)
		}
	}
	switch st.Kind {
	case MoveToPoint, RotateTo, MoveToOrientation, MoveRelative:
		return nil
	case Arcade, Wait:
		if st.DurationMs <= 0 {
			return fmt.Errorf("%s: duration_ms must be positive", st.Kind)
		}
		if st.Threshold < 0 {
			return fmt.Errorf("%s: threshold must not be negative", st.Kind)
		}
		return nil
	case "":
		return errors.New("missing kind")
	default:
		return fmt.Errorf("unknown kind %q", st.Kind)
	}
}
