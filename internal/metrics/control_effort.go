package metrics

import (
	"math"

	"github.com/san-kum/driveline/internal/drivetrain"
	"github.com/san-kum/driveline/internal/sim"
)

// ControlEffort is the mean motor power per sample as a fraction of full power.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(r sim.Record) {
	total := 0.0
	for _, p := range r.Power {
		total += math.Abs(p)
	}
	c.sum += total / (drivetrain.MaxPower * float64(len(r.Power)))
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}
