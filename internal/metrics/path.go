package metrics

import (
	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/sim"
)

// PathLength is the distance the chassis actually travelled, in feet.
type PathLength struct {
	total float64
	last  geom.Vector2
	seen  bool
}

func NewPathLength() *PathLength { return &PathLength{} }

func (p *PathLength) Name() string { return "path_length_ft" }

func (p *PathLength) Observe(r sim.Record) {
	if p.seen {
		p.total += r.Truth.Pos.Sub(p.last).Magnitude()
	}
	p.last = r.Truth.Pos
	p.seen = true
}

func (p *PathLength) Value() float64 { return p.total }

func (p *PathLength) Reset() {
	p.total = 0
	p.seen = false
}
