// Package tune searches PID gains by running each candidate against the simulated
// chassis.
package tune

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/driveline/internal/config"
	"github.com/san-kum/driveline/internal/control"
	"github.com/san-kum/driveline/internal/scenario"
)

type Axis string

const (
	Drive Axis = "drive"
	Turn  Axis = "turn"
)

// UnsettledPenalty is added to a candidate's score, in seconds, for each step that
// failed to settle or was never reached.
const UnsettledPenalty = 100.0

// Candidate is one evaluated set of gains. Lower scores are better.
type Candidate struct {
	Gains   control.Gains
	Score   float64
	SimTime float64
	Settled int
	Err     error
}

type GridSearch struct {
	base     *config.Config
	axis     Axis
	ranges   [3][]float64
	scenario *scenario.Scenario
	workers  int
	log      *zap.Logger
}

type Option func(*GridSearch)

func WithWorkers(n int) Option {
	return func(g *GridSearch) { g.workers = n }
}

func WithScenario(sc *scenario.Scenario) Option {
	return func(g *GridSearch) { g.scenario = sc }
}

func WithLogger(log *zap.Logger) Option {
	return func(g *GridSearch) { g.log = log }
}

// NewGridSearch tries every combination of the p, i and d values on the given axis,
// starting from base.
func NewGridSearch(base *config.Config, axis Axis, p, i, d []float64, opts ...Option) (*GridSearch, error) {
	if axis != Drive && axis != Turn {
		return nil, fmt.Errorf("tune: unknown axis %q", axis)
	}
	for name, r := range map[string][]float64{"p": p, "i": i, "d": d} {
		if len(r) == 0 {
			return nil, fmt.Errorf("tune: no values for %s", name)
		}
	}
	g := &GridSearch{
		base:    base,
		axis:    axis,
		ranges:  [3][]float64{p, i, d},
		workers: runtime.GOMAXPROCS(0),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.scenario == nil {
		g.scenario = DefaultScenario(axis)
	}
	if g.workers < 1 {
		g.workers = 1
	}
	return g, nil
}

// DefaultScenario exercises the axis being tuned.
func DefaultScenario(axis Axis) *scenario.Scenario {
	if axis == Turn {
		return &scenario.Scenario{
			Name: "tune-turn",
			Steps: []scenario.Step{
				{Kind: scenario.RotateTo, HeadingDeg: 0},
				{Kind: scenario.RotateTo, HeadingDeg: 180},
				{Kind: scenario.RotateTo, HeadingDeg: 135},
			},
		}
	}
	return &scenario.Scenario{
		Name: "tune-drive",
		Steps: []scenario.Step{
			{Kind: scenario.MoveRelative, Y: 4},
			{Kind: scenario.MoveRelative, Y: 0.5},
		},
	}
}

// Grid lists every gain combination in order.
func (g *GridSearch) Grid() []control.Gains {
	out := make([]control.Gains, 0)
	g.gridRecursive(0, [3]float64{}, &out)
	return out
}

func (g *GridSearch) gridRecursive(depth int, current [3]float64, out *[]control.Gains) {
	if depth == len(g.ranges) {
		*out = append(*out, control.Gains{P: current[0], I: current[1], D: current[2]})
		return
	}
	for _, v := range g.ranges[depth] {
		current[depth] = v
		g.gridRecursive(depth+1, current, out)
	}
}

// Search evaluates the whole grid and returns the candidates best first. Candidates
// that cannot be built carry an error and an infinite score; only context
// cancellation fails the search.
func (g *GridSearch) Search(ctx context.Context) ([]Candidate, error) {
	grid := g.Grid()
	results := make([]Candidate, len(grid))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for idx, gains := range grid {
		idx, gains := idx, gains
		eg.Go(func() error {
			c, err := g.evaluate(ctx, gains)
			if err != nil {
				return err
			}
			results[idx] = c
			g.log.Debug("candidate evaluated",
				zap.Float64("p", gains.P),
				zap.Float64("i", gains.I),
				zap.Float64("d", gains.D),
				zap.Float64("score", c.Score),
			)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score < results[j].Score
	})
	return results, nil
}

func (g *GridSearch) evaluate(ctx context.Context, gains control.Gains) (Candidate, error) {
	c := Candidate{Gains: gains, Score: math.Inf(1)}

	cfg := *g.base
	if cfg.Control.TimeoutMs == 0 {
		cfg.Control.TimeoutMs = 6000
	}
	if g.axis == Turn {
		cfg.Control.Turn.Gains = gains
	} else {
		cfg.Control.Drive.Gains = gains
	}

	rig, err := scenario.NewRig(&cfg, scenario.Options{})
	if err != nil {
		c.Err = err
		return c, nil
	}
	res, err := rig.Run(ctx, g.scenario)
	if ctx.Err() != nil {
		return c, ctx.Err()
	}
	if res == nil {
		c.Err = err
		return c, nil
	}

	for _, s := range res.Steps {
		if s.Err == nil {
			c.Settled++
		}
	}
	c.SimTime = res.SimTime
	c.Err = err
	c.Score = res.SimTime + UnsettledPenalty*float64(len(g.scenario.Steps)-c.Settled)
	return c, nil
}

// Best returns the lowest scoring candidate that settled every step.
func Best(candidates []Candidate, steps int) (Candidate, error) {
	for _, c := range candidates {
		if c.Err == nil && c.Settled == steps {
			return c, nil
		}
	}
	return Candidate{}, errors.New("tune: no candidate settled every step")
}
