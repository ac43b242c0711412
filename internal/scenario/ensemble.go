package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/driveline/internal/config"
	"github.com/san-kum/driveline/internal/metrics"
)

// Ensemble runs one scenario on independent rigs, one per sensor noise seed, to show
// how odometry error spreads under noise and dropouts.
type Ensemble struct {
	cfg       *config.Config
	runs      int
	seedStart int64
	workers   int
	log       *zap.Logger
}

// EnsembleRun is the outcome of one seed.
type EnsembleRun struct {
	Seed      int64
	Completed bool
	SimTime   float64
	// FinalError is the distance between estimate and truth at the end of the run, in feet.
	FinalError float64
	Metrics    map[string]float64
	Err        error
}

type EnsembleSummary struct {
	Runs       int
	Completed  int
	FinalError metrics.Summary
	SimTime    metrics.Summary
}

// NewEnsemble runs seeds seedStart, seedStart+1, ... with at most workers rigs at once.
// A non-positive workers uses GOMAXPROCS.
func NewEnsemble(cfg *config.Config, runs int, seedStart int64, workers int, log *zap.Logger) (*Ensemble, error) {
	if runs < 1 {
		return nil, fmt.Errorf("scenario: ensemble needs at least one run, got %d", runs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ensemble{cfg: cfg, runs: runs, seedStart: seedStart, workers: workers, log: log.Named("ensemble")}, nil
}

// Run returns one result per seed, in seed order. Failed runs are reported in their
// EnsembleRun; only cancellation fails the whole ensemble.
func (e *Ensemble) Run(ctx context.Context, sc *Scenario) ([]EnsembleRun, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	results := make([]EnsembleRun, e.runs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range results {
		i := i
		seed := e.seedStart + int64(i)
		g.Go(func() error {
			run, err := e.runOne(gctx, sc, seed)
			if err != nil {
				return err
			}
			results[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Ensemble) runOne(ctx context.Context, sc *Scenario, seed int64) (EnsembleRun, error) {
	cfg := *e.cfg
	cfg.Sim.Seed = seed
	run := EnsembleRun{Seed: seed}

	rig, err := NewRig(&cfg, Options{})
	if err != nil {
		run.Err = err
		return run, nil
	}
	res, err := rig.Run(ctx, sc)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return run, ctx.Err()
	}
	run.Err = err
	if res == nil {
		return run, nil
	}

	run.Completed = err == nil && res.Completed(sc)
	run.SimTime = res.SimTime
	run.Metrics = metrics.Evaluate(res.Records)
	if n := len(res.Records); n > 0 {
		run.FinalError = res.Records[n-1].PositionError()
	}
	e.log.Debug("seed finished",
		zap.Int64("seed", seed),
		zap.Bool("completed", run.Completed),
		zap.Float64("final_error_ft", run.FinalError),
	)
	return run, nil
}

// Summarize aggregates the runs that produced records.
func Summarize(runs []EnsembleRun) EnsembleSummary {
	s := EnsembleSummary{Runs: len(runs)}
	var finals, times []float64
	for _, r := range runs {
		if r.Completed {
			s.Completed++
		}
		if r.Metrics == nil {
			continue
		}
		finals = append(finals, r.FinalError)
		times = append(times, r.SimTime)
	}
	s.FinalError = metrics.Summarize(finals)
	s.SimTime = metrics.Summarize(times)
	return s
}
