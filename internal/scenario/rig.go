package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/driveline/internal/config"
	"github.com/san-kum/driveline/internal/drivetrain"
	"github.com/san-kum/driveline/internal/integrators"
	"github.com/san-kum/driveline/internal/motion"
	"github.com/san-kum/driveline/internal/sim"
	"github.com/san-kum/driveline/internal/telemetry"
	"github.com/san-kum/driveline/internal/tracking"
)

var (
	// ErrOutOfTime is returned when a run exceeds the configured simulated duration.
	ErrOutOfTime = errors.New("scenario: run exceeded its duration")

	ErrRigUsed = errors.New("scenario: rig already ran")
)

const DefaultRecordInterval = 20 * time.Millisecond

type Options struct {
	// Realtime paces the simulation with the wall clock. Otherwise a mock clock is
	// stepped in lockstep with the plant and runs as fast as the control loops allow.
	Realtime bool
	// Sink receives telemetry in addition to the log.
	Sink           telemetry.Sink
	RecordInterval time.Duration
	Logger         *zap.Logger
}

// Rig wires a simulated chassis, the odometry estimator and the motion controller
// together so a scenario can run end to end. A Rig runs one scenario.
type Rig struct {
	cfg  *config.Config
	opts Options
	clk  clock.Clock
	mock *clock.Mock
	log  *zap.Logger

	chassis   *sim.Chassis
	store     *tracking.Store
	estimator *tracking.Estimator
	ctrl      *motion.Controller
	runner    *Runner

	used atomic.Bool

	mu      sync.Mutex
	records []sim.Record
}

type Result struct {
	Scenario string
	Steps    []StepResult
	Records  []sim.Record
	Stats    tracking.Stats
	Dropouts int64
	// SimTime is the simulated time at the end of the run, in seconds.
	SimTime float64
}

// Completed reports whether every step ran and settled.
func (r *Result) Completed(sc *Scenario) bool {
	if len(r.Steps) != len(sc.Steps) {
		return false
	}
	for _, s := range r.Steps {
		if s.Err != nil {
			return false
		}
	}
	return true
}

func NewRig(cfg *config.Config, opts Options) (*Rig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.RecordInterval <= 0 {
		opts.RecordInterval = DefaultRecordInterval
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := &Rig{cfg: cfg, opts: opts, log: log}
	if opts.Realtime {
		r.clk = clock.New()
	} else {
		r.mock = clock.NewMock()
		r.clk = r.mock
	}

	integ, err := integrators.New(cfg.Sim.Integrator)
	if err != nil {
		return nil, err
	}
	if r.chassis, err = sim.NewChassis(cfg.Plant(), integ, r.clk, log); err != nil {
		return nil, err
	}

	var dt drivetrain.Drivetrain = drivetrain.NewSkidSteer(r.chassis)
	if cfg.Chassis.Layout == sim.LayoutXDrive {
		dt = drivetrain.NewXDrive(r.chassis)
	}

	sink := telemetry.Multi{telemetry.NewLogSink(log)}
	if opts.Sink != nil {
		sink = append(sink, opts.Sink)
	}

	r.store = tracking.NewStore(cfg.Pose())
	if r.estimator, err = tracking.NewEstimator(cfg.Tracking(), r.chassis, r.chassis, r.store, sink, r.clk, log); err != nil {
		return nil, err
	}
	if r.ctrl, err = motion.New(cfg.Motion(), dt, r.store, r.clk, log); err != nil {
		return nil, err
	}
	r.runner = NewRunner(r.ctrl, dt, r.clk, log)
	return r, nil
}

func (r *Rig) Controller() *motion.Controller { return r.ctrl }

func (r *Rig) Chassis() *sim.Chassis { return r.chassis }

func (r *Rig) Store() *tracking.Store { return r.store }

// Run executes sc with the plant, estimator, recorder and scenario each in their own
// goroutine. The first failure cancels the rest. The result holds whatever was
// recorded, even when err is non-nil.
func (r *Rig) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if r.used.Swap(true) {
		return nil, ErrRigUsed
	}
	if err := r.estimator.Reset(ctx, r.cfg.Pose()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var steps []StepResult
	g.Go(func() error {
		defer cancel()
		var err error
		steps, err = r.runner.Run(gctx, sc)
		return err
	})
	g.Go(func() error { return ignoreCanceled(r.estimator.Run(gctx)) })
	g.Go(func() error { return r.record(gctx) })
	if r.mock != nil {
		g.Go(func() error { return r.lockstep(gctx) })
	} else {
		g.Go(func() error { return ignoreCanceled(r.chassis.Run(gctx)) })
		g.Go(func() error { return r.deadline(gctx) })
	}

	err := g.Wait()
	r.sample()
	err = multierr.Append(err, r.chassis.Close(context.WithoutCancel(ctx)))

	r.mu.Lock()
	records := r.records
	r.mu.Unlock()

	res := &Result{
		Scenario: sc.Name,
		Steps:    steps,
		Records:  records,
		Stats:    r.estimator.Stats(),
		Dropouts: r.chassis.Dropouts(),
		SimTime:  r.chassis.Time(),
	}
	r.log.Info("run finished",
		zap.String("scenario", sc.Name),
		zap.Int("steps", len(steps)),
		zap.Float64("sim_time", res.SimTime),
		zap.Int("records", len(records)),
		zap.Error(err),
	)
	return res, err
}

// lockstep advances the plant and the mock clock together, one plant step at a time.
func (r *Rig) lockstep(ctx context.Context) error {
	dt := r.cfg.Plant().Dt
	limit := r.cfg.Sim.Duration
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if limit > 0 && r.chassis.Time() >= limit {
			return fmt.Errorf("%w (%.1fs simulated)", ErrOutOfTime, limit)
		}
		if err := r.chassis.Step(dt.Seconds()); err != nil {
			return err
		}
		r.mock.Add(dt)
	}
}

func (r *Rig) deadline(ctx context.Context) error {
	if r.cfg.Sim.Duration <= 0 {
		<-ctx.Done()
		return nil
	}
	limit := time.Duration(r.cfg.Sim.Duration * float64(time.Second))
	select {
	case <-ctx.Done():
		return nil
	case <-r.clk.After(limit):
		return fmt.Errorf("%w (%s)", ErrOutOfTime, limit)
	}
}

func (r *Rig) record(ctx context.Context) error {
	ticker := r.clk.Ticker(r.opts.RecordInterval)
	defer ticker.Stop()

	r.sample()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sample()
		}
	}
}

func (r *Rig) sample() {
	rec := r.chassis.Sample(r.store.Snapshot())
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
