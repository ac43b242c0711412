package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/san-kum/driveline/internal/drivetrain"
	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/motion"
)

type StepResult struct {
	Index   int
	Kind    Kind
	Elapsed time.Duration
	// Err is set for a motion step that timed out; the scenario carries on after it.
	Err error
}

// Runner executes scenarios one step at a time.
type Runner struct {
	ctrl *motion.Controller
	dt   drivetrain.Drivetrain
	clk  clock.Clock
	log  *zap.Logger
}

func NewRunner(ctrl *motion.Controller, dt drivetrain.Drivetrain, clk clock.Clock, log *zap.Logger) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{ctrl: ctrl, dt: dt, clk: clk, log: log.Named("scenario")}
}

// Run executes every step in order. A motion step that fails to settle is recorded and
// skipped; any other error ends the run.
func (r *Runner) Run(ctx context.Context, sc *Scenario) ([]StepResult, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	results := make([]StepResult, 0, len(sc.Steps))
	for i, st := range sc.Steps {
		log := r.log.With(zap.String("scenario", sc.Name), zap.Int("step", i+1), zap.String("kind", string(st.Kind)))
		log.Info("step started")

		start := r.clk.Now()
		err := r.step(ctx, st)
		res := StepResult{Index: i, Kind: st.Kind, Elapsed: r.clk.Since(start)}

		switch {
		case err == nil:
			log.Info("step finished", zap.Duration("elapsed", res.Elapsed))
		case errors.Is(err, motion.ErrDidNotSettle):
			log.Warn("step did not settle", zap.Error(err))
			res.Err = err
		default:
			results = append(results, res)
			return results, fmt.Errorf("scenario %s: step %d (%s): %w", sc.Name, i+1, st.Kind, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) step(ctx context.Context, st Step) error {
	heading := geom.DegToRad(st.HeadingDeg)
	point := geom.Vec(st.X, st.Y)

	switch st.Kind {
	case MoveToPoint:
		return r.ctrl.MoveToPoint(ctx, point)
	case RotateTo:
		return r.ctrl.RotateTo(ctx, heading)
	case MoveToOrientation:
		return r.ctrl.MoveToOrientation(ctx, point, heading)
	case MoveRelative:
		return r.ctrl.MoveRelative(ctx, point, heading)
	case Arcade:
		return r.arcade(ctx, st)
	case Wait:
		return r.wait(ctx, st.DurationMs)
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidScenario, st.Kind)
}

// arcade drives open loop with cubic stick shaping, then stops.
func (r *Runner) arcade(ctx context.Context, st Step) error {
	forward := drivetrain.CubicScale(st.Forward) * drivetrain.MaxPower
	yaw := drivetrain.CubicScale(st.Yaw) * drivetrain.MaxPower
	if err := r.dt.Arcade(ctx, forward, yaw, st.Threshold); err != nil {
		return err
	}
	err := r.wait(ctx, st.DurationMs)
	if stopErr := r.dt.Stop(context.WithoutCancel(ctx)); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

func (r *Runner) wait(ctx context.Context, ms int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clk.After(time.Duration(ms) * time.Millisecond):
		return nil
	}
}
