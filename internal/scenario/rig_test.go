package scenario

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/san-kum/driveline/internal/config"
	"github.com/san-kum/driveline/internal/metrics"
	"github.com/san-kum/driveline/internal/telemetry"
)

func fastConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Control.SettleMs = 100
	cfg.Control.TimeoutMs = 8000
	cfg.Sim.Duration = 20
	cfg.Logging.Level = "error"
	return cfg
}

func TestRig_RunsScenario(t *testing.T) {
	sink := telemetry.NewRecorder()
	rig, err := NewRig(fastConfig(), Options{Sink: sink})
	if err != nil {
		t.Fatalf("NewRig failed: %v", err)
	}

	sc := &Scenario{
		Name: "out-and-turn",
		Steps: []Step{
			{Kind: MoveToPoint, X: 0, Y: 2},
			{Kind: RotateTo, HeadingDeg: 0},
			{Kind: Arcade, Forward: 127, DurationMs: 200},
			{Kind: Wait, DurationMs: 100},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := rig.Run(ctx, sc)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.Completed(sc) {
		t.Fatalf("scenario incomplete: %+v", res.Steps)
	}
	if len(res.Records) < 10 {
		t.Fatalf("expected records, got %d", len(res.Records))
	}

	final := res.Records[len(res.Records)-1]
	if final.Truth.Pos.X < 0.3 {
		t.Errorf("arcade step should have carried the robot east, x=%.3f", final.Truth.Pos.X)
	}
	if math.Abs(final.Truth.Pos.Y-2) > 0.25 {
		t.Errorf("expected y near 2, got %.3f", final.Truth.Pos.Y)
	}
	if power := rig.Chassis().Power(); power != [4]float64{} {
		t.Errorf("motors left powered: %v", power)
	}

	scores := metrics.Evaluate(res.Records)
	if scores["odometry_error_ft"] > 0.05 {
		t.Errorf("odometry drifted: %f ft", scores["odometry_error_ft"])
	}
	if scores["path_length_ft"] < 2 {
		t.Errorf("expected at least 2 ft travelled, got %f", scores["path_length_ft"])
	}
	if len(sink.Samples()) == 0 {
		t.Error("no telemetry reached the extra sink")
	}
	if res.Stats.Updates == 0 {
		t.Error("estimator never ran")
	}
}

func TestRig_OutOfTime(t *testing.T) {
	cfg := fastConfig()
	cfg.Sim.Duration = 0.5

	rig, err := NewRig(cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	res, err := rig.Run(context.Background(), Default())
	if !errors.Is(err, ErrOutOfTime) {
		t.Fatalf("expected ErrOutOfTime, got %v", err)
	}
	if res == nil || len(res.Records) == 0 {
		t.Fatal("expected partial records")
	}
	if res.SimTime < 0.5 || res.SimTime > 0.6 {
		t.Errorf("expected to stop near 0.5s, got %f", res.SimTime)
	}
	if res.Completed(Default()) {
		t.Error("run should not be complete")
	}

	if _, err := rig.Run(context.Background(), Default()); !errors.Is(err, ErrRigUsed) {
		t.Errorf("expected ErrRigUsed, got %v", err)
	}
}

func TestNewRig_InvalidConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.Sim.Integrator = "leapfrog"
	if _, err := NewRig(cfg, Options{}); err == nil {
		t.Error("expected error for unknown integrator")
	}

	cfg = fastConfig()
	cfg.Chassis.MaxSpeed = 0
	if _, err := NewRig(cfg, Options{}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected config.ErrInvalid, got %v", err)
	}
}
