// Package config loads the YAML configuration shared by every driveline command.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/driveline/internal/control"
	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/integrators"
	"github.com/san-kum/driveline/internal/motion"
	"github.com/san-kum/driveline/internal/sim"
	"github.com/san-kum/driveline/internal/tracking"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

const (
	DefaultOdometryPeriodMs = 10
	DefaultControlPeriodMs  = 20
	DefaultSettleMs         = 2000
	DefaultPublishMs        = 75
	DefaultDuration         = 30.0
)

type Config struct {
	Chassis     ChassisConfig   `yaml:"chassis"`
	Odometry    OdometryConfig  `yaml:"odometry"`
	Control     ControlConfig   `yaml:"control"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	InitialPose PoseConfig      `yaml:"initial_pose"`
	Sim         SimConfig       `yaml:"sim"`
	Logging     LoggingConfig   `yaml:"logging"`
}

type ChassisConfig struct {
	// Layout is "skid" or "xdrive".
	Layout string `yaml:"layout"`
	// MaxSpeed is the wheel speed at full power in ft/s.
	MaxSpeed   float64 `yaml:"max_speed"`
	TrackWidth float64 `yaml:"track_width"`
}

// OdometryConfig describes the tracking wheels. Lengths are in inches.
type OdometryConfig struct {
	TicksPerRev        float64 `yaml:"ticks_per_rev"`
	LeftWheelDiameter  float64 `yaml:"left_wheel_diameter"`
	RightWheelDiameter float64 `yaml:"right_wheel_diameter"`
	BackWheelDiameter  float64 `yaml:"back_wheel_diameter"`
	Wheelbase          float64 `yaml:"wheelbase"`
	BackOffset         float64 `yaml:"back_offset"`
	PeriodMs           int     `yaml:"period_ms"`
	MaxTicksPerUpdate  int64   `yaml:"max_ticks_per_update"`
	HeadingClockwise   bool    `yaml:"heading_clockwise"`
	FaultStreakLimit   int64   `yaml:"fault_streak_limit"`
}

// AxisConfig is one PID loop. Drive tolerances are in feet, turn tolerances in degrees.
type AxisConfig struct {
	control.Gains     `yaml:",inline"`
	Tolerance         float64 `yaml:"tolerance"`
	IntegralTolerance float64 `yaml:"integral_tolerance"`
}

type ControlConfig struct {
	Drive    AxisConfig `yaml:"drive"`
	Turn     AxisConfig `yaml:"turn"`
	SettleMs int        `yaml:"settle_ms"`
	PeriodMs int        `yaml:"period_ms"`
	// TimeoutMs bounds each motion command; 0 waits indefinitely.
	TimeoutMs int `yaml:"timeout_ms"`
}

type TelemetryConfig struct {
	PublishMs int `yaml:"publish_ms"`
	Buffer    int `yaml:"buffer"`
}

type PoseConfig struct {
	X          float64 `yaml:"x"`
	Y          float64 `yaml:"y"`
	HeadingDeg float64 `yaml:"heading_deg"`
}

type SimConfig struct {
	Integrator            string  `yaml:"integrator"`
	Dt                    float64 `yaml:"dt"`
	MotorLag              float64 `yaml:"motor_lag"`
	HeadingNoiseDeg       float64 `yaml:"heading_noise_deg"`
	HeadingDriftDegPerSec float64 `yaml:"heading_drift_deg_per_sec"`
	DropoutRate           float64 `yaml:"dropout_rate"`
	Seed                  int64   `yaml:"seed"`
	// Duration caps a simulated run in seconds of simulated time.
	Duration float64 `yaml:"duration"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// Encoding is "console" or "json".
	Encoding string `yaml:"encoding"`
}

func DefaultConfig() *Config {
	mc := motion.DefaultConfig()
	g := tracking.DefaultGeometry()
	return &Config{
		Chassis: ChassisConfig{
			Layout:     sim.LayoutSkid,
			MaxSpeed:   4,
			TrackWidth: 1,
		},
		Odometry: OdometryConfig{
			TicksPerRev:        g.TicksPerRev,
			LeftWheelDiameter:  g.LeftWheelDiameter,
			RightWheelDiameter: g.RightWheelDiameter,
			BackWheelDiameter:  g.BackWheelDiameter,
			Wheelbase:          g.Wheelbase,
			BackOffset:         g.BackOffset,
			PeriodMs:           DefaultOdometryPeriodMs,
			MaxTicksPerUpdate:  360,
			HeadingClockwise:   true,
			FaultStreakLimit:   50,
		},
		Control: ControlConfig{
			Drive: AxisConfig{
				Gains:             mc.Drive.Gains,
				Tolerance:         mc.Drive.Tolerance,
				IntegralTolerance: mc.Drive.IntegralTolerance,
			},
			Turn: AxisConfig{
				Gains:             mc.Turn.Gains,
				Tolerance:         geom.RadToDeg(mc.Turn.Tolerance),
				IntegralTolerance: geom.RadToDeg(mc.Turn.IntegralTolerance),
			},
			SettleMs: DefaultSettleMs,
			PeriodMs: DefaultControlPeriodMs,
		},
		Telemetry: TelemetryConfig{
			PublishMs: DefaultPublishMs,
			Buffer:    256,
		},
		InitialPose: PoseConfig{HeadingDeg: 90},
		Sim: SimConfig{
			Integrator: "rk4",
			Dt:         0.005,
			MotorLag:   0.05,
			Seed:       1,
			Duration:   DefaultDuration,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem at once, each wrapped in ErrInvalid.
func (c *Config) Validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}
	positive := func(v float64) bool { return v > 0 && !math.IsInf(v, 0) }

	check(c.Chassis.Layout == sim.LayoutSkid || c.Chassis.Layout == sim.LayoutXDrive,
		"chassis.layout must be %q or %q, got %q", sim.LayoutSkid, sim.LayoutXDrive, c.Chassis.Layout)
	check(positive(c.Chassis.MaxSpeed), "chassis.max_speed must be positive")
	check(positive(c.Chassis.TrackWidth), "chassis.track_width must be positive")

	if err := c.Geometry().Validate(); err != nil {
		check(false, "odometry: %v", err)
	}
	check(c.Odometry.PeriodMs > 0, "odometry.period_ms must be positive")
	check(c.Odometry.MaxTicksPerUpdate >= 0, "odometry.max_ticks_per_update must not be negative")

	for _, axis := range []struct {
		name string
		cfg  AxisConfig
	}{{"drive", c.Control.Drive}, {"turn", c.Control.Turn}} {
		_, err := control.NewPID(0, axis.cfg.Gains, axis.cfg.Tolerance, axis.cfg.IntegralTolerance)
		if err != nil {
			check(false, "control.%s: %v", axis.name, err)
		}
	}
	check(c.Control.SettleMs > 0, "control.settle_ms must be positive")
	check(c.Control.PeriodMs > 0, "control.period_ms must be positive")
	check(c.Control.TimeoutMs >= 0, "control.timeout_ms must not be negative")

	check(c.Telemetry.PublishMs > 0, "telemetry.publish_ms must be positive")

	if _, err := integrators.New(c.Sim.Integrator); err != nil {
		check(false, "sim.integrator: %v", err)
	}
	check(positive(c.Sim.Dt), "sim.dt must be positive")
	check(positive(c.Sim.MotorLag), "sim.motor_lag must be positive")
	check(c.Sim.DropoutRate >= 0 && c.Sim.DropoutRate < 1, "sim.dropout_rate must be in [0, 1)")
	check(c.Sim.HeadingNoiseDeg >= 0, "sim.heading_noise_deg must not be negative")
	check(c.Sim.Duration >= 0, "sim.duration must not be negative")

	check(c.Logging.Encoding == "console" || c.Logging.Encoding == "json",
		"logging.encoding must be console or json, got %q", c.Logging.Encoding)
	return errs
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c *Config) Geometry() tracking.Geometry {
	o := c.Odometry
	return tracking.Geometry{
		TicksPerRev:        o.TicksPerRev,
		LeftWheelDiameter:  o.LeftWheelDiameter,
		RightWheelDiameter: o.RightWheelDiameter,
		BackWheelDiameter:  o.BackWheelDiameter,
		Wheelbase:          o.Wheelbase,
		BackOffset:         o.BackOffset,
	}
}

func (c *Config) Tracking() tracking.Config {
	return tracking.Config{
		Geometry:          c.Geometry(),
		Period:            ms(c.Odometry.PeriodMs),
		PublishInterval:   ms(c.Telemetry.PublishMs),
		MaxTicksPerUpdate: c.Odometry.MaxTicksPerUpdate,
		HeadingClockwise:  c.Odometry.HeadingClockwise,
		FaultStreakLimit:  c.Odometry.FaultStreakLimit,
	}
}

func (c *Config) Motion() motion.Config {
	turn := c.Control.Turn
	return motion.Config{
		Drive: motion.Axis{
			Gains:             c.Control.Drive.Gains,
			Tolerance:         c.Control.Drive.Tolerance,
			IntegralTolerance: c.Control.Drive.IntegralTolerance,
		},
		Turn: motion.Axis{
			Gains:             turn.Gains,
			Tolerance:         geom.DegToRad(turn.Tolerance),
			IntegralTolerance: geom.DegToRad(turn.IntegralTolerance),
		},
		SettleDwell: ms(c.Control.SettleMs),
		Period:      ms(c.Control.PeriodMs),
		Timeout:     ms(c.Control.TimeoutMs),
	}
}

func (c *Config) Pose() tracking.Pose {
	return tracking.Pose{
		Pos:     geom.Vec(c.InitialPose.X, c.InitialPose.Y),
		Heading: geom.DegToRad(c.InitialPose.HeadingDeg),
	}
}

func (c *Config) Plant() sim.Config {
	return sim.Config{
		Layout:                c.Chassis.Layout,
		MaxSpeed:              c.Chassis.MaxSpeed,
		TrackWidth:            c.Chassis.TrackWidth,
		MotorLag:              c.Sim.MotorLag,
		Dt:                    time.Duration(c.Sim.Dt * float64(time.Second)),
		Geometry:              c.Geometry(),
		HeadingNoiseDeg:       c.Sim.HeadingNoiseDeg,
		HeadingDriftDegPerSec: c.Sim.HeadingDriftDegPerSec,
		HeadingClockwise:      c.Odometry.HeadingClockwise,
		DropoutRate:           c.Sim.DropoutRate,
		Seed:                  c.Sim.Seed,
		Start:                 c.Pose(),
	}
}
