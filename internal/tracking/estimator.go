package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/telemetry"
)

const inchesPerFoot = 12

// Config controls the estimator loop.
type Config struct {
	Geometry Geometry
	// Period is the update period of Run.
	Period time.Duration
	// PublishInterval throttles pose samples sent to the telemetry sink.
	PublishInterval time.Duration
	// MaxTicksPerUpdate bounds a plausible encoder delta for one update. Zero disables
	// the check.
	MaxTicksPerUpdate int64
	// HeadingClockwise is set when the heading sensor counts clockwise-positive.
	HeadingClockwise bool
	// FaultStreakLimit is the number of consecutive faults from one source after which
	// the streak is logged as an error.
	FaultStreakLimit int64
}

func DefaultConfig() Config {
	return Config{
		Geometry:          DefaultGeometry(),
		Period:            10 * time.Millisecond,
		PublishInterval:   telemetry.DefaultPublishInterval,
		MaxTicksPerUpdate: 360,
		HeadingClockwise:  true,
		FaultStreakLimit:  50,
	}
}

// Stats counts estimator updates and recovered faults.
type Stats struct {
	Updates       int64
	EncoderFaults int64
	Jumps         int64
	HeadingFaults int64
}

type faultCounter struct {
	source string
	total  atomic.Int64
	streak atomic.Int64
}

// Estimator integrates tracking-wheel motion into a field pose and writes it to a
// Store. Position comes from the encoders; the published heading comes from the
// heading sensor.
type Estimator struct {
	cfg     Config
	enc     EncoderSource
	heading HeadingSource
	store   *Store
	sink    telemetry.Sink
	clk     clock.Clock
	log     *zap.Logger

	mu sync.Mutex

	lastRaw [3]int64
	total   [3]float64 // inches travelled per wheel since reset
	arc     float64    // encoder-derived rotation since reset

	// arcOrigin is the heading at which arc was zero.
	arcOrigin float64

	pos           geom.Vector2
	currentHead   float64
	headingOffset float64

	updates       atomic.Int64
	encoderFaults faultCounter
	jumps         faultCounter
	headingFaults faultCounter
}

// NewEstimator builds an estimator seeded from the store's current pose. Encoders are
// assumed to read zero and the heading sensor to read zero at that pose; call Reset
// when that does not hold.
func NewEstimator(cfg Config, enc EncoderSource, heading HeadingSource, store *Store, sink telemetry.Sink, clk clock.Clock, log *zap.Logger) (*Estimator, error) {
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, fmt.Errorf("tracking: geometry: %w", err)
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("tracking: period must be positive, got %s", cfg.Period)
	}
	if cfg.MaxTicksPerUpdate < 0 {
		return nil, fmt.Errorf("tracking: max ticks per update must not be negative, got %d", cfg.MaxTicksPerUpdate)
	}
	if enc == nil || heading == nil || store == nil {
		return nil, errors.New("tracking: encoder source, heading source and store are required")
	}
	if sink == nil {
		sink = telemetry.Nop
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}

	start := store.Snapshot()
	e := &Estimator{
		cfg:           cfg,
		enc:           enc,
		heading:       heading,
		store:         store,
		sink:          telemetry.NewThrottle(sink, clk, cfg.PublishInterval),
		clk:           clk,
		log:           log.Named("odometry"),
		pos:           start.Pos,
		arcOrigin:     start.Heading,
		currentHead:   start.Heading,
		headingOffset: start.Heading,
	}
	e.encoderFaults.source = "encoder"
	e.jumps.source = "encoder-jump"
	e.headingFaults.source = "heading"
	return e, nil
}

// Run updates the pose every period until ctx is done.
func (e *Estimator) Run(ctx context.Context) error {
	ticker := e.clk.Ticker(e.cfg.Period)
	defer ticker.Stop()

	e.log.Info("odometry started", zap.Duration("period", e.cfg.Period))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("odometry stopped", zap.Int64("updates", e.updates.Load()))
			return ctx.Err()
		case <-ticker.C:
			e.Step(ctx)
		}
	}
}

// Step performs one odometry update. Sensor faults are reported and recovered from;
// Step never fails.
func (e *Estimator) Step(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var travel [3]float64
	raw, err := e.readTicks(ctx)
	if err != nil {
		e.fault(&e.encoderFaults, err)
	} else {
		e.encoderFaults.streak.Store(0)
		travel, err = e.travel(raw)
		if err != nil {
			e.fault(&e.jumps, err)
		} else {
			e.jumps.streak.Store(0)
		}
		e.lastRaw = raw
	}

	left, right, back := travel[Left], travel[Right], travel[Back]
	for i := range travel {
		e.total[i] += travel[i]
	}

	arc := (e.total[Right] - e.total[Left]) / e.cfg.Geometry.Wheelbase
	dTheta := arc - e.arc
	local := e.cfg.Geometry.LocalDisplacement(left, right, back, dTheta)
	avgHeading := e.arcOrigin + e.arc + dTheta/2
	e.arc = arc

	delta := geom.LocalToGlobal(local, avgHeading).Scale(1.0 / inchesPerFoot)
	e.pos = e.pos.Add(delta)

	e.readHeading(ctx)

	e.store.Update(e.pos, e.currentHead)
	e.updates.Inc()

	e.sink.PublishPose(telemetry.Sample{
		Time:       e.clk.Now(),
		X:          e.pos.X,
		Y:          e.pos.Y,
		HeadingDeg: geom.RadToDeg(e.currentHead),
	})
}

func (e *Estimator) readTicks(ctx context.Context) ([3]int64, error) {
	var raw [3]int64
	for _, id := range []EncoderID{Left, Right, Back} {
		v, err := e.enc.Ticks(ctx, id)
		if err != nil {
			return raw, &FaultError{Sensor: id.String(), Err: err}
		}
		raw[id] = v
	}
	return raw, nil
}

// travel converts raw counts to inches since the last update. An implausible delta on
// any wheel discards the whole update; the caller re-baselines on the new counts.
func (e *Estimator) travel(raw [3]int64) ([3]float64, error) {
	var out [3]float64
	g := e.cfg.Geometry
	diameters := [3]float64{g.LeftWheelDiameter, g.RightWheelDiameter, g.BackWheelDiameter}

	for i := range raw {
		d := raw[i] - e.lastRaw[i]
		if limit := e.cfg.MaxTicksPerUpdate; limit > 0 && (d > limit || d < -limit) {
			return [3]float64{}, &FaultError{
				Sensor: EncoderID(i).String(),
				Err:    fmt.Errorf("%w: %d ticks", ErrImplausibleJump, d),
			}
		}
		out[i] = float64(d) * g.inchesPerTick(diameters[i])
	}
	return out, nil
}

func (e *Estimator) readHeading(ctx context.Context) {
	deg, err := e.heading.HeadingDegrees(ctx)
	if err == nil && (math.IsNaN(deg) || math.IsInf(deg, 0)) {
		err = fmt.Errorf("%w: %v", ErrInvalidReading, deg)
	}
	if err != nil {
		e.fault(&e.headingFaults, &FaultError{Sensor: "heading", Err: err})
		return
	}
	e.headingFaults.streak.Store(0)
	e.currentHead = e.headingOffset + e.headingSign()*geom.DegToRad(deg)
}

func (e *Estimator) headingSign() float64 {
	if e.cfg.HeadingClockwise {
		return -1
	}
	return 1
}

func (e *Estimator) fault(c *faultCounter, err error) {
	total := c.total.Inc()
	streak := c.streak.Inc()

	e.sink.Warn(telemetry.Fault{
		Time:        e.clk.Now(),
		Source:      c.source,
		Err:         err,
		Count:       total,
		Consecutive: streak,
	})

	if limit := e.cfg.FaultStreakLimit; limit > 0 && streak == limit {
		e.log.Error("sensor failing repeatedly",
			zap.String("source", c.source),
			zap.Int64("consecutive", streak),
			zap.Error(err),
		)
	}
}

// Reset re-seeds the estimator at pose. Encoders are zeroed when the source supports
// it, otherwise the current counts become the baseline. The heading offset is chosen
// so the sensor's current reading maps to pose.Heading.
func (e *Estimator) Reset(ctx context.Context, pose Pose) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.enc.(EncoderResetter); ok {
		if err := r.ResetTicks(ctx); err != nil {
			return fmt.Errorf("tracking: reset encoders: %w", err)
		}
		e.lastRaw = [3]int64{}
	} else {
		raw, err := e.readTicks(ctx)
		if err != nil {
			return fmt.Errorf("tracking: baseline encoders: %w", err)
		}
		e.lastRaw = raw
	}

	offset := pose.Heading
	if deg, err := e.heading.HeadingDegrees(ctx); err == nil && !math.IsNaN(deg) && !math.IsInf(deg, 0) {
		offset -= e.headingSign() * geom.DegToRad(deg)
	} else {
		e.log.Warn("heading unavailable at reset, assuming zero reading", zap.Error(err))
	}

	e.total = [3]float64{}
	e.arc = 0
	e.arcOrigin = pose.Heading
	e.pos = pose.Pos
	e.currentHead = pose.Heading
	e.headingOffset = offset
	e.store.Set(pose)

	e.log.Info("odometry reset",
		zap.Stringer("pos", pose.Pos),
		zap.Float64("heading_deg", pose.HeadingDegrees()),
	)
	return nil
}

func (e *Estimator) Stats() Stats {
	return Stats{
		Updates:       e.updates.Load(),
		EncoderFaults: e.encoderFaults.total.Load(),
		Jumps:         e.jumps.total.Load(),
		HeadingFaults: e.headingFaults.total.Load(),
	}
}
