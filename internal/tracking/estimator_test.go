package tracking

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/telemetry"
)

type fakeEncoders struct {
	mu     sync.Mutex
	ticks  [3]int64
	err    error
	resets int
}

func (f *fakeEncoders) Ticks(_ context.Context, id EncoderID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.ticks[id], nil
}

func (f *fakeEncoders) add(l, r, b int64) {
	f.mu.Lock()
	f.ticks[Left] += l
	f.ticks[Right] += r
	f.ticks[Back] += b
	f.mu.Unlock()
}

func (f *fakeEncoders) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type resettableEncoders struct {
	fakeEncoders
}

func (r *resettableEncoders) ResetTicks(context.Context) error {
	r.mu.Lock()
	r.ticks = [3]int64{}
	r.resets++
	r.mu.Unlock()
	return nil
}

type fakeHeading struct {
	mu  sync.Mutex
	deg float64
	err error
}

func (f *fakeHeading) HeadingDegrees(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deg, f.err
}

func (f *fakeHeading) set(deg float64, err error) {
	f.mu.Lock()
	f.deg, f.err = deg, err
	f.mu.Unlock()
}

// unitGeometry gives one inch of travel per encoder tick.
func unitGeometry() Geometry {
	d := 360 / math.Pi
	return Geometry{
		TicksPerRev:        360,
		LeftWheelDiameter:  d,
		RightWheelDiameter: d,
		BackWheelDiameter:  d,
		Wheelbase:          10,
		BackOffset:         5,
	}
}

type harness struct {
	est     *Estimator
	enc     *fakeEncoders
	heading *fakeHeading
	store   *Store
	rec     *telemetry.Recorder
	clk     *clock.Mock
}

func newHarness(t *testing.T, start Pose) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Geometry = unitGeometry()

	h := &harness{
		enc:     &fakeEncoders{},
		heading: &fakeHeading{},
		store:   NewStore(start),
		rec:     telemetry.NewRecorder(),
		clk:     clock.NewMock(),
	}
	est, err := NewEstimator(cfg, h.enc, h.heading, h.store, h.rec, h.clk, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEstimator failed: %v", err)
	}
	h.est = est
	return h
}

func TestEstimator_ZeroDeltasKeepPose(t *testing.T) {
	g := NewWithT(t)
	start := Pose{Pos: geom.Vec(1.5, -2), Heading: math.Pi / 2}
	h := newHarness(t, start)

	for i := 0; i < 50; i++ {
		h.est.Step(context.Background())
	}

	g.Expect(h.store.Snapshot()).To(Equal(start))
	g.Expect(h.est.Stats().Updates).To(Equal(int64(50)))
}

func TestLocalDisplacement_StraightLine(t *testing.T) {
	g := NewWithT(t)
	geo := DefaultGeometry()

	for _, d := range []float64{0, 1, -3.25, 17.125} {
		got := geo.LocalDisplacement(d, d, 0.375, 0)
		g.Expect(got).To(Equal(geom.Vec(0.375, d)))
	}
}

func TestLocalDisplacement_TurnInPlace(t *testing.T) {
	g := NewWithT(t)
	geo := unitGeometry()

	dTheta := 0.3
	s := dTheta * geo.Wheelbase / 2
	got := geo.LocalDisplacement(-s, s, geo.BackOffset*dTheta, dTheta)

	g.Expect(got.X).To(BeNumerically("~", 0, 1e-12))
	g.Expect(got.Y).To(BeNumerically("~", 0, 1e-12))
}

func TestEstimator_StraightLine(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t, Pose{Heading: math.Pi / 2})

	h.enc.add(24, 24, 0)
	h.est.Step(context.Background())

	pose := h.store.Snapshot()
	g.Expect(pose.Pos.X).To(BeNumerically("~", 0, 1e-12))
	g.Expect(pose.Pos.Y).To(BeNumerically("~", 2, 1e-12))
	g.Expect(pose.Heading).To(Equal(math.Pi / 2))
}

func TestEstimator_StraightLineFacingX(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t, Pose{Heading: 0})

	h.enc.add(12, 12, 6)
	h.est.Step(context.Background())

	// Forward is +x, right is -y.
	pose := h.store.Snapshot()
	g.Expect(pose.Pos.X).To(BeNumerically("~", 1, 1e-12))
	g.Expect(pose.Pos.Y).To(BeNumerically("~", -0.5, 1e-12))
}

func TestEstimator_ArcFollowsCircle(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t, Pose{Heading: math.Pi / 2})

	// Wheelbase 10: left 15, right 25 is one radian per update around a 20" radius,
	// centred 20" to the robot's left.
	radius := 20.0
	center := geom.Vec(-radius, 0)

	for k := 1; k <= 10; k++ {
		h.enc.add(15, 25, 5)
		h.est.Step(context.Background())

		want := center.Add(geom.Polar(radius, float64(k))).Scale(1.0 / 12)
		got := h.store.Snapshot().Pos
		g.Expect(got.X).To(BeNumerically("~", want.X, 1e-9), "x after %d updates", k)
		g.Expect(got.Y).To(BeNumerically("~", want.Y, 1e-9), "y after %d updates", k)
	}
}

func TestEstimator_HeadingFromSensor(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t, Pose{Heading: math.Pi / 2})

	// Clockwise 30 degrees from facing +y.
	h.heading.set(30, nil)
	h.est.Step(context.Background())

	g.Expect(h.store.Snapshot().HeadingDegrees()).To(BeNumerically("~", 60, 1e-9))
}

func TestEstimator_EncoderReadFaultHoldsPose(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t, Pose{Heading: math.Pi / 2})
	readErr := errors.New("bus timeout")

	h.enc.add(12, 12, 0)
	h.enc.fail(readErr)
	h.est.Step(context.Background())

	g.Expect(h.store.Snapshot().Pos).To(Equal(geom.Zero))
	faults := h.rec.Faults()
	g.Expect(faults).To(HaveLen(1))
	g.Expect(faults[0].Source).To(Equal("encoder"))
	g.Expect(errors.Is(faults[0].Err, ErrSensorFault)).To(BeTrue())
	g.Expect(errors.Is(faults[0].Err, readErr)).To(BeTrue())

	// The held baseline means the motion is applied once reads recover.
	h.enc.fail(nil)
	h.est.Step(context.Background())
	g.Expect(h.store.Snapshot().Pos.Y).To(BeNumerically("~", 1, 1e-12))
}

func TestEstimator_JumpRebaselines(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t, Pose{Heading: math.Pi / 2})

	h.enc.add(100000, 100000, 0)
	h.est.Step(context.Background())

	g.Expect(h.store.Snapshot().Pos).To(Equal(geom.Zero))
	g.Expect(h.est.Stats().Jumps).To(Equal(int64(1)))
	g.Expect(errors.Is(h.rec.Faults()[0].Err, ErrImplausibleJump)).To(BeTrue())

	h.est.Step(context.Background())
	g.Expect(h.store.Snapshot().Pos).To(Equal(geom.Zero))

	h.enc.add(12, 12, 0)
	h.est.Step(context.Background())
	g.Expect(h.store.Snapshot().Pos.Y).To(BeNumerically("~", 1, 1e-12))
}

func TestEstimator_HeadingFaultHoldsHeading(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t, Pose{Heading: math.Pi / 2})

	h.heading.set(-45, nil)
	h.est.Step(context.Background())
	held := h.store.Snapshot().Heading

	h.heading.set(math.NaN(), nil)
	h.est.Step(context.Background())
	g.Expect(h.store.Snapshot().Heading).To(Equal(held))

	h.heading.set(0, errors.New("imu calibrating"))
	h.est.Step(context.Background())
	g.Expect(h.store.Snapshot().Heading).To(Equal(held))

	g.Expect(h.est.Stats().HeadingFaults).To(Equal(int64(2)))
	faults := h.rec.Faults()
	g.Expect(errors.Is(faults[0].Err, ErrInvalidReading)).To(BeTrue())
	g.Expect(faults[1].Consecutive).To(Equal(int64(2)))
}

func TestEstimator_FaultStreakLogged(t *testing.T) {
	g := NewWithT(t)
	core, logs := observer.New(zapcore.ErrorLevel)
	cfg := DefaultConfig()
	cfg.FaultStreakLimit = 3

	enc := &fakeEncoders{err: errors.New("unplugged")}
	est, err := NewEstimator(cfg, enc, &fakeHeading{}, NewStore(Pose{}), nil, clock.NewMock(), zap.New(core))
	g.Expect(err).NotTo(HaveOccurred())

	for i := 0; i < 10; i++ {
		est.Step(context.Background())
	}

	g.Expect(logs.FilterMessage("sensor failing repeatedly").Len()).To(Equal(1))
	g.Expect(est.Stats().EncoderFaults).To(Equal(int64(10)))
}

func TestEstimator_PublishIsThrottled(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t, Pose{})

	for i := 0; i < 100; i++ {
		h.est.Step(context.Background())
		h.clk.Add(10 * time.Millisecond)
	}

	g.Expect(h.rec.Samples()).To(HaveLen(13))
}

func TestEstimator_Reset(t *testing.T) {
	g := NewWithT(t)
	enc := &resettableEncoders{}
	heading := &fakeHeading{}
	store := NewStore(Pose{})
	cfg := DefaultConfig()
	cfg.Geometry = unitGeometry()
	est, err := NewEstimator(cfg, enc, heading, store, nil, clock.NewMock(), nil)
	g.Expect(err).NotTo(HaveOccurred())

	enc.add(50, 70, 3)
	heading.set(120, nil)
	est.Step(context.Background())

	target := Pose{Pos: geom.Vec(3, 4), Heading: 0}
	g.Expect(est.Reset(context.Background(), target)).To(Succeed())
	g.Expect(enc.resets).To(Equal(1))
	g.Expect(store.Snapshot()).To(Equal(target))

	// The sensor still reads 120; that now means heading 0.
	est.Step(context.Background())
	g.Expect(store.Snapshot().Heading).To(BeNumerically("~", 0, 1e-12))
	g.Expect(store.Snapshot().Pos).To(Equal(target.Pos))

	heading.set(210, nil)
	est.Step(context.Background())
	g.Expect(store.Snapshot().HeadingDegrees()).To(BeNumerically("~", -90, 1e-9))
}

func TestEstimator_ResetWithoutResetterRebaselines(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t, Pose{Heading: math.Pi / 2})

	h.enc.add(500, 500, 0)
	g.Expect(h.est.Reset(context.Background(), Pose{Heading: math.Pi / 2})).To(Succeed())

	h.est.Step(context.Background())
	g.Expect(h.store.Snapshot().Pos).To(Equal(geom.Zero))
}

func TestEstimator_Run(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t, Pose{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.est.Run(ctx) }()

	g.Eventually(func() int64 {
		h.clk.Add(10 * time.Millisecond)
		return h.est.Stats().Updates
	}).Should(BeNumerically(">=", 5))

	cancel()
	g.Eventually(done).Should(Receive(MatchError(context.Canceled)))
}

func TestNewEstimator_Validation(t *testing.T) {
	g := NewWithT(t)
	store := NewStore(Pose{})

	bad := DefaultConfig()
	bad.Geometry.Wheelbase = 0
	_, err := NewEstimator(bad, &fakeEncoders{}, &fakeHeading{}, store, nil, nil, nil)
	g.Expect(err).To(MatchError(ContainSubstring("wheelbase")))

	bad = DefaultConfig()
	bad.Period = 0
	_, err = NewEstimator(bad, &fakeEncoders{}, &fakeHeading{}, store, nil, nil, nil)
	g.Expect(err).To(HaveOccurred())

	_, err = NewEstimator(DefaultConfig(), nil, &fakeHeading{}, store, nil, nil, nil)
	g.Expect(err).To(HaveOccurred())
}
