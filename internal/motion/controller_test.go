package motion

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/driveline/internal/control"
	"github.com/san-kum/driveline/internal/drivetrain"
	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/tracking"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Drive = Axis{Gains: control.Gains{P: 0.6, D: 2}, Tolerance: 0.1, IntegralTolerance: 0.5}
	cfg.Turn = Axis{Gains: control.Gains{P: 1.2, D: 4}, Tolerance: geom.DegToRad(2), IntegralTolerance: geom.DegToRad(10)}
	return cfg
}

// stepUntilSettled drives cmd by hand, one control period per step.
func stepUntilSettled(cmd Command, store *tracking.Store, mock *clock.Mock, maxSteps int, each func(tracking.Pose)) int {
	ctx := context.Background()
	for i := 0; i < maxSteps; i++ {
		status, err := cmd.Step(ctx, store.Snapshot())
		Expect(err).NotTo(HaveOccurred())
		if each != nil {
			each(store.Snapshot())
		}
		if status == Settled {
			return i
		}
		mock.Add(period)
	}
	Fail("command did not settle")
	return maxSteps
}

// runAsync starts ctl.Run and returns a channel with its result.
func runAsync(ctx context.Context, ctl *Controller, cmd Command) chan error {
	done := make(chan error, 1)
	go func() { done <- ctl.Run(ctx, cmd) }()
	return done
}

// advanceUntil moves the mock clock one period at a time until done yields.
func advanceUntil(mock *clock.Mock, done chan error) error {
	var result error
	Eventually(func() bool {
		select {
		case result = <-done:
			return true
		default:
			mock.Add(period)
			return false
		}
	}).WithTimeout(5 * time.Second).WithPolling(time.Millisecond).Should(BeTrue())
	return result
}

var _ = Describe("Controller", func() {
	var (
		mock    *clock.Mock
		store   *tracking.Store
		chassis *kinematicChassis
		ctl     *Controller
	)

	newController := func(cfg Config, start tracking.Pose) {
		mock = clock.NewMock()
		store = tracking.NewStore(start)
		chassis = newKinematicChassis(store)
		var err error
		ctl, err = New(cfg, chassis, store, mock, nil)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		newController(testConfig(), tracking.Pose{Heading: math.Pi / 2})
	})

	Describe("New", func() {
		It("rejects invalid gains with the PID configuration error", func() {
			cfg := testConfig()
			cfg.Turn.Gains = control.Gains{}
			_, err := New(cfg, chassis, store, mock, nil)
			Expect(err).To(MatchError(control.ErrInvalidGains))
		})

		It("rejects a non-positive period", func() {
			cfg := testConfig()
			cfg.Period = 0
			_, err := New(cfg, chassis, store, mock, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Move", func() {
		ctx := context.Background()

		It("drives forward along the robot's axis", func() {
			Expect(ctl.Move(ctx, geom.Vec(0, 0.5), 0)).To(Succeed())
			call, fwd, _ := chassis.last()
			Expect(call).To(Equal("forward"))
			Expect(fwd).To(BeNumerically("~", 63.5, 1e-9))
		})

		It("drives backward when the demand points behind the robot", func() {
			Expect(ctl.Move(ctx, geom.Vec(0, -0.5), 0)).To(Succeed())
			_, fwd, _ := chassis.last()
			Expect(fwd).To(BeNumerically("~", -63.5, 1e-9))
		})

		It("converts field demands into the robot frame", func() {
			store.Update(geom.Zero, 0)
			Expect(ctl.Move(ctx, geom.Vec(-0.25, 0), 0)).To(Succeed())
			_, fwd, _ := chassis.last()
			Expect(fwd).To(BeNumerically("~", -31.75, 1e-9))
		})

		It("scales an oversized demand down to full power", func() {
			Expect(ctl.Move(ctx, geom.Vec(0, 3), 0)).To(Succeed())
			_, fwd, _ := chassis.last()
			Expect(fwd).To(BeNumerically("~", drivetrain.MaxPower, 1e-9))
		})

		It("turns counter-clockwise as negative drivetrain yaw", func() {
			Expect(ctl.Move(ctx, geom.Zero, 0.5)).To(Succeed())
			call, fwd, yaw := chassis.last()
			Expect(call).To(Equal("arcade"))
			Expect(fwd).To(BeZero())
			Expect(yaw).To(BeNumerically("~", -63.5, 1e-9))
		})

		It("shares the unit budget between driving and turning", func() {
			Expect(ctl.Move(ctx, geom.Vec(0, 1), 1)).To(Succeed())
			_, fwd, yaw := chassis.last()
			Expect(fwd).To(BeNumerically("~", 63.5, 1e-9))
			Expect(yaw).To(BeNumerically("~", -63.5, 1e-9))
		})

		It("strafes on a holonomic drivetrain", func() {
			holo := &mecanumRecorder{}
			h, err := New(testConfig(), holo, store, mock, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(h.Move(ctx, geom.Vec(0.5, 0), 0)).To(Succeed())
			Expect(holo.x).To(BeNumerically("~", 63.5, 1e-9))
			Expect(holo.y).To(BeNumerically("~", 0, 1e-9))
			Expect(holo.yaw).To(BeZero())
		})
	})

	Describe("rotating", func() {
		It("takes the short way across the ±180° seam", func() {
			newController(testConfig(), tracking.Pose{Heading: geom.DegToRad(170)})
			cmd := ctl.RotateToCommand(geom.DegToRad(-170))

			minHeading := math.Inf(1)
			stepUntilSettled(cmd, store, mock, 2000, func(p tracking.Pose) {
				minHeading = math.Min(minHeading, p.Heading)
			})

			Expect(ctl.turn.Target()).To(BeNumerically("~", geom.DegToRad(190), 1e-12))
			Expect(minHeading).To(BeNumerically(">", geom.DegToRad(169)))
			final := store.Snapshot().Heading
			Expect(final).To(BeNumerically("~", geom.DegToRad(190), geom.DegToRad(2)))
		})

		It("turns clockwise with positive drivetrain yaw toward a lower heading", func() {
			cmd := ctl.RotateToCommand(0)
			status, err := cmd.Step(context.Background(), store.Snapshot())
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(Continue))

			_, _, yaw := chassis.last()
			Expect(yaw).To(BeNumerically(">", 0))
		})

		It("needs the full settle dwell before reporting settled", func() {
			cmd := ctl.RotateToCommand(math.Pi / 2)
			steps := stepUntilSettled(cmd, store, mock, 500, nil)
			Expect(steps).To(Equal(int(control.DefaultSettleDwell / period)))
		})
	})

	Describe("driving to points", func() {
		It("faces the target and then reaches it", func() {
			target := geom.Vec(3, 4)
			cmd := ctl.MoveToPointCommand(target)

			var phases []string
			stepUntilSettled(cmd, store, mock, 5000, func(tracking.Pose) {
				if n := cmd.Name(); len(phases) == 0 || phases[len(phases)-1] != n {
					phases = append(phases, n)
				}
			})

			Expect(phases).To(ContainElement("move_to_point/face"))
			Expect(phases).To(ContainElement("move_to_point/drive_to"))
			Expect(store.Snapshot().Pos.Sub(target).Magnitude()).To(BeNumerically("<=", 0.1))
		})

		It("skips the turn when already at the target", func() {
			cmd := ctl.MoveToPointCommand(geom.Vec(0.02, 0))
			Expect(cmd.Name()).To(Equal("move_to_point"))
			_, err := cmd.Step(context.Background(), store.Snapshot())
			Expect(err).NotTo(HaveOccurred())
			Expect(cmd.Name()).To(Equal("move_to_point/drive_to"))
		})

		It("reaches a far diagonal target despite residual heading error", func() {
			target := geom.Vec(10, 10)
			stepUntilSettled(ctl.MoveToPointCommand(target), store, mock, 10000, nil)
			Expect(store.Snapshot().Pos.Sub(target).Magnitude()).To(BeNumerically("<=", 0.1))
		})

		It("finishes a move to orientation at the requested heading", func() {
			target := geom.Vec(-2, 3)
			stepUntilSettled(ctl.MoveToOrientationCommand(target, 0), store, mock, 10000, nil)

			pose := store.Snapshot()
			Expect(pose.Pos.Sub(target).Magnitude()).To(BeNumerically("<=", 0.2))
			Expect(geom.WrapAngle(pose.Heading)).To(BeNumerically("~", 0, geom.DegToRad(2)))
		})
	})

	Describe("Run", func() {
		It("moves relative to the current pose", func() {
			store.Update(geom.Vec(1, 1), math.Pi/2)
			done := make(chan error, 1)
			go func() { done <- ctl.MoveRelative(context.Background(), geom.Vec(0, 2), -math.Pi/2) }()

			Expect(advanceUntil(mock, done)).To(Succeed())
			pose := store.Snapshot()
			Expect(pose.Pos.Sub(geom.Vec(1, 3)).Magnitude()).To(BeNumerically("<=", 0.2))
			Expect(pose.Heading).To(BeNumerically("~", 0, geom.DegToRad(2)))
			Expect(chassis.stopCount()).To(BeNumerically(">=", 1))
		})

		It("times out with ErrDidNotSettle and stops the drivetrain", func() {
			cfg := testConfig()
			cfg.Timeout = 500 * time.Millisecond
			newController(cfg, tracking.Pose{})

			err := advanceUntil(mock, runAsync(context.Background(), ctl, &stuck{}))
			Expect(err).To(MatchError(ErrDidNotSettle))

			var cmdErr *CommandError
			Expect(errors.As(err, &cmdErr)).To(BeTrue())
			Expect(cmdErr.Command).To(Equal("stuck"))
			Expect(cmdErr.Elapsed).To(BeNumerically(">=", cfg.Timeout))
			Expect(chassis.stopCount()).To(Equal(1))
		})

		It("stops when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cmd := &stuck{}
			done := runAsync(ctx, ctl, cmd)

			Eventually(ctl.Busy).Should(BeTrue())
			cancel()

			var err error
			Eventually(done).Should(Receive(&err))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(ctl.Busy()).To(BeFalse())
			Expect(chassis.stopCount()).To(Equal(1))
		})

		It("rejects a second command while one is running", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := runAsync(ctx, ctl, &stuck{})
			Eventually(ctl.Busy).Should(BeTrue())

			err := ctl.Run(ctx, &stuck{})
			Expect(err).To(MatchError(ErrBusy))

			cancel()
			Eventually(done).Should(Receive())
		})

		It("does not step a command whose context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			cmd := &stuck{}

			err := ctl.Run(ctx, cmd)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(cmd.steps).To(BeZero())
			call, _, _ := chassis.last()
			Expect(call).To(BeEmpty())
			Expect(chassis.stopCount()).To(Equal(1))
		})

		It("keeps the motors stopped when disabled in the middle of a step", func() {
			Expect(ctl.Move(context.Background(), geom.Vec(0, 1), 0)).To(Succeed())
			left, right := chassis.power()
			Expect(left).To(Equal(drivetrain.MaxPower))
			Expect(right).To(Equal(drivetrain.MaxPower))

			cmd := newBlockingStep(ctl)
			done := runAsync(context.Background(), ctl, cmd)
			Eventually(cmd.entered).Should(BeClosed())

			ctl.Disable(context.Background())
			Expect(ctl.Busy()).To(BeTrue())
			left, right = chassis.power()
			Expect(left).To(BeZero())
			Expect(right).To(BeZero())

			// The clock never moves: Run must return as soon as the step does.
			close(cmd.release)
			var err error
			Eventually(done).Should(Receive(&err))
			Expect(err).To(MatchError(ErrDisabled))
			Expect(cmd.moveErr).To(MatchError(ErrDisabled))

			left, right = chassis.power()
			Expect(left).To(BeZero())
			Expect(right).To(BeZero())
			Expect(ctl.Busy()).To(BeFalse())
		})

		It("returns at once when disabled while waiting for the next period", func() {
			cmd := &stuck{}
			done := runAsync(context.Background(), ctl, cmd)
			Eventually(ctl.Busy).Should(BeTrue())

			ctl.Disable(context.Background())
			var err error
			Eventually(done).Should(Receive(&err))
			Expect(err).To(MatchError(ErrDisabled))
			Expect(cmd.steps).To(BeNumerically("<=", 1))
		})

		It("aborts a running command when disabled and refuses new ones until enabled", func() {
			cmd := &stuck{}
			done := runAsync(context.Background(), ctl, cmd)
			Eventually(ctl.Busy).Should(BeTrue())

			ctl.Disable(context.Background())
			Expect(ctl.Enabled()).To(BeFalse())
			Expect(advanceUntil(mock, done)).To(MatchError(ErrDisabled))
			Expect(chassis.stopCount()).To(BeNumerically(">=", 2))

			Expect(ctl.RotateTo(context.Background(), math.Pi/2)).To(MatchError(ErrDisabled))

			ctl.Enable()
			Expect(ctl.Enabled()).To(BeTrue())
			done = make(chan error, 1)
			go func() { done <- ctl.RotateTo(context.Background(), math.Pi/2) }()
			Expect(advanceUntil(mock, done)).To(Succeed())
		})
	})
})
