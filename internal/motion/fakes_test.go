package motion

import (
	"context"
	"sync"
	"time"

	"github.com/san-kum/driveline/internal/drivetrain"
	"github.com/san-kum/driveline/internal/geom"
	"github.com/san-kum/driveline/internal/tracking"
)

const (
	topSpeed   = 4.0 // ft/s at full power
	trackWidth = 1.0 // ft
	period     = 20 * time.Millisecond
)

// kinematicChassis is a skid-steer robot that moves the store's pose directly. Every
// command is held for one control period before the next one arrives.
type kinematicChassis struct {
	mu          sync.Mutex
	store       *tracking.Store
	left, right float64
	stops       int
	calls       []string
	lastForward float64
	lastYaw     float64
}

func newKinematicChassis(store *tracking.Store) *kinematicChassis {
	return &kinematicChassis{store: store}
}

func (k *kinematicChassis) apply(call string, forward, yaw, left, right float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, call)
	k.lastForward, k.lastYaw = forward, yaw
	k.left, k.right = drivetrain.Clamp(left), drivetrain.Clamp(right)

	dt := period.Seconds()
	v := (k.left + k.right) / 2 / drivetrain.MaxPower * topSpeed
	omega := (k.right - k.left) / drivetrain.MaxPower * topSpeed / trackWidth

	pose := k.store.Snapshot()
	mid := pose.Heading + omega*dt/2
	k.store.Update(pose.Pos.Add(geom.Polar(v*dt, mid)), pose.Heading+omega*dt)
}

func (k *kinematicChassis) Forward(_ context.Context, speed float64) error {
	k.apply("forward", speed, 0, speed, speed)
	return nil
}

func (k *kinematicChassis) Rotate(_ context.Context, speed float64) error {
	k.apply("rotate", 0, speed, speed, -speed)
	return nil
}

func (k *kinematicChassis) Stop(context.Context) error {
	k.mu.Lock()
	k.stops++
	k.left, k.right = 0, 0
	k.mu.Unlock()
	return nil
}

func (k *kinematicChassis) Tank(_ context.Context, left, right, threshold float64) error {
	left = drivetrain.DeadBand(left, threshold)
	right = drivetrain.DeadBand(right, threshold)
	k.apply("tank", (left+right)/2, (left-right)/2, left, right)
	return nil
}

func (k *kinematicChassis) Arcade(_ context.Context, forward, yaw, threshold float64) error {
	forward = drivetrain.DeadBand(forward, threshold)
	yaw = drivetrain.DeadBand(yaw, threshold)
	k.apply("arcade", forward, yaw, forward+yaw, forward-yaw)
	return nil
}

func (k *kinematicChassis) stopCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stops
}

func (k *kinematicChassis) power() (float64, float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.left, k.right
}

func (k *kinematicChassis) last() (string, float64, float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.calls) == 0 {
		return "", 0, 0
	}
	return k.calls[len(k.calls)-1], k.lastForward, k.lastYaw
}

// mecanumRecorder captures holonomic commands without moving anything.
type mecanumRecorder struct {
	kinematicChassis
	x, y, yaw float64
}

func (m *mecanumRecorder) Strafe(ctx context.Context, speed float64) error {
	return m.Mecanum(ctx, speed, 0, 0)
}

func (m *mecanumRecorder) Mecanum(_ context.Context, x, y, yaw float64) error {
	m.x, m.y, m.yaw = x, y, yaw
	return nil
}

// stuck never settles.
type stuck struct {
	steps int
}

func (s *stuck) Name() string { return "stuck" }

func (s *stuck) Step(context.Context, tracking.Pose) (Status, error) {
	s.steps++
	return Continue, nil
}

// blockingStep parks inside its first Step until released, then asks for full speed
// ahead, as a command would if it were disabled halfway through a step.
type blockingStep struct {
	c       *Controller
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	moveErr error
}

func newBlockingStep(c *Controller) *blockingStep {
	return &blockingStep{c: c, entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingStep) Name() string { return "blocking" }

func (b *blockingStep) Step(ctx context.Context, _ tracking.Pose) (Status, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	b.moveErr = b.c.Move(ctx, geom.Vec(0, 1), 0)
	return Continue, b.moveErr
}
