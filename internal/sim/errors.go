package sim

import "errors"

var (
	// ErrSensorDropout is returned by a simulated sensor read that was dropped.
	ErrSensorDropout = errors.New("sim: sensor dropout")

	// ErrUnstable indicates the plant state diverged.
	ErrUnstable = errors.New("sim: plant unstable (NaN or Inf in state)")

	// ErrUnknownMotor indicates a motor ID outside the chassis layout.
	ErrUnknownMotor = errors.New("sim: unknown motor")
)
