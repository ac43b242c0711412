package tracking

import (
	"context"
	"errors"
	"fmt"
)

type EncoderID int

const (
	Left EncoderID = iota
	Right
	Back
)

func (id EncoderID) String() string {
	switch id {
	case Left:
		return "left"
	case Right:
		return "right"
	case Back:
		return "back"
	default:
		return fmt.Sprintf("encoder(%d)", int(id))
	}
}

// EncoderSource reads raw tick counts from the tracking wheels. Counts are monotonic
// per direction of travel and start at zero after a reset.
type EncoderSource interface {
	Ticks(ctx context.Context, id EncoderID) (int64, error)
}

// EncoderResetter is implemented by encoder sources that can zero their counts.
type EncoderResetter interface {
	ResetTicks(ctx context.Context) error
}

// HeadingSource reads the absolute heading sensor in degrees.
type HeadingSource interface {
	HeadingDegrees(ctx context.Context) (float64, error)
}

var (
	// ErrSensorFault marks every fault the estimator recovers from.
	ErrSensorFault = errors.New("tracking: sensor fault")

	// ErrImplausibleJump indicates an encoder delta too large to be real motion.
	ErrImplausibleJump = errors.New("tracking: implausible encoder jump")

	// ErrInvalidReading indicates a NaN or infinite sensor value.
	ErrInvalidReading = errors.New("tracking: invalid sensor reading")
)

// FaultError is a sensor fault with the sensor it came from. It matches both
// ErrSensorFault and the underlying cause under errors.Is.
type FaultError struct {
	Sensor string
	Err    error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("tracking: %s sensor: %v", e.Sensor, e.Err)
}

func (e *FaultError) Unwrap() []error {
	return []error{ErrSensorFault, e.Err}
}
