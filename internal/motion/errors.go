package motion

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusy is returned when a command is started while another is running.
	ErrBusy = errors.New("motion: controller busy")

	// ErrDidNotSettle is returned when a command exceeds its timeout.
	ErrDidNotSettle = errors.New("motion: did not settle")

	// ErrDisabled is returned when the controller is disabled before or during a command.
	ErrDisabled = errors.New("motion: controller disabled")
)

// CommandError reports why a command stopped before settling.
type CommandError struct {
	Command string
	Elapsed time.Duration
	Err     error
	// Last is the most recent non-fatal error seen while stepping, if any.
	Last error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("motion: %s: %v after %s", e.Command, e.Err, e.Elapsed)
	if e.Last != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.Last)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
