package control

import "errors"

// ErrInvalidGains indicates a PID configured with gains or tolerances that cannot
// produce a usable controller.
var ErrInvalidGains = errors.New("control: invalid PID configuration")
