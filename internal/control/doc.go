// Package control provides the single-axis feedback controller used by the motion layer.
//
// A [PID] is stepped once per control tick with a fresh measurement and reports when
// its error has stayed inside tolerance long enough to be considered settled:
//
//	pid, err := control.NewPID(10, control.Gains{P: 1}, 0.5, 2)
//	if err != nil {
//		return err
//	}
//	for !pid.IsSettled() {
//		out := pid.Step(read())
//		// ...
//	}
//
// Time for the settle dwell comes from a [clock.Clock] so the dwell can be driven by a
// mock clock in tests.
package control
