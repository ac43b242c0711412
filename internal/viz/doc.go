// Package viz is the live terminal view of a running robot.
//
// [Model] is a Bubble Tea model fed by a telemetry.ChannelSink. It draws the pose
// trail on a Braille [Canvas] scaled to the field, a heading history chart and the
// most recent sensor faults.
//
// # Key Bindings
//
//	Space - Freeze/unfreeze the display
//	C     - Clear the trail
//	T     - Cycle color themes
//	Q     - Quit
package viz
