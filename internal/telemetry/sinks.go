package telemetry

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// LogSink writes poses at debug level and faults at warn level.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("telemetry")}
}

func (l *LogSink) PublishPose(s Sample) {
	l.log.Debug("pose",
		zap.Float64("x", s.X),
		zap.Float64("y", s.Y),
		zap.Float64("heading_deg", s.HeadingDeg),
	)
}

func (l *LogSink) Warn(f Fault) {
	l.log.Warn("sensor fault",
		zap.String("source", f.Source),
		zap.Error(f.Err),
		zap.Int64("count", f.Count),
		zap.Int64("consecutive", f.Consecutive),
	)
}

// ChannelSink hands samples and faults to a reader such as the live view. Sends never
// block: when a channel is full the value is dropped and counted.
type ChannelSink struct {
	poses   chan Sample
	faults  chan Fault
	dropped atomic.Int64
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{
		poses:  make(chan Sample, buffer),
		faults: make(chan Fault, buffer),
	}
}

func (c *ChannelSink) PublishPose(s Sample) {
	select {
	case c.poses <- s:
	default:
		c.dropped.Inc()
	}
}

func (c *ChannelSink) Warn(f Fault) {
	select {
	case c.faults <- f:
	default:
		c.dropped.Inc()
	}
}

func (c *ChannelSink) Poses() <-chan Sample { return c.poses }

func (c *ChannelSink) Faults() <-chan Fault { return c.faults }

func (c *ChannelSink) Dropped() int64 { return c.dropped.Load() }
