package keyfs

import "time"

// TimeSource provides the clock used by stores to stamp LastModified on
// written objects. Swap it out in tests for deterministic timestamps.
type TimeSource interface {
	Now() time.Time
}

type TimeSourceAdvancer interface {
	TimeSource
	Advance(by time.Duration)
}

// FixedTimeSource provides a source of time that always returns the
// specified time until advanced.
func FixedTimeSource(at time.Time) TimeSourceAdvancer {
	return &fixedTimeSource{time: at}
}

func DefaultTimeSource() TimeSource {
	return utcTimeSource{}
}

type utcTimeSource struct{}

func (utcTimeSource) Now() time.Time { return time.Now().UTC() }

type fixedTimeSource struct {
	time time.Time
}

func (l *fixedTimeSource) Now() time.Time { return l.time }

func (l *fixedTimeSource) Advance(by time.Duration) {
	l.time = l.time.Add(by)
}
