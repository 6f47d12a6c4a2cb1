package utils

import "time"

// DelayStrategy yields the pause before the next attempt.
type DelayStrategy interface {
	NextDelay() time.Duration
	Reset()
}

// FixedDelay always waits the same interval. The capture loop uses it between cycles.
type FixedDelay struct {
	Interval time.Duration
}

func NewFixedDelay(interval time.Duration) *FixedDelay {
	return &FixedDelay{Interval: interval}
}

func (f *FixedDelay) NextDelay() time.Duration { return f.Interval }

func (f *FixedDelay) Reset() {}

type ExponentialBackoff struct {
	initialDelay time.Duration
	currentDelay time.Duration
	maxDelay     time.Duration
}

func NewExponentialBackoff() *ExponentialBackoff {
	return NewExponentialBackoffWith(1*time.Second, 30*time.Second)
}

func NewExponentialBackoffWith(initial, max time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		initialDelay: initial,
		currentDelay: initial,
		maxDelay:     max,
	}
}

func (e *ExponentialBackoff) NextDelay() time.Duration {
	delay := e.currentDelay
	e.currentDelay *= 2
	if e.currentDelay > e.maxDelay {
		e.currentDelay = e.maxDelay
	}
	return delay
}

func (e *ExponentialBackoff) Reset() {
	e.currentDelay = e.initialDelay
}
