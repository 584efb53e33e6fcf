package utils

import "time"

// Stopwatch measures a sequence of repetition durations, e.g. one per
// reduction run. It is not safe for concurrent use; each rank owns its own.
type Stopwatch struct {
	clock     Clock
	started   time.Time
	running   bool
	durations []time.Duration
}

// StopwatchOption configures a Stopwatch.
type StopwatchOption func(*Stopwatch)

// WithClock sets a custom clock for testability.
func WithClock(clock Clock) StopwatchOption {
	return func(s *Stopwatch) {
		s.clock = clock
	}
}

// NewStopwatch creates a new Stopwatch.
func NewStopwatch(opts ...StopwatchOption) *Stopwatch {
	s := &Stopwatch{clock: NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a new measurement.
func (s *Stopwatch) Start() {
	s.started = s.clock.Now()
	s.running = true
}

// Stop ends the current measurement and records its duration.
// Calling Stop without a matching Start is a no-op.
func (s *Stopwatch) Stop() time.Duration {
	if !s.running {
		return 0
	}
	d := s.clock.Since(s.started)
	s.durations = append(s.durations, d)
	s.running = false
	return d
}

// Durations returns all recorded durations in order.
func (s *Stopwatch) Durations() []time.Duration {
	return s.durations
}

// Reset discards all recorded durations.
func (s *Stopwatch) Reset() {
	s.durations = s.durations[:0]
	s.running = false
}
