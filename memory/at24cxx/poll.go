package at24cxx

import "time"

// DefaultPollTimeout bounds the acknowledge polling after a write cycle.
const DefaultPollTimeout = 15 * time.Millisecond

// RetryPolicy decides whether another readiness probe is attempted and how
// long to wait before it. attempt counts probes already made, elapsed is
// measured from the first one.
type RetryPolicy interface {
	Next(attempt int, elapsed time.Duration) (wait time.Duration, ok bool)
}

// Deadline probes back to back until Timeout has elapsed.
type Deadline struct {
	Timeout time.Duration
}

func (p Deadline) Next(_ int, elapsed time.Duration) (time.Duration, bool) {
	return 0, elapsed < p.Timeout
}

// Backoff doubles the pause between probes starting from Initial, capped at
// Max, and gives up once Timeout has elapsed.
type Backoff struct {
	Timeout time.Duration
	Initial time.Duration
	Max     time.Duration
}

func (p Backoff) Next(attempt int, elapsed time.Duration) (time.Duration, bool) {
	if elapsed >= p.Timeout {
		return 0, false
	}
	if attempt == 0 || p.Initial <= 0 {
		return 0, true
	}
	wait := p.Initial << min(attempt-1, 30)
	if p.Max > 0 && wait > p.Max {
		wait = p.Max
	}
	if remaining := p.Timeout - elapsed; wait > remaining {
		wait = remaining
	}
	return wait, true
}
