package scheduler

import "time"

// Defaults for the shutdown drain
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultDrainTimeout = 30 * time.Second
)

// Pender reports outstanding work
type Pender interface {
	Pending() int
}

// Drain waits until p has no pending work or timeout elapses, sampling every
// pollInterval. It reports whether p was idle on return. A timeout of zero or
// less samples once and returns.
func Drain(p Pender, timeout, pollInterval time.Duration) bool {
	if p.Pending() == 0 {
		return true
	}
	if timeout <= 0 {
		return false
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline.C:
			return p.Pending() == 0
		case <-ticker.C:
			if p.Pending() == 0 {
				return true
			}
		}
	}
}

// Drain waits for the scheduler's queue to empty, see Drain
func (s *Scheduler) Drain(timeout, pollInterval time.Duration) bool {
	return Drain(s, timeout, pollInterval)
}
