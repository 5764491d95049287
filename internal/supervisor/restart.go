package supervisor

import "time"

const restartWindow = time.Minute

// restartBudget throttles helper restarts for one session: the first
// restart in a quiet window is immediate, each further one waits
// base*2^(n-1) up to max, and more than limit restarts inside a sliding
// minute exhaust the budget.
type restartBudget struct {
	base    time.Duration
	max     time.Duration
	limit   int
	history []time.Time
}

func newRestartBudget(base, max time.Duration, limit int) *restartBudget {
	return &restartBudget{base: base, max: max, limit: limit}
}

// next records a restart at now and returns how long to wait before it.
// ok is false once the budget is exhausted.
func (b *restartBudget) next(now time.Time) (delay time.Duration, ok bool) {
	cutoff := now.Add(-restartWindow)
	kept := b.history[:0]
	for _, t := range b.history {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.history = kept

	if len(b.history) >= b.limit {
		return 0, false
	}
	n := len(b.history)
	b.history = append(b.history, now)
	if n == 0 {
		return 0, true
	}

	delay = b.base
	for i := 1; i < n && delay < b.max; i++ {
		delay *= 2
	}
	if delay > b.max {
		delay = b.max
	}
	return delay, true
}

// recent returns the number of restarts inside the current window.
func (b *restartBudget) recent() int {
	return len(b.history)
}
