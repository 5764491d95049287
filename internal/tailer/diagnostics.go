package tailer

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Diagnostics surfaces decode failures at most once per cool-down. Reports
// arriving inside the window are counted and folded into the next surfaced
// one.
type Diagnostics struct {
	sometimes  rate.Sometimes
	suppressed atomic.Int64
	emit       func(err error, suppressed int)
}

func NewDiagnostics(cooldown time.Duration, emit func(err error, suppressed int)) *Diagnostics {
	d := &Diagnostics{emit: emit}
	if cooldown > 0 {
		d.sometimes.Interval = cooldown
	} else {
		d.sometimes.Every = 1
	}
	return d
}

// Report records err and reports whether it was surfaced.
func (d *Diagnostics) Report(err error) bool {
	surfaced := false
	d.sometimes.Do(func() {
		surfaced = true
		d.emit(err, int(d.suppressed.Swap(0)))
	})
	if !surfaced {
		d.suppressed.Add(1)
	}
	return surfaced
}
