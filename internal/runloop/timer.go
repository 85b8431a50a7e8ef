package runloop

import (
	"time"
)

// Timer is a one-shot timer whose callback runs as a loop task. Arm and
// Stop must be called from the loop goroutine; the generation check
// makes a late firing of a stopped or re-armed timer a no-op, so Stop
// is idempotent and never races the callback.
type Timer struct {
	loop *Loop
	d    time.Duration
	gen  uint64
	t    *time.Timer
}

// NewTimer creates an unarmed timer with a fixed duration.
func NewTimer(loop *Loop, d time.Duration) *Timer {
	return &Timer{loop: loop, d: d}
}

// Arm schedules task to run on the loop after the timer's duration,
// cancelling any previous arming.
func (t *Timer) Arm(task func()) {
	t.Stop()
	t.gen++
	gen := t.gen
	t.t = time.AfterFunc(t.d, func() {
		t.loop.Post(func() {
			if t.gen != gen {
				return
			}
			t.t = nil
			task()
		})
	})
}

// Stop disarms the timer. Safe to call whether or not it is armed.
func (t *Timer) Stop() {
	t.gen++
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}
