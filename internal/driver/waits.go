package driver

import (
	"time"

	"corun/pkg/routine"
)

// After suspends the routine until d has elapsed on the driver clock. The
// resume value is the tick time (time.Time). Resolution is the tick interval.
func (d *Driver) After(delay time.Duration) routine.Awaiter {
	return afterWait{d: d, delay: delay}
}

// Until suspends the routine until cond reports true. cond runs on the
// driver goroutine once per tick and must not block.
func (d *Driver) Until(cond func() bool) routine.Awaiter {
	return condWait{d: d, cond: cond}
}

// NextTick suspends the routine until the next tick's flush. Two routines
// yielding NextTick in the same tick resume in registration order.
func (d *Driver) NextTick() routine.Awaiter {
	return tickWait{d: d}
}

type afterWait struct {
	d     *Driver
	delay time.Duration
}

func (w afterWait) Await(c *routine.Resumer) {
	if w.delay <= 0 {
		w.d.sched.Defer(c)
		return
	}
	w.d.timers = append(w.d.timers, timerEntry{at: w.d.now().Add(w.delay), cap: c})
}

type condWait struct {
	d    *Driver
	cond func() bool
}

func (w condWait) Await(c *routine.Resumer) {
	if w.cond == nil || w.cond() {
		w.d.sched.Defer(c)
		return
	}
	w.d.polls = append(w.d.polls, pollEntry{cond: w.cond, cap: c})
}

type tickWait struct {
	d *Driver
}

func (w tickWait) Await(c *routine.Resumer) {
	w.d.sched.Defer(c)
}
