package main

import (
	"fmt"
	"time"

	"corun/internal/config"
	"corun/internal/driver"
	"corun/internal/recur"
	logx "corun/pkg/logx"
	"corun/pkg/routine"
)

// builtinJob maps a config job entry onto one of the built-in programs.
// Make is invoked per trigger, so every run starts with fresh program state.
func builtinJob(drv *driver.Driver, log logx.Logger, jc config.JobConfig) (recur.Job, error) {
	ticks := jc.Ticks
	if ticks <= 0 {
		ticks = 1
	}
	width := jc.Width
	if width <= 0 {
		width = 1
	}
	delay := jc.DelayOrZero()

	var mk func() routine.Unit
	switch jc.Program {
	case "pulse":
		mk = func() routine.Unit {
			return routine.Prog(&pulseProgram{drv: drv, log: log, job: jc.Name, left: ticks, delay: delay})
		}
	case "fanout":
		mk = func() routine.Unit {
			return routine.Prog(newFanout(drv, log, jc.Name, width, delay))
		}
	case "chain":
		mk = func() routine.Unit {
			return routine.Prog(newChain(drv, log, jc.Name, ticks, delay))
		}
	default:
		return recur.Job{}, fmt.Errorf("job %q: unknown program %q", jc.Name, jc.Program)
	}
	return recur.Job{Name: jc.Name, Schedule: jc.Schedule, Make: mk}, nil
}

// pulseProgram emits a debug pulse every delay, ticks times, then completes
// with the pulse count as its result.
type pulseProgram struct {
	drv *driver.Driver
	log logx.Logger

	job   string
	left  int
	fired int
	delay time.Duration
}

func (p *pulseProgram) Name() string { return "pulse:" + p.job }

func (p *pulseProgram) Next(t *routine.Turn) (routine.Yield, error) {
	if p.left == 0 {
		t.SetResult(p.fired)
		return routine.Done(), nil
	}
	p.left--
	p.fired++
	p.log.Debug("pulse", logx.String("job", p.job), logx.Int("n", p.fired))
	if p.delay > 0 {
		return routine.Await(p.drv.After(p.delay)), nil
	}
	return routine.Await(p.drv.NextTick()), nil
}

// newFanout waits for width staggered timers concurrently and completes once
// all of them fired.
func newFanout(drv *driver.Driver, log logx.Logger, job string, width int, delay time.Duration) routine.Program {
	started := time.Now()
	return routine.Steps(
		func(t *routine.Turn) (routine.Yield, error) {
			units := make([]routine.Unit, width)
			for i := range units {
				units[i] = routine.Wait(drv.After(delay * time.Duration(i+1)))
			}
			return t.All(units...), nil
		},
		func(t *routine.Turn) (routine.Yield, error) {
			n := len(t.Results())
			t.SetResult(n)
			log.Debug("fanout complete",
				logx.String("job", job),
				logx.Int("width", n),
				logx.Duration("took", time.Since(started)),
			)
			return routine.Done(), nil
		},
	)
}

// newChain runs ticks delay-then-count links strictly one after another; the
// final count is the routine's result.
func newChain(drv *driver.Driver, log logx.Logger, job string, ticks int, delay time.Duration) routine.Program {
	links := make([]routine.Unit, ticks)
	for i := range links {
		n := i + 1
		links[i] = routine.Prog(routine.Steps(
			func(t *routine.Turn) (routine.Yield, error) {
				return routine.Await(drv.After(delay)), nil
			},
			func(t *routine.Turn) (routine.Yield, error) {
				t.SetResult(n)
				return routine.Done(), nil
			},
		))
	}
	return routine.Steps(
		func(t *routine.Turn) (routine.Yield, error) {
			return t.Seq(links...), nil
		},
		func(t *routine.Turn) (routine.Yield, error) {
			t.SetResult(t.Result())
			log.Debug("chain complete", logx.String("job", job), logx.Any("links", t.Result()))
			return routine.Done(), nil
		},
	)
}
