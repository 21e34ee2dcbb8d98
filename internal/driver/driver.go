// Package driver owns the goroutine that pumps a routine.Scheduler.
//
// The scheduler itself is single-threaded; the driver serializes all access
// to it on one loop. Other goroutines reach the scheduler through Do, which
// enqueues a closure to run on the next tick. The driver also hosts the
// time-based wait sources (After, Until, NextTick) that programs suspend on.
package driver

import (
	"context"
	"errors"
	"time"

	"corun/internal/runtime/supervisor"
	logx "corun/pkg/logx"
	"corun/pkg/routine"
)

var ErrStopped = errors.New("driver: stopped")

type Config struct {
	TickInterval time.Duration
	OpQueue      int
}

type timerEntry struct {
	at  time.Time
	cap *routine.Resumer
}

type pollEntry struct {
	cond func() bool
	cap  *routine.Resumer
}

type Driver struct {
	log   logx.Logger
	sched *routine.Scheduler
	cfg   Config

	ops  chan func(*routine.Scheduler)
	done chan struct{}
	sup  *supervisor.Supervisor

	// Wait sources. Touched only on the driver goroutine.
	timers []timerEntry
	polls  []pollEntry

	// now is a test seam; production uses time.Now.
	now func() time.Time

	ticks uint64
}

func New(sched *routine.Scheduler, cfg Config, log logx.Logger) *Driver {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	if cfg.OpQueue <= 0 {
		cfg.OpQueue = 256
	}
	return &Driver{
		log:   log,
		sched: sched,
		cfg:   cfg,
		ops:   make(chan func(*routine.Scheduler), cfg.OpQueue),
		done:  make(chan struct{}),
		now:   time.Now,
	}
}

// Start launches the tick loop under its own supervisor. The loop self-heals
// on panic; routine failures never reach it (the scheduler captures them).
func (d *Driver) Start(ctx context.Context) {
	d.sup = supervisor.New(ctx, supervisor.WithLogger(d.log))
	d.sup.GoRestart("driver.tick", d.loop)
}

// Stop cancels the loop, waits for it to exit and stops every remaining
// routine. Do calls made after Stop return ErrStopped.
func (d *Driver) Stop(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	default:
	}
	close(d.done)
	var err error
	if d.sup != nil {
		err = d.sup.Stop(ctx)
	}
	d.sched.StopAll()
	return err
}

// Do schedules fn to run on the driver goroutine with exclusive access to
// the scheduler. It blocks while the op queue is full.
func (d *Driver) Do(fn func(*routine.Scheduler)) error {
	if fn == nil {
		return nil
	}
	select {
	case <-d.done:
		return ErrStopped
	default:
	}
	select {
	case d.ops <- fn:
		return nil
	case <-d.done:
		return ErrStopped
	}
}

// Spawn starts a root routine from any goroutine and waits for its handle.
func (d *Driver) Spawn(u routine.Unit, opts ...routine.SpawnOption) (routine.Handle, error) {
	reply := make(chan routine.Handle, 1)
	err := d.Do(func(s *routine.Scheduler) {
		reply <- s.Spawn(u, opts...)
	})
	if err != nil {
		return routine.Handle{}, err
	}
	select {
	case h := <-reply:
		return h, nil
	case <-d.done:
		return routine.Handle{}, ErrStopped
	}
}

// Snapshot runs on the driver goroutine so the view is consistent.
func (d *Driver) Snapshot() (routine.Snapshot, error) {
	reply := make(chan routine.Snapshot, 1)
	err := d.Do(func(s *routine.Scheduler) {
		reply <- s.Snapshot()
	})
	if err != nil {
		return routine.Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-d.done:
		return routine.Snapshot{}, ErrStopped
	}
}

func (d *Driver) loop(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	if !d.log.IsZero() {
		d.log.Info("driver started", logx.Duration("tick", d.cfg.TickInterval))
	}
	for {
		select {
		case <-ctx.Done():
			d.drainOps()
			return nil
		case <-ticker.C:
			d.tick()
		}
	}
}

// tick is one pump cycle: external ops first, then the wait sources, then
// the two-phase resume queues. Flush before Shift so a suspension deferred
// during this tick is not resumed until the next one.
func (d *Driver) tick() {
	d.ticks++
	d.drainOps()

	now := d.now()
	d.fireTimers(now)
	d.runPolls()

	d.sched.Flush()
	d.sched.Shift()
}

func (d *Driver) drainOps() {
	for {
		select {
		case fn := <-d.ops:
			fn(d.sched)
		default:
			return
		}
	}
}

// fireTimers resumes every due or stale timer. Resuming re-enters the
// scheduler and the resumed program may register new timers synchronously,
// so the batch is detached first and survivors merged back afterwards.
func (d *Driver) fireTimers(now time.Time) {
	if len(d.timers) == 0 {
		return
	}
	batch := d.timers
	d.timers = nil
	kept := 0
	for _, t := range batch {
		switch {
		case !t.cap.Alive():
			t.cap.Release()
		case !t.at.After(now):
			t.cap.Resume(now)
		default:
			batch[kept] = t
			kept++
		}
	}
	added := d.timers
	for i := kept; i < len(batch); i++ {
		batch[i] = timerEntry{}
	}
	d.timers = append(batch[:kept], added...)
}

// runPolls mirrors fireTimers: detach, scan, merge back what registered
// during the resumes.
func (d *Driver) runPolls() {
	if len(d.polls) == 0 {
		return
	}
	batch := d.polls
	d.polls = nil
	kept := 0
	for _, p := range batch {
		switch {
		case !p.cap.Alive():
			p.cap.Release()
		case p.cond():
			p.cap.Resume(nil)
		default:
			batch[kept] = p
			kept++
		}
	}
	added := d.polls
	for i := kept; i < len(batch); i++ {
		batch[i] = pollEntry{}
	}
	d.polls = append(batch[:kept], added...)
}
