package routine

import (
	"time"

	"golang.org/x/time/rate"

	"corun/internal/eventbus"
	logx "corun/pkg/logx"
)

// ErrorHandler receives a root routine's captured failure together with the
// opaque context token the routine was started with.
type ErrorHandler func(ctx any, f *Failure)

// Event types published on the bus (when one is configured) for root
// routine lifecycle transitions.
const (
	EventFinished = "routine.finished"
	EventFailed   = "routine.failed"
)

// RoutineEvent is the payload of routine.* bus events.
type RoutineEvent struct {
	Program string   `json:"program"`
	Error   string   `json:"error,omitempty"`
	Trace   []string `json:"trace,omitempty"`
}

// Scheduler owns an execution tree of pooled routines plus all state the
// engine needs: pools, the generation source, the result side channel and
// the two-phase resume queues. Independent schedulers do not interfere.
//
// A Scheduler is not safe for concurrent use. All operations, including
// everything reachable from Spawn, Flush and Shift, must run on one
// goroutine; the host driver is responsible for serializing access.
type Scheduler struct {
	log logx.Logger
	bus eventbus.Bus

	pool     pool[Routine]
	resumers pool[Resumer]
	groups   pool[group]

	// all tracks every node ever created, pooled or live. StopAll and
	// Snapshot scan it; nodes are never removed.
	all []*Routine

	gen uint64

	// Result side channel: the value (and, for wait-for-all, the ordered
	// values) produced by whichever child most recently finished. Valid only
	// for the immediately following step.
	lastResult  any
	lastResults []any

	// Two-phase resume queues. Defer registers into pending; Shift promotes
	// pending to ready; Flush consumes ready. The split keeps a suspension
	// registered and satisfied within the same tick from recursing.
	pendingQ []*Resumer
	readyQ   []*Resumer
	flushQ   []*Resumer // scratch; swapped with readyQ during Flush

	onError ErrorHandler
	failLog rate.Sometimes

	active   int
	spawned  uint64
	finished uint64
	failed   uint64
	stopped  uint64
}

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithErrorHandler replaces the default root failure handler (log and
// continue) for routines spawned without their own handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Scheduler) { s.onError = h }
}

// WithBus makes the scheduler publish routine.finished / routine.failed
// events for root routines. Publishing allocates, so leave the bus unset on
// hot paths that don't need it.
func WithBus(bus eventbus.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		failLog: rate.Sometimes{First: 20, Interval: time.Second},
	}
	s.pool = newPool(func() *Routine {
		r := &Routine{sched: s}
		r.turn.r = r
		s.all = append(s.all, r)
		return r
	})
	s.resumers = newPool(func() *Resumer { return &Resumer{} })
	s.groups = newPool(func() *group { return &group{} })
	for _, o := range opts {
		o(s)
	}
	return s
}

// Spawn starts a root routine running u and returns its weak handle. The
// routine is stepped once immediately, so the handle may already be Done on
// return. Spawning an invalid unit returns a zero (Done) handle.
func (s *Scheduler) Spawn(u Unit, opts ...SpawnOption) Handle {
	if !u.valid() {
		s.log.Warn("spawn rejected: invalid unit")
		return Handle{}
	}
	var sc spawnConfig
	for _, o := range opts {
		o(&sc)
	}
	r := s.acquireRoutine()
	r.arm(u, sc.ctx, sc.onError, sc.onStop)
	h := Handle{r: r, gen: r.gen}
	r.step()
	return h
}

type spawnConfig struct {
	ctx     any
	onError ErrorHandler
	onStop  func()
}

type SpawnOption func(*spawnConfig)

// WithContext attaches an opaque token passed through unchanged to error
// handlers and visible to programs via Turn.Context. Children inherit it.
func WithContext(v any) SpawnOption {
	return func(c *spawnConfig) { c.ctx = v }
}

// WithFailureHandler installs a per-routine handler for the root's captured
// failure, replacing the scheduler default for this routine.
func WithFailureHandler(h ErrorHandler) SpawnOption {
	return func(c *spawnConfig) { c.onError = h }
}

// WithStopCallback registers a callback fired exactly once when the routine
// transitions to inactive, whether it finished, failed or was stopped.
func WithStopCallback(f func()) SpawnOption {
	return func(c *spawnConfig) { c.onStop = f }
}

// StopAll cancels every active root routine. Descendants are recycled
// without their callbacks firing, per the Stop contract.
func (s *Scheduler) StopAll() {
	for _, r := range s.all {
		if r.active() && r.parent == nil {
			s.stopRoutine(r)
		}
	}
}

// Defer queues a capability to be resumed on a later Flush. Used by
// next-tick style waits; the capability moves to the ready set on the next
// Shift and is resumed (with a nil value) by the Flush after that.
func (s *Scheduler) Defer(c *Resumer) {
	if c != nil {
		s.pendingQ = append(s.pendingQ, c)
	}
}

// Shift promotes capabilities registered since the last Shift into the
// ready set. The host driver calls this once per tick, after Flush.
func (s *Scheduler) Shift() {
	if len(s.pendingQ) == 0 {
		return
	}
	s.readyQ = append(s.readyQ, s.pendingQ...)
	clear(s.pendingQ)
	s.pendingQ = s.pendingQ[:0]
}

// Flush resumes every capability in the ready set; stale ones are released.
// Capabilities deferred during the flush land in the pending set and are
// not touched until a later tick.
func (s *Scheduler) Flush() {
	if len(s.readyQ) == 0 {
		return
	}
	batch := s.readyQ
	s.readyQ = s.flushQ[:0]
	for i := range batch {
		c := batch[i]
		batch[i] = nil
		if c.Alive() {
			c.Resume(nil)
		} else {
			c.Release()
		}
	}
	s.flushQ = batch[:0]
}

// stopRoutine is the handle-facing cancellation path. A stopped root goes
// straight back to the pool; a stopped child stays attached to its parent as
// terminal-without-failure until the parent's next clearing pass.
func (s *Scheduler) stopRoutine(r *Routine) {
	if r == nil || !r.active() {
		return
	}
	root := r.parent == nil
	s.stopped++
	r.stop()
	if root {
		s.releaseRoutine(r)
	}
}

func (s *Scheduler) nextGen() uint64 {
	s.gen++
	return s.gen
}

func (s *Scheduler) acquireRoutine() *Routine {
	return s.pool.get()
}

func (s *Scheduler) releaseRoutine(r *Routine) {
	r.reset()
	s.pool.put(r)
}

func (s *Scheduler) acquireResumer(r *Routine) *Resumer {
	c := s.resumers.get()
	c.sched = s
	c.r = r
	c.gen = r.gen
	return c
}

func (s *Scheduler) releaseResumer(c *Resumer) {
	c.sched = nil
	c.r = nil
	c.gen = 0
	s.resumers.put(c)
}

func (s *Scheduler) acquireGroup(mode waitMode, units []Unit) *group {
	g := s.groups.get()
	g.mode = mode
	g.units = append(g.units, units...)
	return g
}

func (s *Scheduler) releaseGroup(g *group) {
	if g == nil {
		return
	}
	g.reset()
	s.groups.put(g)
}

// reportFailure is the default root failure handler: log and continue,
// throttled so a failing recurrent routine cannot flood the sink.
func (s *Scheduler) reportFailure(ctx any, f *Failure) {
	if s.log.IsZero() {
		return
	}
	s.failLog.Do(func() {
		s.log.Error("routine failed",
			logx.String("error", f.Message()),
			logx.String("trace", traceString(f)),
			logx.Any("ctx", ctx),
		)
	})
}

func (s *Scheduler) publishRootEvent(typ string, r *Routine) {
	if s.bus == nil {
		return
	}
	ev := RoutineEvent{Program: r.unit.name()}
	if f := r.failure; f != nil {
		ev.Error = f.Message()
		ev.Trace = append(ev.Trace, f.Trace()...)
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// Snapshot is a point-in-time diagnostic view of the scheduler.
type Snapshot struct {
	Active int `json:"active"`
	Roots  int `json:"roots"`

	PooledRoutines int `json:"pooled_routines"`
	PooledResumers int `json:"pooled_resumers"`
	PooledGroups   int `json:"pooled_groups"`

	PendingResumes int `json:"pending_resumes"`
	ReadyResumes   int `json:"ready_resumes"`

	Spawned  uint64 `json:"spawned"`
	Finished uint64 `json:"finished"`
	Failed   uint64 `json:"failed"`
	Stopped  uint64 `json:"stopped"`
}

func (s *Scheduler) Snapshot() Snapshot {
	roots := 0
	for _, r := range s.all {
		if r.active() && r.parent == nil {
			roots++
		}
	}
	return Snapshot{
		Active:         s.active,
		Roots:          roots,
		PooledRoutines: s.pool.size(),
		PooledResumers: s.resumers.size(),
		PooledGroups:   s.groups.size(),
		PendingResumes: len(s.pendingQ),
		ReadyResumes:   len(s.readyQ),
		Spawned:        s.spawned,
		Finished:       s.finished,
		Failed:         s.failed,
		Stopped:        s.stopped,
	}
}

func traceString(f *Failure) string {
	tr := f.Trace()
	if len(tr) == 0 {
		return ""
	}
	out := tr[0]
	for _, fr := range tr[1:] {
		out += " < " + fr
	}
	return out
}
