package routine

// Routine is one node in the cooperative execution tree. Nodes are pooled;
// external code never holds a live *Routine directly, only a
// generation-checked Handle or a Resumer bound to the node's current
// generation.
//
// Invariants:
//   - gen is unique among all simultaneously active routines; 0 means
//     inactive.
//   - a routine owns its children exclusively; a child's parent link is
//     valid while the child is active.
//   - at most one step is in progress per routine at any instant.
//   - the stop callback runs at most once, after gen is invalidated.
type Routine struct {
	sched  *Scheduler
	gen    uint64
	unit   Unit
	parent *Routine

	children []*Routine

	// Pending sequential continuation: seq[seqPos:] are the units still to
	// run after the current child finishes.
	seq    []Unit
	seqPos int

	result  any
	failure *Failure

	ctx     any
	onError ErrorHandler
	onStop  func()

	stepping bool // reentrancy guard
	waitAny  bool // waiting-on-any combinator state
	grouped  bool // array-was-yielded combinator state

	// turn is this node's reusable Program-facing view; see Turn.
	turn Turn
}

func (r *Routine) active() bool { return r.gen != 0 }

// arm configures an inert routine for a fresh run and assigns it a new
// generation. It does not step; the caller derives any handle first and then
// performs the initial stepping pass. Arming an active routine performs a
// full stop first.
func (r *Routine) arm(u Unit, ctx any, onError ErrorHandler, onStop func()) {
	if r.active() {
		r.stop()
	}
	r.gen = r.sched.nextGen()
	r.unit = u
	r.ctx = ctx
	r.onError = onError
	r.onStop = onStop
	r.result = nil
	r.failure = nil
	r.sched.active++
	r.sched.spawned++
}

// spawn acquires a child for u, attaches it, and steps it to its first
// suspension point. The child inherits the parent's context token and has no
// handlers of its own.
func (r *Routine) spawn(u Unit) {
	c := r.sched.acquireRoutine()
	c.parent = r
	r.children = append(r.children, c)
	c.arm(u, r.ctx, nil, nil)
	c.step()
}

// finish completes the routine, with f non-nil for failure. It reports a
// root's failure to the configured handler, stops the routine, and then
// cascades: a parent that is not mid-step is re-stepped synchronously, so a
// finishing leaf can complete an idle ancestor chain within the same call.
// The captured result/failure stay readable by the parent until it clears
// its children.
func (r *Routine) finish(f *Failure) {
	if !r.active() {
		return
	}
	if f != nil {
		r.failure = f
	}
	parent := r.parent
	s := r.sched

	if r.failure != nil {
		s.failed++
		h := r.onError
		if h == nil && parent == nil {
			h = s.onError
			if h == nil {
				h = s.reportFailure
			}
		}
		if h != nil {
			h(r.ctx, r.failure)
		}
		if parent == nil {
			s.publishRootEvent(EventFailed, r)
		}
	} else {
		s.finished++
		if parent == nil {
			s.lastResult = r.result
			s.publishRootEvent(EventFinished, r)
		}
	}

	r.stop()

	if parent == nil {
		s.releaseRoutine(r)
		return
	}
	if !parent.stepping {
		parent.step()
	}
}

// stop cancels the routine. Idempotent. Children are recycled wholesale
// without their own callbacks firing; only the routine stop is called on
// directly runs its callback, once, after the generation is invalidated.
// A stopped routine keeps its captured result/failure for the parent.
func (r *Routine) stop() {
	if !r.active() {
		return
	}
	r.clearChildren()
	r.seq = r.seq[:0]
	r.seqPos = 0
	r.waitAny = false
	r.grouped = false
	r.stepping = false
	r.gen = 0
	r.sched.active--
	if cb := r.onStop; cb != nil {
		r.onStop = nil
		cb()
	}
}

// clearChildren recycles every child (and its descendants) back to the pool.
// No callbacks fire and no results are collected; callers harvest what they
// need first.
func (r *Routine) clearChildren() {
	for i, c := range r.children {
		r.children[i] = nil
		c.recycle()
	}
	r.children = r.children[:0]
}

// recycle force-returns the routine and its subtree to the pool. Unlike
// stop, an active routine is wiped silently (no callback); this is the
// teardown path for children of a stopped or satisfied parent.
func (r *Routine) recycle() {
	if r.active() {
		r.sched.active--
	}
	r.clearChildren()
	r.reset()
	r.sched.pool.put(r)
}

// reset wipes the routine to its inert pool state. Only valid once the
// routine is stopped and its children are gone.
func (r *Routine) reset() {
	r.gen = 0
	r.unit = Unit{}
	r.parent = nil
	r.result = nil
	r.failure = nil
	r.ctx = nil
	r.onError = nil
	r.onStop = nil
	r.stepping = false
	r.waitAny = false
	r.grouped = false
	r.children = r.children[:0]
	clear(r.seq)
	r.seq = r.seq[:0]
	r.seqPos = 0
}
