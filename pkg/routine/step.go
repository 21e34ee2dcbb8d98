package routine

import "fmt"

// stepLimit bounds the number of synchronous advances a single step may
// perform. A program that keeps yielding synchronously-completing work
// without ever suspending trips it; that is a programming defect, so the
// trip is fatal (RunawayError panic) rather than a captured failure.
const stepLimit = 100000

type pending uint8

const (
	// pendingReady: children satisfied (or none); the program may advance.
	pendingReady pending = iota
	// pendingWait: children unsatisfied; stay suspended.
	pendingWait
	// pendingAgain: a sequential continuation was spawned; re-check.
	pendingAgain
	// pendingGone: the routine finished or died during the check.
	pendingGone
)

// step advances the routine until it completes, fails, or must suspend.
//
// The generation captured on entry is the stepping id: after any nested
// operation (advancing the program, spawning children, finishing) a changed
// generation means the routine destroyed itself or was destroyed by an
// ancestor mid-call, and the step aborts without touching recycled state.
func (r *Routine) step() {
	if r.stepping {
		panic("routine: reentrant step")
	}
	if !r.active() {
		return
	}
	gen := r.gen

	// A suspension-shaped program is not advanced: it gets one capability
	// bound to the stepping id and resumption happens out of band.
	if aw := r.unit.await; aw != nil {
		c := r.sched.acquireResumer(r)
		if err := protect(func() error { aw.Await(c); return nil }); err != nil {
			// Await may have panicked before storing the capability; pool it
			// again while it still matches the stepping id. A holder that did
			// capture it sees a zeroed resumer and no-ops.
			if c.Alive() && c.gen == gen {
				c.Release()
			}
			if r.gen != gen {
				return
			}
			r.finish(failureFrom(err, r))
		}
		return
	}

	r.stepping = true
	for n := 0; ; n++ {
		if n >= stepLimit {
			panic(&RunawayError{Program: r.unit.name(), Steps: stepLimit})
		}

		switch r.checkChildren(gen) {
		case pendingWait:
			r.stepping = false
			return
		case pendingAgain:
			continue
		case pendingGone:
			return
		}

		y, err := r.advance()
		if r.gen != gen {
			return
		}
		if err != nil {
			r.finish(failureFrom(err, r))
			return
		}
		if y.kind == yieldNone {
			r.finish(nil)
			return
		}
		if err := r.adopt(gen, y); err != nil {
			if r.gen != gen {
				return
			}
			r.finish(failureFrom(err, r))
			return
		}
		if r.gen != gen {
			return
		}
	}
}

// checkChildren decides whether the pending children satisfy the active
// combinator mode. On satisfaction it harvests results into the scheduler's
// side channel and discards the children; on a terminal failed child it
// adopts the failure verbatim and finishes the routine.
func (r *Routine) checkChildren(gen uint64) pending {
	if len(r.children) == 0 {
		return pendingReady
	}

	if r.waitAny {
		for _, c := range r.children {
			if c.active() {
				continue
			}
			if f := c.failure; f != nil {
				r.finish(f)
				return pendingGone
			}
			r.sched.lastResult = c.result
			r.clearChildren()
			r.waitAny = false
			return pendingReady
		}
		return pendingWait
	}

	if r.grouped {
		done := 0
		for _, c := range r.children {
			if c.active() {
				continue
			}
			if f := c.failure; f != nil {
				// Propagate without waiting for the rest. Siblings stay
				// attached until stop's clearing pass; they are not given a
				// chance to finish but are not force-stopped here either.
				r.finish(f)
				return pendingGone
			}
			done++
		}
		if done < len(r.children) {
			return pendingWait
		}
		rs := r.sched.lastResults[:0]
		for _, c := range r.children {
			rs = append(rs, c.result)
		}
		r.sched.lastResults = rs
		r.sched.lastResult = rs[len(rs)-1]
		r.clearChildren()
		r.grouped = false
		return pendingReady
	}

	// Single child, possibly with queued sequential continuations.
	c := r.children[0]
	if c.active() {
		return pendingWait
	}
	if f := c.failure; f != nil {
		r.finish(f)
		return pendingGone
	}
	r.sched.lastResult = c.result
	r.clearChildren()
	if r.seqPos < len(r.seq) {
		next := r.seq[r.seqPos]
		r.seq[r.seqPos] = Unit{}
		r.seqPos++
		r.spawn(next) // may complete synchronously; caller re-checks
		if r.gen != gen {
			return pendingGone
		}
		return pendingAgain
	}
	r.seq = r.seq[:0]
	r.seqPos = 0
	return pendingReady
}

// advance runs one unit of the program. Panics inside Next are captured as
// program failures; the fatal runaway signal is re-raised untouched.
func (r *Routine) advance() (y Yield, err error) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if _, fatal := p.(*RunawayError); fatal {
			panic(p)
		}
		if e, ok := p.(error); ok {
			err = e
			return
		}
		err = fmt.Errorf("program panic: %v", p)
	}()

	return r.unit.prog.Next(&r.turn)
}

// adopt classifies a yielded value and spawns children accordingly. The
// group descriptor, if any, is returned to its pool before adopt returns.
func (r *Routine) adopt(gen uint64, y Yield) error {
	switch y.kind {
	case yieldChild:
		if !y.unit.valid() {
			return ErrInvalidYield
		}
		r.spawn(y.unit)
		return nil

	case yieldSeq:
		g := y.group
		defer r.sched.releaseGroup(g)
		if g == nil || len(g.units) == 0 {
			return ErrEmptyGroup
		}
		for _, u := range g.units {
			if !u.valid() {
				return ErrInvalidYield
			}
		}
		r.seq = append(r.seq[:0], g.units[1:]...)
		r.seqPos = 0
		r.spawn(g.units[0])
		return nil

	case yieldGroup:
		g := y.group
		defer r.sched.releaseGroup(g)
		if g == nil || len(g.units) == 0 {
			return ErrEmptyGroup
		}
		for _, u := range g.units {
			if !u.valid() {
				return ErrInvalidYield
			}
		}
		if g.mode == waitAny {
			r.waitAny = true
		} else {
			r.grouped = true
		}
		// Children are spawned synchronously in submission order; their
		// satisfaction is always scanned in that same order.
		for _, u := range g.units {
			r.spawn(u)
			if r.gen != gen {
				return nil
			}
		}
		return nil

	default:
		return ErrInvalidYield
	}
}

func protect(fn func() error) (err error) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if _, fatal := p.(*RunawayError); fatal {
			panic(p)
		}
		if e, ok := p.(error); ok {
			err = e
			return
		}
		err = fmt.Errorf("program panic: %v", p)
	}()
	return fn()
}
