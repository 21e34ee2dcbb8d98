package routine

// Resumer is a one-shot capability bound to a routine's generation at
// issuance. The holder consumes it at most once, via Resume or Fail; if the
// owning routine was stopped or recycled in the meantime (Alive reports
// false), the holder must discard it with Release instead.
//
// Resumers are pooled: after any of the three calls the object belongs to
// the scheduler again and must not be touched by the previous holder.
type Resumer struct {
	sched *Scheduler
	r     *Routine
	gen   uint64
}

// Alive reports whether the bound routine is still the same logical
// instance the capability was issued for.
func (c *Resumer) Alive() bool {
	return c != nil && c.r != nil && c.gen != 0 && c.r.gen == c.gen
}

// Resume finishes the bound routine successfully; v becomes its result and
// completion cascades to the parent. Resuming a stale capability only
// returns it to the pool.
func (c *Resumer) Resume(v any) {
	if c == nil || c.sched == nil {
		return
	}
	r, gen := c.r, c.gen
	c.sched.releaseResumer(c)
	if r == nil || gen == 0 || r.gen != gen {
		return
	}
	r.result = v
	r.finish(nil)
}

// Fail finishes the bound routine with err. Failing a stale capability only
// returns it to the pool.
func (c *Resumer) Fail(err error) {
	if c == nil || c.sched == nil {
		return
	}
	r, gen := c.r, c.gen
	c.sched.releaseResumer(c)
	if r == nil || gen == 0 || r.gen != gen {
		return
	}
	if err == nil {
		r.finish(nil)
		return
	}
	r.finish(failureFrom(err, r))
}

// Release returns an unconsumed capability to the pool without touching the
// routine. Safe on stale capabilities; never revives or mutates the owner.
func (c *Resumer) Release() {
	if c == nil || c.sched == nil {
		return
	}
	c.sched.releaseResumer(c)
}

// Trigger is the generic reusable suspension object: it captures its
// capability and exposes Resume/Fail to arbitrary external code. It is the
// building block for adapting any callback- or event-based completion
// signal into the engine.
//
// A Trigger may be reused across activations; re-arming an already-armed
// trigger discards the previous capability.
type Trigger struct {
	c *Resumer
}

func (g *Trigger) Await(c *Resumer) {
	if g.c != nil {
		g.c.Release()
	}
	g.c = c
}

// Alive reports whether the trigger currently holds a live capability.
func (g *Trigger) Alive() bool { return g.c.Alive() }

// Resume completes the waiting routine with v. No-op when not armed.
func (g *Trigger) Resume(v any) {
	if c := g.c; c != nil {
		g.c = nil
		c.Resume(v)
	}
}

// Fail fails the waiting routine with err. No-op when not armed.
func (g *Trigger) Fail(err error) {
	if c := g.c; c != nil {
		g.c = nil
		c.Fail(err)
	}
}
