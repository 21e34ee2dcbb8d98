package routine

// Turn is the view a Program gets of its routine for the duration of one
// advance. It exposes the result side channel, the opaque context token, and
// the combinator constructors (which draw descriptors from the scheduler's
// pool). Turns are reused between advances; never retain one past Next.
type Turn struct {
	r *Routine
}

// Context returns the opaque context token the routine was started with.
// Children inherit the token of their parent.
func (t *Turn) Context() any { return t.r.ctx }

// Result returns the value produced by whichever child finished most
// recently and triggered this step. It is only meaningful for the step
// immediately following that completion.
func (t *Turn) Result() any { return t.r.sched.lastResult }

// Results returns the ordered results of a just-satisfied wait-for-all
// group, mirroring submission order. The backing slice is reused by the
// scheduler; copy it to retain it past this step.
func (t *Turn) Results() []any { return t.r.sched.lastResults }

// SetResult records the routine's own eventual result value.
func (t *Turn) SetResult(v any) { t.r.result = v }

// Seq yields an ordered sequence: units run strictly one after another, the
// next spawned only once the prior finished. The externally visible result
// is the last unit's. A mid-sequence failure aborts the remainder.
func (t *Turn) Seq(units ...Unit) Yield {
	return Yield{kind: yieldSeq, group: t.r.sched.acquireGroup(waitAll, units)}
}

// All yields a wait-for-all group: every unit is spawned as a concurrent
// child in submission order; the routine resumes once all are terminal, with
// Results holding their results in that same order. The first failing child
// in scan order propagates immediately.
func (t *Turn) All(units ...Unit) Yield {
	return Yield{kind: yieldGroup, group: t.r.sched.acquireGroup(waitAll, units)}
}

// Any yields a wait-for-first group: the routine resumes as soon as the
// first child in scan order is terminal, with Result holding its result.
// The remaining children are torn down without their callbacks firing.
func (t *Turn) Any(units ...Unit) Yield {
	return Yield{kind: yieldGroup, group: t.r.sched.acquireGroup(waitAny, units)}
}
