package routine

// Program is the re-enterable unit of work a routine advances step by step.
//
// Next advances the program by one unit. It may yield child work (see Yield)
// or return the zero Yield to complete the routine. A non-nil error fails
// the routine; panics raised inside Next are captured and treated the same
// way. The *Turn argument is only valid for the duration of the call and
// must not be retained.
type Program interface {
	Next(t *Turn) (Yield, error)
}

// Awaiter is the alternative program shape: instead of being advanced, it is
// invoked exactly once per activation with a one-shot capability and is
// expected to stash it for later, out-of-band use.
//
// The holder eventually calls Resume or Fail on the capability — exactly one
// of the two, exactly once — or Release if the owning routine is gone.
type Awaiter interface {
	Await(c *Resumer)
}

// Unit is the tagged union of the two program shapes. The core dispatches on
// the tag so the stepping logic stays in one place.
type Unit struct {
	prog  Program
	await Awaiter
}

// Prog wraps a step-sequence program as a spawnable unit.
func Prog(p Program) Unit { return Unit{prog: p} }

// Wait wraps a suspension object as a spawnable unit.
func Wait(a Awaiter) Unit { return Unit{await: a} }

func (u Unit) valid() bool { return (u.prog != nil) != (u.await != nil) }

func (u Unit) empty() bool { return u.prog == nil && u.await == nil }

type named interface{ Name() string }

// name identifies the unit's program for failure traces and logs.
func (u Unit) name() string {
	switch {
	case u.await != nil:
		if n, ok := u.await.(named); ok {
			return n.Name()
		}
		return typeName(u.await)
	case u.prog != nil:
		if n, ok := u.prog.(named); ok {
			return n.Name()
		}
		return typeName(u.prog)
	default:
		return "<none>"
	}
}

// Func returns a single-step Program that runs f once and completes.
func Func(f func(t *Turn) error) Program { return funcProgram{f: f} }

type funcProgram struct {
	f func(t *Turn) error
}

func (p funcProgram) Next(t *Turn) (Yield, error) {
	return Done(), p.f(t)
}

// Steps returns a Program that advances through fns in order, one call per
// step, and completes after the last one.
func Steps(fns ...func(t *Turn) (Yield, error)) Program {
	return &stepsProgram{fns: fns}
}

type stepsProgram struct {
	fns []func(t *Turn) (Yield, error)
	pos int
}

func (p *stepsProgram) Next(t *Turn) (Yield, error) {
	if p.pos >= len(p.fns) {
		return Done(), nil
	}
	fn := p.fns[p.pos]
	p.pos++
	return fn(t)
}
