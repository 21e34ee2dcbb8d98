package routine

type yieldKind uint8

const (
	yieldNone yieldKind = iota
	yieldChild
	yieldSeq
	yieldGroup
)

type waitMode uint8

const (
	waitAll waitMode = iota
	waitAny
)

// group describes a pending multi-child wait. Groups are pooled and
// transient: the core consumes one the instant it is yielded and returns it
// to its pool. A group has no identity and is never retained.
type group struct {
	units []Unit
	mode  waitMode
}

func (g *group) reset() {
	clear(g.units)
	g.units = g.units[:0]
}

// Yield is what one advance of a Program produces: nothing (the program is
// complete), a single child unit, an ordered sequence, or a combinator
// group. Yields are plain values; construct them with Done, Do, Await,
// Child, or the Turn combinators.
type Yield struct {
	kind  yieldKind
	unit  Unit
	group *group
}

// Done reports the program complete. Equivalent to the zero Yield.
func Done() Yield { return Yield{} }

// Child yields a single unit to run as the routine's only child.
func Child(u Unit) Yield { return Yield{kind: yieldChild, unit: u} }

// Do yields a single child program. Shorthand for Child(Prog(p)).
func Do(p Program) Yield { return Child(Prog(p)) }

// Await yields a single child that waits on a suspension object.
// Shorthand for Child(Wait(a)).
func Await(a Awaiter) Yield { return Child(Wait(a)) }
