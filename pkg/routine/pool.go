package routine

// pool is a plain LIFO reuse stack. Every pool belongs to exactly one
// Scheduler, so no locking is needed.
//
// Contract: objects must be reset to their inert state before put(); an
// object handed back must not be referenced again by its previous owner.
type pool[T any] struct {
	free  []*T
	alloc func() *T
}

func newPool[T any](alloc func() *T) pool[T] {
	return pool[T]{alloc: alloc}
}

func (p *pool[T]) get() *T {
	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return v
	}
	return p.alloc()
}

func (p *pool[T]) put(v *T) {
	if v == nil {
		return
	}
	p.free = append(p.free, v)
}

func (p *pool[T]) size() int { return len(p.free) }
