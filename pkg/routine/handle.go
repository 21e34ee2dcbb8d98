package routine

// Handle is a weak, generation-checked external reference to a routine.
// Because routine nodes are pooled, a stale handle whose generation no
// longer matches is permanently invalid — never "maybe the same task". The
// zero Handle is valid to use and always Done.
type Handle struct {
	r   *Routine
	gen uint64
}

func (h Handle) valid() bool {
	return h.r != nil && h.gen != 0 && h.r.gen == h.gen
}

// Done reports whether the referenced routine is no longer the live instance
// this handle was issued for: it finished, failed, was stopped, or its slot
// was reused.
func (h Handle) Done() bool { return !h.valid() }

// Stop cancels the referenced routine if the handle is still valid.
func (h Handle) Stop() {
	if h.valid() {
		h.r.sched.stopRoutine(h.r)
	}
}
