package routine

import (
	"errors"
	"testing"
)

type namedFunc struct {
	name string
	f    func(t *Turn) error
}

func (p namedFunc) Name() string { return p.name }

func (p namedFunc) Next(t *Turn) (Yield, error) {
	return Done(), p.f(t)
}

func TestSpawnCompletesSynchronously(t *testing.T) {
	t.Parallel()
	s := New()

	h := s.Spawn(Prog(Func(func(t *Turn) error {
		t.SetResult(42)
		return nil
	})))

	if !h.Done() {
		t.Fatal("synchronous routine should be done on return from Spawn")
	}
	if s.lastResult != 42 {
		t.Fatalf("lastResult = %v, want 42", s.lastResult)
	}
	if s.active != 0 {
		t.Fatalf("active = %d, want 0", s.active)
	}
}

func TestSpawnInvalidUnit(t *testing.T) {
	t.Parallel()
	s := New()

	h := s.Spawn(Unit{})
	if !h.Done() {
		t.Fatal("spawning an empty unit must return a done handle")
	}
	if s.spawned != 0 {
		t.Fatalf("spawned = %d, want 0", s.spawned)
	}
}

func TestStopIdempotentAndCallbackOnce(t *testing.T) {
	t.Parallel()
	s := New()

	var tg Trigger
	calls := 0
	h := s.Spawn(Wait(&tg), WithStopCallback(func() { calls++ }))

	if h.Done() {
		t.Fatal("suspended routine should not be done")
	}
	h.Stop()
	h.Stop()
	h.Stop()

	if calls != 1 {
		t.Fatalf("stop callback ran %d times, want 1", calls)
	}
	if !h.Done() {
		t.Fatal("handle should be done after Stop")
	}
	if tg.Alive() {
		t.Fatal("capability must be stale after its routine stops")
	}
}

func TestStopCallbackFiresOnFinishToo(t *testing.T) {
	t.Parallel()
	s := New()

	calls := 0
	h := s.Spawn(Prog(Func(func(t *Turn) error { return nil })), WithStopCallback(func() { calls++ }))
	if !h.Done() {
		t.Fatal("routine should have finished")
	}
	if calls != 1 {
		t.Fatalf("stop callback ran %d times, want 1", calls)
	}
}

func TestSequentialOrderAndLastResult(t *testing.T) {
	t.Parallel()
	s := New()

	var order []string
	var final any
	link := func(name string) Unit {
		return Prog(namedFunc{name: name, f: func(t *Turn) error {
			order = append(order, name)
			t.SetResult(name)
			return nil
		}})
	}

	h := s.Spawn(Prog(Steps(
		func(t *Turn) (Yield, error) {
			return t.Seq(link("a"), link("b"), link("c")), nil
		},
		func(t *Turn) (Yield, error) {
			final = t.Result()
			return Done(), nil
		},
	)))

	if !h.Done() {
		t.Fatal("sequence of synchronous links should finish in one spawn")
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("order = %v, want [a b c]", order)
	}
	if final != "c" {
		t.Fatalf("sequence result = %v, want last link's", final)
	}
}

func TestProgramErrorReachesHandlerOnce(t *testing.T) {
	t.Parallel()
	s := New()

	boom := errors.New("boom")
	var got []*Failure
	h := s.Spawn(
		Prog(Func(func(t *Turn) error { return boom })),
		WithFailureHandler(func(ctx any, f *Failure) { got = append(got, f) }),
	)

	if !h.Done() {
		t.Fatal("failed routine should be done")
	}
	if len(got) != 1 {
		t.Fatalf("handler ran %d times, want 1", len(got))
	}
	if got[0].Message() != "boom" {
		t.Fatalf("Message = %q, want boom", got[0].Message())
	}
	if !errors.Is(got[0], boom) {
		t.Fatal("failure should unwrap to the original error")
	}
}

func TestProgramPanicIsCaptured(t *testing.T) {
	t.Parallel()
	s := New()

	var got *Failure
	s.Spawn(
		Prog(Func(func(t *Turn) error { panic("kaput") })),
		WithFailureHandler(func(ctx any, f *Failure) { got = f }),
	)

	if got == nil {
		t.Fatal("panic should surface as a captured failure")
	}
	if got.Message() != "program panic: kaput" {
		t.Fatalf("Message = %q", got.Message())
	}
	if s.active != 0 {
		t.Fatalf("active = %d after captured panic, want 0", s.active)
	}
}

type runawayProgram struct{}

func (runawayProgram) Next(t *Turn) (Yield, error) {
	return Do(Func(func(*Turn) error { return nil })), nil
}

func TestRunawayProgramPanics(t *testing.T) {
	t.Parallel()
	s := New()

	defer func() {
		p := recover()
		re, ok := p.(*RunawayError)
		if !ok {
			t.Fatalf("expected *RunawayError panic, got %v", p)
		}
		if re.Steps != stepLimit {
			t.Fatalf("Steps = %d, want %d", re.Steps, stepLimit)
		}
	}()
	s.Spawn(Prog(runawayProgram{}))
	t.Fatal("runaway program must escape as a panic")
}

func TestSelfStopMidStep(t *testing.T) {
	t.Parallel()
	s := New()

	var tg Trigger
	var h Handle
	h = s.Spawn(Prog(Steps(
		func(t *Turn) (Yield, error) { return Await(&tg), nil },
		func(t *Turn) (Yield, error) {
			h.Stop()
			return Done(), nil
		},
	)))

	tg.Resume(nil)

	if !h.Done() {
		t.Fatal("self-stopped routine should be done")
	}
	if s.active != 0 {
		t.Fatalf("active = %d, want 0", s.active)
	}
	// The slot must be reusable after the aborted step.
	h2 := s.Spawn(Prog(Func(func(t *Turn) error { return nil })))
	if !h2.Done() {
		t.Fatal("scheduler should keep working after a self-stop")
	}
}

func TestContextInheritance(t *testing.T) {
	t.Parallel()
	s := New()

	var seen []any
	child := Prog(Func(func(t *Turn) error {
		seen = append(seen, t.Context())
		return nil
	}))
	s.Spawn(Prog(Steps(
		func(t *Turn) (Yield, error) {
			seen = append(seen, t.Context())
			return Child(child), nil
		},
		func(t *Turn) (Yield, error) { return Done(), nil },
	)), WithContext("tok"))

	if len(seen) != 2 || seen[0] != "tok" || seen[1] != "tok" {
		t.Fatalf("context tokens = %v, want [tok tok]", seen)
	}
}

func TestStopAll(t *testing.T) {
	t.Parallel()
	s := New()

	var tgs [3]Trigger
	var hs [3]Handle
	for i := range tgs {
		hs[i] = s.Spawn(Wait(&tgs[i]))
	}
	if s.active != 3 {
		t.Fatalf("active = %d, want 3", s.active)
	}

	s.StopAll()

	for i, h := range hs {
		if !h.Done() {
			t.Fatalf("handle %d still live after StopAll", i)
		}
	}
	if s.active != 0 {
		t.Fatalf("active = %d, want 0", s.active)
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	s := New()

	var tg Trigger
	h := s.Spawn(Wait(&tg))

	snap := s.Snapshot()
	if snap.Active != 1 || snap.Roots != 1 {
		t.Fatalf("snapshot = %+v, want one active root", snap)
	}

	h.Stop()
	snap = s.Snapshot()
	if snap.Active != 0 || snap.Roots != 0 {
		t.Fatalf("snapshot after stop = %+v", snap)
	}
	if snap.PooledRoutines == 0 {
		t.Fatal("stopped root should be back in the pool")
	}
	if snap.Stopped != 1 {
		t.Fatalf("Stopped = %d, want 1", snap.Stopped)
	}
}
