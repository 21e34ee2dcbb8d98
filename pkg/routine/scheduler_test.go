package routine

import (
	"errors"
	"testing"

	"corun/internal/eventbus"
)

func TestRootLifecycleEventsPublished(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	sub := bus.Subscribe(8)
	defer sub.Close()

	s := New(WithBus(bus))

	s.Spawn(Prog(namedFunc{name: "ok", f: func(t *Turn) error {
		t.SetResult("fine")
		return nil
	}}))
	s.Spawn(
		Prog(namedFunc{name: "bad", f: func(t *Turn) error { return errors.New("x") }}),
		WithFailureHandler(func(any, *Failure) {}),
	)

	if len(sub.C) != 2 {
		t.Fatalf("events = %d, want 2", len(sub.C))
	}

	ev := <-sub.C
	if ev.Type != EventFinished {
		t.Fatalf("first event = %q, want %q", ev.Type, EventFinished)
	}
	re, ok := ev.Data.(RoutineEvent)
	if !ok || re.Program != "ok" || re.Error != "" {
		t.Fatalf("payload = %+v", ev.Data)
	}

	ev = <-sub.C
	if ev.Type != EventFailed {
		t.Fatalf("second event = %q, want %q", ev.Type, EventFailed)
	}
	re, ok = ev.Data.(RoutineEvent)
	if !ok || re.Program != "bad" || re.Error != "x" {
		t.Fatalf("payload = %+v", ev.Data)
	}
	if len(re.Trace) != 1 || re.Trace[0] != "bad" {
		t.Fatalf("trace = %v", re.Trace)
	}
}

func TestSchedulerErrorHandlerIsDefault(t *testing.T) {
	t.Parallel()

	var got *Failure
	s := New(WithErrorHandler(func(ctx any, f *Failure) { got = f }))

	s.Spawn(Prog(Func(func(t *Turn) error { return errors.New("unhandled") })))

	if got == nil || got.Message() != "unhandled" {
		t.Fatalf("scheduler handler got %v", got)
	}

	// A per-spawn handler overrides the scheduler default.
	got = nil
	var local *Failure
	s.Spawn(
		Prog(Func(func(t *Turn) error { return errors.New("local") })),
		WithFailureHandler(func(ctx any, f *Failure) { local = f }),
	)
	if got != nil {
		t.Fatal("scheduler handler must not fire when a spawn handler exists")
	}
	if local == nil || local.Message() != "local" {
		t.Fatalf("spawn handler got %v", local)
	}
}

func TestIndependentSchedulers(t *testing.T) {
	t.Parallel()
	s1 := New()
	s2 := New()

	var tg Trigger
	h1 := s1.Spawn(Wait(&tg))
	h2 := s2.Spawn(Prog(Func(func(t *Turn) error {
		t.SetResult("s2")
		return nil
	})))

	if h1.Done() || !h2.Done() {
		t.Fatal("schedulers should not share state")
	}
	if s1.lastResult != nil || s2.lastResult != "s2" {
		t.Fatalf("results crossed schedulers: %v / %v", s1.lastResult, s2.lastResult)
	}
	h1.Stop()
}
