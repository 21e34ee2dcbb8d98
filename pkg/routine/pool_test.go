package routine

import "testing"

func TestSlotReuseInvalidatesOldHandle(t *testing.T) {
	t.Parallel()
	s := New()

	var tg1 Trigger
	h1 := s.Spawn(Wait(&tg1))
	r1 := h1.r
	h1.Stop()

	var tg2 Trigger
	h2 := s.Spawn(Wait(&tg2))

	if h2.r != r1 {
		t.Fatal("pool should hand back the freed slot (LIFO)")
	}
	if h2.gen == h1.gen {
		t.Fatal("reused slot must carry a fresh generation")
	}
	if !h1.Done() {
		t.Fatal("old handle must stay invalid after slot reuse")
	}
	if h2.Done() {
		t.Fatal("new handle should be live")
	}
	h2.Stop()
}

func TestPoolLIFO(t *testing.T) {
	t.Parallel()
	type obj struct{ n int }
	p := newPool(func() *obj { return &obj{} })

	a, b := p.get(), p.get()
	a.n, b.n = 1, 2
	p.put(a)
	p.put(b)

	if got := p.get(); got.n != 2 {
		t.Fatalf("get() = %d, want most recently freed", got.n)
	}
	if got := p.get(); got.n != 1 {
		t.Fatalf("get() = %d, want 1", got.n)
	}
	if p.size() != 0 {
		t.Fatalf("size = %d, want 0", p.size())
	}
}

func TestGenerationsAreMonotonic(t *testing.T) {
	t.Parallel()
	s := New()

	var prev uint64
	for i := 0; i < 5; i++ {
		var tg Trigger
		h := s.Spawn(Wait(&tg))
		if h.gen <= prev {
			t.Fatalf("gen %d not monotonic after %d", h.gen, prev)
		}
		prev = h.gen
		h.Stop()
	}
}
