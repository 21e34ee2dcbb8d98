// Package eventbus decouples the scheduler from its observers (currently the
// failure journal). Publishing is always non-blocking: a subscriber that
// cannot keep up loses events instead of stalling the driver tick.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	// Publish stamps the event (if unstamped) and fans it out. Never blocks.
	Publish(e Event)

	// Subscribe registers a buffered subscription. With types given, only
	// matching events are delivered; otherwise everything is.
	Subscribe(buffer int, types ...string) *Subscription

	// Dropped counts events lost to full subscriber buffers, for diagnostics.
	Dropped() uint64
}

// Subscription is a handle on one subscriber. Read events from C; Close
// detaches and closes C. Closing twice is fine.
type Subscription struct {
	C <-chan Event

	b    *bus
	id   uint64
	once sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		if sub, ok := s.b.subs[s.id]; ok {
			delete(s.b.subs, s.id)
			// Sends only happen under the read lock, so closing here cannot
			// race a delivery.
			close(sub.ch)
		}
	})
}

func New() Bus {
	return &bus{subs: make(map[uint64]*subscriber)}
}

type bus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	next uint64

	dropped atomic.Uint64
}

type subscriber struct {
	ch    chan Event
	types map[string]struct{} // nil matches every type
}

func (s *subscriber) wants(typ string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[typ]
	return ok
}

func (b *bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *bus) Subscribe(buffer int, types ...string) *Subscription {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = s
	b.mu.Unlock()

	return &Subscription{C: s.ch, b: b, id: id}
}

func (b *bus) Dropped() uint64 { return b.dropped.Load() }
