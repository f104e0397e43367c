package auth

import "sync"

// EventKind names a session transition.
type EventKind string

const (
	InitialSession EventKind = "INITIAL_SESSION"
	SignedIn       EventKind = "SIGNED_IN"
	SignedOut      EventKind = "SIGNED_OUT"
	TokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// Event is delivered to subscribers on every session transition. Session is a
// copy, or nil when the transition left no session.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Subscription receives session transitions in publish order. Each
// subscription buffers without bound so publishers never block on a slow
// reader.
type Subscription struct {
	bus *eventBus
	id  uint64

	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	done   chan struct{}
	out    chan Event
	once   sync.Once
}

// Events returns the delivery channel. It is closed after Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Unsubscribe stops delivery and releases the subscription. Only the first
// call has an effect; it returns false on every later call.
func (s *Subscription) Unsubscribe() bool {
	released := false
	s.once.Do(func() {
		s.bus.remove(s.id)
		close(s.done)
		released = true
	})
	return released
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

type eventBus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[uint64]*Subscription)}
}

func (b *eventBus) subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		bus:    b,
		id:     b.nextID,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan Event),
	}
	b.subs[sub.id] = sub
	go sub.pump()
	return sub
}

func (b *eventBus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *eventBus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		// Each subscriber gets its own copy of the session.
		ev := ev
		if ev.Session != nil {
			cp := *ev.Session
			ev.Session = &cp
		}
		sub.push(ev)
	}
}

func (b *eventBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
