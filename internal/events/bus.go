package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vendorsec-backend/internal/shared/metrics"
)

// DefaultBufferSize is the per-subscriber queue length used when none is configured.
const DefaultBufferSize = 64

// Publisher is the write side of the bus used by producers.
type Publisher interface {
	Publish(sessionID string, ns Namespace, ev Event)
}

// Forwarder carries locally published events to other instances.
type Forwarder interface {
	Forward(sessionID string, ns Namespace, ev Event)
}

type topicKey struct {
	sessionID string
	ns        Namespace
}

type topic struct {
	mu   sync.Mutex
	subs map[uint64]*Subscription
}

// Bus fans events out to the subscribers of a (session, namespace) topic.
// Publishing never blocks: each subscriber owns a bounded queue and the
// oldest queued event is dropped when a slow consumer falls behind.
type Bus struct {
	mu         sync.RWMutex
	topics     map[topicKey]*topic
	nextID     atomic.Uint64
	bufferSize int
	forwarder  Forwarder
}

// NewBus creates a bus whose subscribers each buffer up to bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		topics:     make(map[topicKey]*topic),
		bufferSize: bufferSize,
	}
}

// SetForwarder installs a cross-instance relay. Must be called before use.
func (b *Bus) SetForwarder(f Forwarder) {
	b.forwarder = f
}

// Publish delivers ev to every current subscriber of the session's namespace
// and hands it to the forwarder, if any.
func (b *Bus) Publish(sessionID string, ns Namespace, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	metrics.IncEventPublished(string(ns))
	b.deliver(sessionID, ns, ev)
	if b.forwarder != nil {
		b.forwarder.Forward(sessionID, ns, ev)
	}
}

// DeliverRemote delivers an event received from another instance to local
// subscribers only.
func (b *Bus) DeliverRemote(sessionID string, ns Namespace, ev Event) {
	b.deliver(sessionID, ns, ev)
}

func (b *Bus) deliver(sessionID string, ns Namespace, ev Event) {
	b.mu.RLock()
	t := b.topics[topicKey{sessionID: sessionID, ns: ns}]
	b.mu.RUnlock()
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sub := range t.subs {
		if sub.offer(ev) {
			metrics.IncEventDropped(string(ns))
		}
	}
}

// Subscribe registers a subscriber that receives events published from now on.
func (b *Bus) Subscribe(sessionID string, ns Namespace) *Subscription {
	sub := &Subscription{
		bus: b,
		key: topicKey{sessionID: sessionID, ns: ns},
		id:  b.nextID.Add(1),
		ch:  make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	t, ok := b.topics[sub.key]
	if !ok {
		t = &topic{subs: make(map[uint64]*Subscription)}
		b.topics[sub.key] = t
	}
	t.mu.Lock()
	t.subs[sub.id] = sub
	t.mu.Unlock()
	b.mu.Unlock()

	metrics.AddSubscribers(string(ns), 1)
	return sub
}

// SubscriberCount reports how many live subscribers a topic has.
func (b *Bus) SubscriberCount(sessionID string, ns Namespace) int {
	b.mu.RLock()
	t := b.topics[topicKey{sessionID: sessionID, ns: ns}]
	b.mu.RUnlock()
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[sub.key]
	if !ok {
		return
	}
	t.mu.Lock()
	_, present := t.subs[sub.id]
	delete(t.subs, sub.id)
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty {
		delete(b.topics, sub.key)
	}
	if present {
		metrics.AddSubscribers(string(sub.key.ns), -1)
	}
}

// Subscription is one consumer's view of a topic.
type Subscription struct {
	bus *Bus
	key topicKey
	id  uint64
	ch  chan Event

	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// Events returns the channel of delivered events. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. Calling it more than once is harmless.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// offer enqueues ev, evicting the oldest queued events until it fits.
// It reports whether anything was evicted.
func (s *Subscription) offer(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	evicted := false
	for {
		select {
		case s.ch <- ev:
			return evicted
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			evicted = true
		default:
		}
	}
}
