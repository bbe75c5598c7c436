package notify

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"booking-scheduler/internal/domain"
)

var ErrHubStopped = errors.New("notification hub is not running")

// Event is the live payload pushed to subscribers.
type Event struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Message   string                  `json:"message"`
	CreatedAt time.Time               `json:"created_at"`
}

func EventFrom(n domain.Notification) Event {
	return Event{ID: n.ID, Type: n.Type, Message: n.Message, CreatedAt: n.CreatedAt}
}

// Hub is a process-scoped registry of live subscribers keyed by user id.
//
// Contract:
//   - Publish never blocks: each subscriber has a buffered channel and a full
//     buffer drops the event for that subscriber. A slow reader loses events
//     while still connected; Dropped counts them.
//   - Delivery is at-most-once and not retried; the durable record is the source of truth.
//   - Registration, removal and delivery for one user are serialized by that user's bucket lock.
type Hub struct {
	buffer int

	mu      sync.RWMutex
	running bool
	buckets map[string]*bucket

	seq     atomic.Uint64
	dropped atomic.Uint64
}

type bucket struct {
	mu   sync.Mutex
	subs map[uint64]*Subscription
}

// Subscription is one live connection. C is closed after Close or Hub.Stop.
type Subscription struct {
	UserID string
	C      <-chan Event

	id   uint64
	ch   chan Event
	hub  *Hub
	once sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{buffer: buffer, buckets: make(map[string]*bucket)}
}

func (h *Hub) Start() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
}

// Stop closes every live subscription and rejects new ones until Start.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	for uid, b := range h.buckets {
		b.mu.Lock()
		for id, s := range b.subs {
			delete(b.subs, id)
			s.once.Do(func() { close(s.ch) })
		}
		b.mu.Unlock()
		delete(h.buckets, uid)
	}
}

func (h *Hub) Subscribe(userID string) (*Subscription, error) {
	ch := make(chan Event, h.buffer)
	s := &Subscription{UserID: userID, C: ch, id: h.seq.Add(1), ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return nil, ErrHubStopped
	}
	b, ok := h.buckets[userID]
	if !ok {
		b = &bucket{subs: make(map[uint64]*Subscription)}
		h.buckets[userID] = b
	}
	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()
	return s, nil
}

// Close unsubscribes. Safe to call more than once and after Hub.Stop.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.ch)
	})
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buckets[s.UserID]
	if !ok {
		return
	}
	b.mu.Lock()
	delete(b.subs, s.id)
	empty := len(b.subs) == 0
	b.mu.Unlock()
	if empty {
		delete(h.buckets, s.UserID)
	}
}

// Publish hands ev to every current subscriber of userID and returns how many received it.
func (h *Hub) Publish(userID string, ev Event) int {
	h.mu.RLock()
	b, ok := h.buckets[userID]
	if !ok {
		h.mu.RUnlock()
		return 0
	}
	b.mu.Lock()
	h.mu.RUnlock()
	defer b.mu.Unlock()

	n := 0
	for _, s := range b.subs {
		select {
		case s.ch <- ev:
			n++
		default:
			h.dropped.Add(1)
		}
	}
	return n
}

// Subscribers returns the live subscription count for one user.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.buckets[userID]
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// ActiveUsers returns the number of users with at least one live subscription.
func (h *Hub) ActiveUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buckets)
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
