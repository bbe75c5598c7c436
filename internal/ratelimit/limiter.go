package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Decision struct {
	Allowed bool
	// RetryAfter is the time left until the identifier's window resets. Zero when allowed.
	RetryAfter time.Duration
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter admits at most Max requests per identifier per Window.
//
// A window opens on the first request of an identifier (or the first one after the
// previous window expired). Denied requests do not extend the window.
type Limiter struct {
	name   string
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type Option func(*Limiter)

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(name string, max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		name:    name,
		max:     max,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Name() string          { return l.name }
func (l *Limiter) Max() int              { return l.max }
func (l *Limiter) Window() time.Duration { return l.window }

func (l *Limiter) Check(id string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[id]
	if !ok || now.After(b.resetAt) {
		l.buckets[id] = &bucket{count: 1, resetAt: now.Add(l.window)}
		return Decision{Allowed: true}
	}
	if b.count >= l.max {
		return Decision{Allowed: false, RetryAfter: b.resetAt.Sub(now)}
	}
	b.count++
	return Decision{Allowed: true}
}

// Sweep drops buckets whose window has expired and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// StartJanitor sweeps expired buckets every interval until ctx is done.
func (l *Limiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Sweep()
			}
		}
	}()
}
