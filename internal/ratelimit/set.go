package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"booking-scheduler/internal/domain"
)

type Purpose string

const (
	PurposeLogin   Purpose = "login"
	PurposeAPI     Purpose = "api"
	PurposeBooking Purpose = "booking"
	PurposeSlots   Purpose = "slots"
)

type Rule struct {
	Max    int
	Window time.Duration
}

type Config struct {
	Login   Rule
	API     Rule
	Booking Rule
	Slots   Rule
	// SweepEvery is the janitor interval; zero disables sweeping.
	SweepEvery time.Duration
}

func DefaultConfig() Config {
	return Config{
		Login:      Rule{Max: 5, Window: 15 * time.Minute},
		API:        Rule{Max: 60, Window: time.Minute},
		Booking:    Rule{Max: 10, Window: time.Minute},
		Slots:      Rule{Max: 20, Window: time.Minute},
		SweepEvery: 5 * time.Minute,
	}
}

// Set holds one independent Limiter per purpose.
type Set struct {
	limiters map[Purpose]*Limiter
	sweep    time.Duration
	log      zerolog.Logger
}

func NewSet(cfg Config, log zerolog.Logger, opts ...Option) *Set {
	mk := func(p Purpose, r Rule) *Limiter { return New(string(p), r.Max, r.Window, opts...) }
	return &Set{
		limiters: map[Purpose]*Limiter{
			PurposeLogin:   mk(PurposeLogin, cfg.Login),
			PurposeAPI:     mk(PurposeAPI, cfg.API),
			PurposeBooking: mk(PurposeBooking, cfg.Booking),
			PurposeSlots:   mk(PurposeSlots, cfg.Slots),
		},
		sweep: cfg.SweepEvery,
		log:   log.With().Str("component", "ratelimit").Logger(),
	}
}

func (s *Set) Limiter(p Purpose) *Limiter { return s.limiters[p] }

// Check returns nil when the request is admitted and a RateLimited error otherwise.
// Unknown purposes are always admitted.
func (s *Set) Check(p Purpose, id string) error {
	l, ok := s.limiters[p]
	if !ok {
		return nil
	}
	dec := l.Check(id)
	if dec.Allowed {
		return nil
	}
	s.log.Debug().Str("purpose", string(p)).Str("key", id).Dur("retry_after", dec.RetryAfter).Msg("rate limited")
	return domain.RateLimited(dec.RetryAfter)
}

// Start launches the janitor of every limiter; they stop with ctx.
func (s *Set) Start(ctx context.Context) {
	for _, l := range s.limiters {
		l.StartJanitor(ctx, s.sweep)
	}
}
