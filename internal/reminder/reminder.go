// Package reminder periodically tells customers about their upcoming bookings.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"booking-scheduler/internal/domain"
)

const (
	DefaultSchedule = "@every 15m"
	DefaultInterval = 15 * time.Minute
)

var DefaultLeads = []time.Duration{24 * time.Hour, time.Hour}

type Store interface {
	ListUpcoming(ctx context.Context, from, to time.Time) ([]domain.BookingDetail, error)
}

type Notifier interface {
	Emit(ctx context.Context, userID string, typ domain.NotificationType, message string)
}

type Config struct {
	// Schedule is a cron spec; "@every <d>" also sets Interval.
	Schedule string
	// Interval is the spacing of runs; a booking gets the reminder for lead L in the
	// run where its start falls in (now+L-Interval, now+L].
	Interval time.Duration
	Leads    []time.Duration
	// RatePerSec paces notification emission.
	RatePerSec float64
	Location   *time.Location
	Now        func() time.Time
	// RunOnStart triggers one pass right after Start.
	RunOnStart bool
}

type Job struct {
	cfg      Config
	store    Store
	notifier Notifier
	limiter  *rate.Limiter
	log      zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.Mutex
}

func New(st Store, n Notifier, log zerolog.Logger, cfg Config) (*Job, error) {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("reminder schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = intervalOf(cfg.Schedule)
	}
	if len(cfg.Leads) == 0 {
		cfg.Leads = DefaultLeads
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Job{
		cfg:      cfg,
		store:    st,
		notifier: n,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		log:      log.With().Str("component", "reminder").Logger(),
	}, nil
}

func intervalOf(schedule string) time.Duration {
	if rest, ok := strings.CutPrefix(schedule, "@every "); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(rest)); err == nil && d > 0 {
			return d
		}
	}
	return DefaultInterval
}

func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return errors.New("reminder job already running")
	}
	j.ctx, j.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(j.cfg.Location))
	if _, err := c.AddFunc(j.cfg.Schedule, j.tick); err != nil {
		j.cancel()
		return err
	}
	j.cron = c
	c.Start()
	if j.cfg.RunOnStart {
		go j.tick()
	}
	j.log.Info().Str("schedule", j.cfg.Schedule).Dur("interval", j.cfg.Interval).Msg("reminder job started")
	return nil
}

// Stop halts scheduling and waits for an in-flight run or ctx, whichever comes first.
func (j *Job) Stop(ctx context.Context) {
	j.mu.Lock()
	c, cancel := j.cron, j.cancel
	j.cron, j.cancel = nil, nil
	j.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	j.log.Info().Msg("reminder job stopped")
}

func (j *Job) tick() {
	j.mu.Lock()
	ctx := j.ctx
	j.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	// Overlapping runs would double-send.
	if !j.running.TryLock() {
		j.log.Warn().Msg("previous reminder run still in progress, skipping")
		return
	}
	defer j.running.Unlock()
	if _, err := j.RunOnce(ctx); err != nil {
		j.log.Error().Err(err).Msg("reminder run failed")
	}
}

// RunOnce sends the reminders due at the current instant and returns how many were sent.
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	now := j.cfg.Now()
	sent := 0
	for _, lead := range j.cfg.Leads {
		from, to := now.Add(lead-j.cfg.Interval), now.Add(lead)
		// ListUpcoming is half-open; widen by a second and trim below.
		due, err := j.store.ListUpcoming(ctx, from, to.Add(time.Second))
		if err != nil {
			return sent, domain.Storage("list upcoming bookings", err)
		}
		for _, d := range due {
			if !d.StartTime.After(from) || d.StartTime.After(to) {
				continue
			}
			if err := j.limiter.Wait(ctx); err != nil {
				return sent, err
			}
			j.notifier.Emit(ctx, d.UserID, domain.NotifReminder, j.message(d, lead))
			sent++
		}
	}
	j.log.Debug().Int("sent", sent).Msg("reminder run finished")
	return sent, nil
}

func (j *Job) message(d domain.BookingDetail, lead time.Duration) string {
	switch {
	case lead >= 24*time.Hour:
		at := d.StartTime.In(j.cfg.Location).Format("15:04")
		if lead == 24*time.Hour {
			return fmt.Sprintf("Reminder: Your appointment for %s at %s is tomorrow at %s", d.ServiceName, d.BusinessName, at)
		}
		return fmt.Sprintf("Reminder: Your appointment for %s at %s is on %s", d.ServiceName, d.BusinessName,
			d.StartTime.In(j.cfg.Location).Format("Mon Jan 2 15:04"))
	case lead == time.Hour:
		return fmt.Sprintf("Reminder: Your appointment for %s at %s starts in 1 hour!", d.ServiceName, d.BusinessName)
	default:
		return fmt.Sprintf("Reminder: Your appointment for %s at %s starts in %s", d.ServiceName, d.BusinessName, lead)
	}
}
