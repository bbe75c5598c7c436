// Package slots expands a weekly availability template into concrete,
// duration-sized time slots over a bounded horizon.
package slots

import (
	"iter"
	"time"

	"booking-scheduler/internal/domain"
)

const (
	DefaultHorizonDays = 62
	DefaultMinAdvance  = time.Hour
)

// Options zero values fall back to the defaults; a negative MinAdvance disables the lead time.
type Options struct {
	HorizonDays int
	MinAdvance  time.Duration
	Location    *time.Location
}

func (o Options) withDefaults() Options {
	if o.HorizonDays <= 0 {
		o.HorizonDays = DefaultHorizonDays
	}
	switch {
	case o.MinAdvance == 0:
		o.MinAdvance = DefaultMinAdvance
	case o.MinAdvance < 0:
		o.MinAdvance = 0
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Request is the input of one expansion.
type Request struct {
	ServiceID string
	Duration  time.Duration
	Rules     []domain.AvailabilityRule
	// Booked holds bookings already committed for the service; only status=booked entries count.
	Booked []domain.Booking
	Now    time.Time
}

type window struct {
	open, close int
}

// buildWeek indexes rules by weekday. Missing or disabled days are nil.
// The first rule seen for a weekday wins.
func buildWeek(rules []domain.AvailabilityRule) ([7]*window, error) {
	var week [7]*window
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return week, err
		}
		if week[r.DayOfWeek] != nil || !r.Enabled {
			continue
		}
		open, closeAt := r.Window()
		week[r.DayOfWeek] = &window{open: open, close: closeAt}
	}
	return week, nil
}

// Expand returns a lazy, finite sequence of candidate slots ordered by start time.
// Ranging over it more than once restarts the expansion.
//
// Days are walked from local midnight of Now for HorizonDays days. Slots start at
// the day's open time and step by Duration; a slot that would end after the close
// time is dropped, as is any slot starting before Now+MinAdvance.
func Expand(req Request, opts Options) (iter.Seq[domain.Slot], error) {
	opts = opts.withDefaults()
	if req.Duration <= 0 || req.Duration%time.Minute != 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "service duration must be a positive number of minutes")
	}
	week, err := buildWeek(req.Rules)
	if err != nil {
		return nil, err
	}

	booked := make([]domain.Booking, 0, len(req.Booked))
	for _, b := range req.Booked {
		if b.Status == domain.StatusBooked {
			booked = append(booked, b)
		}
	}

	now := req.Now.In(opts.Location)
	earliest := now.Add(opts.MinAdvance)
	step := int(req.Duration / time.Minute)
	y, m, d := now.Date()

	return func(yield func(domain.Slot) bool) {
		for day := 0; day < opts.HorizonDays; day++ {
			date := time.Date(y, m, d+day, 0, 0, 0, 0, opts.Location)
			w := week[int(date.Weekday())]
			if w == nil {
				continue
			}
			for start := w.open; start+step <= w.close; start += step {
				s := domain.AtMinute(date, start, opts.Location)
				if s.Before(earliest) {
					continue
				}
				e := s.Add(req.Duration)
				slot := domain.Slot{ServiceID: req.ServiceID, StartTime: s, EndTime: e}
				for _, b := range booked {
					if domain.Overlaps(s, e, b.StartTime, b.EndTime) {
						slot.IsBooked = true
						break
					}
				}
				if !yield(slot) {
					return
				}
			}
		}
	}, nil
}

// Check classifies start against the weekly template: dayOpen is false when the
// weekday has no enabled rule, inHours is true when open <= time-of-day(start) < close.
func Check(rules []domain.AvailabilityRule, start time.Time, loc *time.Location) (dayOpen, inHours bool, err error) {
	if loc == nil {
		loc = time.UTC
	}
	week, err := buildWeek(rules)
	if err != nil {
		return false, false, err
	}
	local := start.In(loc)
	w := week[int(local.Weekday())]
	if w == nil {
		return false, false, nil
	}
	tod := domain.MinuteOfDay(local)
	return true, tod >= w.open && tod < w.close, nil
}
