package domain

import (
	"regexp"
	"strconv"
	"time"
)

var clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseClock parses an "HH:MM" time of day into minutes after midnight.
// Postgres TIME renderings such as "09:00:00" are accepted too.
func ParseClock(s string) (int, error) {
	if len(s) > 5 && s[5] == ':' {
		s = s[:5]
	}
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, Errorf(KindInvalidInput, "invalid time %q, use HH:MM", s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return h*60 + mm, nil
}

// MinuteOfDay returns t's minutes after local midnight in t's location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// AtMinute returns the instant on t's calendar day (in loc) at the given minute of day.
func AtMinute(day time.Time, minute int, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, minute/60, minute%60, 0, 0, loc)
}

var DayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Validate checks a single rule in isolation.
func (r AvailabilityRule) Validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return Errorf(KindInvalidInput, "invalid day of week %d", r.DayOfWeek)
	}
	open, err := ParseClock(r.OpenTime)
	if err != nil {
		return err
	}
	closeAt, err := ParseClock(r.CloseTime)
	if err != nil {
		return err
	}
	if r.Enabled && open >= closeAt {
		return Errorf(KindInvalidInput, "%s: open time must be before close time", DayNames[r.DayOfWeek])
	}
	return nil
}

// Window returns the rule's open and close minutes. The rule must be valid.
func (r AvailabilityRule) Window() (open, closeAt int) {
	open, _ = ParseClock(r.OpenTime)
	closeAt, _ = ParseClock(r.CloseTime)
	return open, closeAt
}

// DefaultWeek is the schedule a business starts with: Monday to Friday 09:00-17:00.
func DefaultWeek(businessID string) []AvailabilityRule {
	week := make([]AvailabilityRule, 7)
	for d := 0; d < 7; d++ {
		week[d] = AvailabilityRule{
			BusinessID: businessID,
			DayOfWeek:  d,
			Enabled:    d >= 1 && d <= 5,
			OpenTime:   "09:00",
			CloseTime:  "17:00",
		}
	}
	return week
}
