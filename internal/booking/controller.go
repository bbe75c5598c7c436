// Package booking is the admission authority: it decides whether a booking may
// be committed and owns the cancellation rules.
package booking

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"booking-scheduler/internal/domain"
	"booking-scheduler/internal/slots"
	"booking-scheduler/internal/store"
)

const (
	DefaultMinAdvance = time.Hour
	DefaultMaxHorizon = 30 * 24 * time.Hour
)

// Catalog is the read side of businesses, services and weekly schedules.
type Catalog interface {
	GetService(ctx context.Context, id string) (domain.Service, error)
	GetBusiness(ctx context.Context, id string) (domain.Business, error)
	ListAvailability(ctx context.Context, businessID string) ([]domain.AvailabilityRule, error)
}

// Store is everything admission reads and writes.
type Store interface {
	Catalog
	store.Ledger
}

type Notifier interface {
	Emit(ctx context.Context, userID string, typ domain.NotificationType, message string)
}

// Observer hears about committed changes. Calls happen after the ledger write
// with a context that outlives the request; implementations must not block long.
type Observer interface {
	BookingCreated(ctx context.Context, d domain.BookingDetail)
	BookingCancelled(ctx context.Context, d domain.BookingDetail, actorID, reason string)
}

// Options zero values fall back to defaults. A negative MinAdvance disables the lead time.
type Options struct {
	MinAdvance      time.Duration
	MaxHorizon      time.Duration
	SlotHorizonDays int
	Location        *time.Location
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	switch {
	case o.MinAdvance == 0:
		o.MinAdvance = DefaultMinAdvance
	case o.MinAdvance < 0:
		o.MinAdvance = 0
	}
	if o.MaxHorizon <= 0 {
		o.MaxHorizon = DefaultMaxHorizon
	}
	if o.SlotHorizonDays <= 0 {
		o.SlotHorizonDays = slots.DefaultHorizonDays
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Controller struct {
	store     Store
	notifier  Notifier
	observers []Observer
	opts      Options
	log       zerolog.Logger
	locks     keyedMutex
}

func NewController(st Store, notifier Notifier, log zerolog.Logger, opts Options) *Controller {
	return &Controller{
		store:    st,
		notifier: notifier,
		opts:     opts.withDefaults(),
		log:      log.With().Str("component", "booking").Logger(),
	}
}

// Observe registers o for every later commit. Not safe to call concurrently with bookings.
func (c *Controller) Observe(o Observer) {
	if o != nil {
		c.observers = append(c.observers, o)
	}
}

func (c *Controller) Location() *time.Location { return c.opts.Location }

// activeService loads a service and its business, treating inactive ones as missing.
func (c *Controller) activeService(ctx context.Context, serviceID string) (domain.Service, domain.Business, error) {
	svc, err := c.store.GetService(ctx, serviceID)
	if err != nil {
		return svc, domain.Business{}, domain.Storage("get service", err)
	}
	if !svc.IsActive {
		return svc, domain.Business{}, domain.Errorf(domain.KindNotFound, "service not found")
	}
	biz, err := c.store.GetBusiness(ctx, svc.BusinessID)
	if err != nil {
		return svc, biz, domain.Storage("get business", err)
	}
	if !biz.IsActive {
		return svc, biz, domain.Errorf(domain.KindNotFound, "business not found")
	}
	return svc, biz, nil
}

// RequestBooking admits or rejects one booking. Checks run in a fixed order and
// the first failure is returned. The overlap check and the insert run under a
// per-service lock; the store rejects overlaps on its own as well.
func (c *Controller) RequestBooking(ctx context.Context, serviceID, userID string, start time.Time) (domain.Booking, error) {
	if userID == "" {
		return domain.Booking{}, domain.ErrUnauthenticated
	}
	if serviceID == "" || start.IsZero() {
		return domain.Booking{}, domain.Errorf(domain.KindInvalidInput, "serviceId and startTime are required")
	}

	svc, biz, err := c.activeService(ctx, serviceID)
	if err != nil {
		return domain.Booking{}, err
	}
	if biz.OwnerID == userID {
		return domain.Booking{}, domain.Errorf(domain.KindForbidden, "cannot book your own service")
	}

	now := c.opts.Now()
	switch {
	case !start.After(now):
		return domain.Booking{}, domain.Errorf(domain.KindOutOfWindow, "start time must be in the future")
	case start.Before(now.Add(c.opts.MinAdvance)):
		return domain.Booking{}, domain.Errorf(domain.KindOutOfWindow, "bookings must be made at least %s in advance", humanDuration(c.opts.MinAdvance))
	case start.After(now.Add(c.opts.MaxHorizon)):
		return domain.Booking{}, domain.Errorf(domain.KindOutOfWindow, "bookings can be made at most %s in advance", humanDuration(c.opts.MaxHorizon))
	}

	dur := svc.Duration()
	if dur <= 0 {
		return domain.Booking{}, domain.Errorf(domain.KindInvalidInput, "service duration must be positive")
	}

	rules, err := c.store.ListAvailability(ctx, biz.ID)
	if err != nil {
		return domain.Booking{}, domain.Storage("list availability", err)
	}
	dayOpen, inHours, err := slots.Check(rules, start, c.opts.Location)
	if err != nil {
		return domain.Booking{}, err
	}
	if !dayOpen {
		day := domain.DayNames[start.In(c.opts.Location).Weekday()]
		return domain.Booking{}, domain.Errorf(domain.KindSlotUnavailable, "business is closed on %s", day)
	}
	if !inHours {
		return domain.Booking{}, domain.Errorf(domain.KindOutOfWindow, "requested time is outside business hours")
	}

	b := domain.Booking{
		ServiceID: svc.ID,
		UserID:    userID,
		StartTime: start.UTC(),
		EndTime:   start.Add(dur).UTC(),
		Status:    domain.StatusBooked,
	}
	if err := c.commit(ctx, &b); err != nil {
		return domain.Booking{}, err
	}

	d := detail(b, svc, biz)
	c.log.Info().Str("booking_id", b.ID).Str("service_id", svc.ID).Str("user_id", userID).
		Time("start", b.StartTime).Msg("booking created")

	// The booking is committed; its notifications must not depend on the caller staying connected.
	detached := context.WithoutCancel(ctx)
	when := c.formatTime(b.StartTime)
	c.notifier.Emit(detached, biz.OwnerID, domain.NotifBookingCreated,
		fmt.Sprintf("New booking for %s on %s", svc.Name, when))
	c.notifier.Emit(detached, userID, domain.NotifBookingCreated,
		fmt.Sprintf("Your booking for %s at %s on %s is confirmed", svc.Name, biz.Name, when))
	c.fanOut(detached, func(ctx context.Context, o Observer) { o.BookingCreated(ctx, d) })
	return b, nil
}

// commit is the critical section: overlap and duplicate checks, then insert.
func (c *Controller) commit(ctx context.Context, b *domain.Booking) error {
	unlock := c.locks.Lock(b.ServiceID)
	defer unlock()

	overlapping, err := c.store.FindOverlapping(ctx, b.ServiceID, b.StartTime, b.EndTime)
	if err != nil {
		return domain.Storage("find overlapping", err)
	}
	for _, o := range overlapping {
		if o.UserID == b.UserID && o.StartTime.Equal(b.StartTime) {
			return domain.Errorf(domain.KindDuplicateBooking, "you already have a booking at this time")
		}
	}
	if len(overlapping) > 0 {
		return domain.Errorf(domain.KindSlotUnavailable, "this time slot is no longer available")
	}
	return domain.Storage("insert booking", c.store.InsertBooking(ctx, b))
}

// CancelBooking flips a booked booking to cancelled and tells the other party.
// Only the customer and the business owner may cancel.
func (c *Controller) CancelBooking(ctx context.Context, bookingID, actorID, reason string) (domain.BookingDetail, error) {
	if actorID == "" {
		return domain.BookingDetail{}, domain.ErrUnauthenticated
	}
	d, err := c.lookup(ctx, bookingID)
	if err != nil {
		return d, err
	}
	byOwner := actorID == d.OwnerID
	if !byOwner && actorID != d.UserID {
		return d, domain.Errorf(domain.KindForbidden, "not allowed to cancel this booking")
	}
	if d.Status != domain.StatusBooked {
		return d, domain.Errorf(domain.KindInvalidInput, "booking is not booked")
	}
	// The conditional update decides races between concurrent cancels.
	if err := c.store.UpdateBookingStatus(ctx, d.ID, domain.StatusBooked, domain.StatusCancelled); err != nil {
		return d, domain.Storage("cancel booking", err)
	}
	d.Status = domain.StatusCancelled
	reason = strings.TrimSpace(reason)

	c.log.Info().Str("booking_id", d.ID).Str("actor_id", actorID).Bool("by_owner", byOwner).Msg("booking cancelled")

	when := c.formatTime(d.StartTime)
	var recipient, msg string
	if byOwner {
		recipient = d.UserID
		msg = fmt.Sprintf("Your booking for %s on %s was cancelled by %s", d.ServiceName, when, d.BusinessName)
	} else {
		recipient = d.OwnerID
		msg = fmt.Sprintf("Booking for %s on %s was cancelled by the customer", d.ServiceName, when)
	}
	if reason != "" {
		msg += ". Reason: " + reason
	}
	detached := context.WithoutCancel(ctx)
	c.notifier.Emit(detached, recipient, domain.NotifCancelled, msg)
	c.fanOut(detached, func(ctx context.Context, o Observer) { o.BookingCancelled(ctx, d, actorID, reason) })
	return d, nil
}

// GetBooking returns a booking to its customer or to the business owner.
func (c *Controller) GetBooking(ctx context.Context, bookingID, actorID string) (domain.BookingDetail, error) {
	d, err := c.lookup(ctx, bookingID)
	if err != nil {
		return d, err
	}
	if actorID != d.UserID && actorID != d.OwnerID {
		return domain.BookingDetail{}, domain.Errorf(domain.KindForbidden, "not allowed to view this booking")
	}
	return d, nil
}

func (c *Controller) lookup(ctx context.Context, bookingID string) (domain.BookingDetail, error) {
	b, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.BookingDetail{}, domain.Storage("get booking", err)
	}
	svc, err := c.store.GetService(ctx, b.ServiceID)
	if err != nil {
		return domain.BookingDetail{}, domain.Storage("get service", err)
	}
	biz, err := c.store.GetBusiness(ctx, svc.BusinessID)
	if err != nil {
		return domain.BookingDetail{}, domain.Storage("get business", err)
	}
	return detail(b, svc, biz), nil
}

// ExpandSlots lists the bookable slots of a service over the configured horizon.
// IsBooked reflects the ledger at call time and is not an admission decision.
func (c *Controller) ExpandSlots(ctx context.Context, serviceID string) (iter.Seq[domain.Slot], error) {
	svc, biz, err := c.activeService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	rules, err := c.store.ListAvailability(ctx, biz.ID)
	if err != nil {
		return nil, domain.Storage("list availability", err)
	}
	now := c.opts.Now()
	horizon := now.AddDate(0, 0, c.opts.SlotHorizonDays+1)
	booked, err := c.store.ListBooked(ctx, svc.ID, now.Add(-svc.Duration()), horizon)
	if err != nil {
		return nil, domain.Storage("list booked", err)
	}
	minAdvance := c.opts.MinAdvance
	if minAdvance == 0 {
		minAdvance = -1
	}
	return slots.Expand(slots.Request{
		ServiceID: svc.ID,
		Duration:  svc.Duration(),
		Rules:     rules,
		Booked:    booked,
		Now:       now,
	}, slots.Options{
		HorizonDays: c.opts.SlotHorizonDays,
		MinAdvance:  minAdvance,
		Location:    c.opts.Location,
	})
}

// fanOut runs every observer with ctx, which callers detach from the request first.
func (c *Controller) fanOut(ctx context.Context, call func(context.Context, Observer)) {
	for _, o := range c.observers {
		call(ctx, o)
	}
}

func (c *Controller) formatTime(t time.Time) string {
	return t.In(c.opts.Location).Format("Mon Jan 2, 2006 15:04")
}

func detail(b domain.Booking, svc domain.Service, biz domain.Business) domain.BookingDetail {
	return domain.BookingDetail{
		Booking:      b,
		ServiceName:  svc.Name,
		BusinessID:   biz.ID,
		BusinessName: biz.Name,
		OwnerID:      biz.OwnerID,
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		n := int(d / (24 * time.Hour))
		if n == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", n)
	case d >= time.Hour && d%time.Hour == 0:
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", n)
	default:
		return d.String()
	}
}
