// Package events publishes booking lifecycle messages for other systems.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"booking-scheduler/internal/domain"
)

const (
	KeyBookingCreated   = "booking.created"
	KeyBookingCancelled = "booking.cancelled"

	publishTimeout = 5 * time.Second
)

type Sink interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// BookingEvent is the message body for both routing keys.
type BookingEvent struct {
	Event      string               `json:"event"`
	BookingID  string               `json:"booking_id"`
	ServiceID  string               `json:"service_id"`
	BusinessID string               `json:"business_id"`
	CustomerID string               `json:"customer_id"`
	OwnerID    string               `json:"owner_id"`
	StartTime  time.Time            `json:"start_time"`
	EndTime    time.Time            `json:"end_time"`
	Status     domain.BookingStatus `json:"status"`
	ActorID    string               `json:"actor_id,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// Observer forwards committed bookings to a Sink without blocking the caller.
type Observer struct {
	sink    Sink
	log     zerolog.Logger
	now     func() time.Time
	pending sync.WaitGroup
}

func NewObserver(sink Sink, log zerolog.Logger) *Observer {
	return &Observer{sink: sink, log: log.With().Str("component", "events").Logger(), now: time.Now}
}

func (o *Observer) BookingCreated(ctx context.Context, d domain.BookingDetail) {
	o.publish(ctx, KeyBookingCreated, o.event(KeyBookingCreated, d))
}

func (o *Observer) BookingCancelled(ctx context.Context, d domain.BookingDetail, actorID, reason string) {
	ev := o.event(KeyBookingCancelled, d)
	ev.ActorID, ev.Reason = actorID, reason
	o.publish(ctx, KeyBookingCancelled, ev)
}

func (o *Observer) event(name string, d domain.BookingDetail) BookingEvent {
	return BookingEvent{
		Event:      name,
		BookingID:  d.ID,
		ServiceID:  d.ServiceID,
		BusinessID: d.BusinessID,
		CustomerID: d.UserID,
		OwnerID:    d.OwnerID,
		StartTime:  d.StartTime,
		EndTime:    d.EndTime,
		Status:     d.Status,
		OccurredAt: o.now().UTC(),
	}
}

func (o *Observer) publish(ctx context.Context, key string, ev BookingEvent) {
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := o.sink.PublishJSON(ctx, key, ev); err != nil {
			o.log.Warn().Err(err).Str("key", key).Str("booking_id", ev.BookingID).Msg("publish failed")
		}
	}()
}

// Wait blocks until in-flight publishes finish or ctx ends.
func (o *Observer) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		o.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
