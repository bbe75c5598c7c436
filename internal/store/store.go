// Package store is the durable side of the service: catalog, booking ledger,
// notification inbox and calendar credentials.
//
// Two backends exist. "postgres" is the production store; its exclusion constraint
// keeps booked intervals of a service disjoint across processes. "memory" keeps
// everything in process and enforces the same invariant under a mutex; it serves
// tests and single-instance development.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"booking-scheduler/internal/domain"
)

type Store interface {
	CreateBusiness(ctx context.Context, b *domain.Business) error
	GetBusiness(ctx context.Context, id string) (domain.Business, error)
	ListBusinesses(ctx context.Context, activeOnly bool) ([]domain.Business, error)
	UpdateBusiness(ctx context.Context, b *domain.Business) error
	DeleteBusiness(ctx context.Context, id string) error

	CreateService(ctx context.Context, s *domain.Service) error
	GetService(ctx context.Context, id string) (domain.Service, error)
	ListServices(ctx context.Context, businessID string) ([]domain.Service, error)
	UpdateService(ctx context.Context, s *domain.Service) error
	DeleteService(ctx context.Context, id string) error

	ListAvailability(ctx context.Context, businessID string) ([]domain.AvailabilityRule, error)
	// UpsertAvailability writes one rule per (business, weekday), replacing existing ones.
	UpsertAvailability(ctx context.Context, businessID string, rules []domain.AvailabilityRule) error

	Ledger

	ListUserBookings(ctx context.Context, userID string) ([]domain.BookingDetail, error)
	ListBusinessBookings(ctx context.Context, businessID string) ([]domain.BookingDetail, error)
	// ListUpcoming returns booked bookings with from <= start < to.
	ListUpcoming(ctx context.Context, from, to time.Time) ([]domain.BookingDetail, error)

	InsertNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	GetNotification(ctx context.Context, userID, id string) (domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error

	SaveCalendarToken(ctx context.Context, userID string, token []byte) error
	GetCalendarToken(ctx context.Context, userID string) ([]byte, error)

	Ping(ctx context.Context) error
	Close()
}

// Ledger is the booking storage contract consumed by admission.
type Ledger interface {
	// FindOverlapping returns booked bookings of serviceID intersecting [start, end), ordered by start.
	FindOverlapping(ctx context.Context, serviceID string, start, end time.Time) ([]domain.Booking, error)
	// InsertBooking stores b with a fresh id. It fails with SlotUnavailable when a
	// booked interval of the same service overlaps b.
	InsertBooking(ctx context.Context, b *domain.Booking) error
	// UpdateBookingStatus moves id from one status to another. It fails with
	// NotFound when id does not exist and InvalidInput when its status is not from.
	UpdateBookingStatus(ctx context.Context, id string, from, to domain.BookingStatus) error
	GetBooking(ctx context.Context, id string) (domain.Booking, error)
	ListBooked(ctx context.Context, serviceID string, from, to time.Time) ([]domain.Booking, error)
}

type Config struct {
	Driver      string
	DatabaseURL string
	// Timeout bounds every storage call; zero means 5s.
	Timeout time.Duration
}

// Open initializes the configured store and applies migrations.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "postgres", "postgresql", "pg":
		return OpenPostgres(ctx, cfg, log)
	case "memory", "mem":
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}

func newID() string { return uuid.NewString() }

func notFound(what string) error {
	return domain.Errorf(domain.KindNotFound, "%s not found", what)
}

func slotTaken() error {
	return domain.Errorf(domain.KindSlotUnavailable, "this time slot is no longer available")
}

func statusConflict(from domain.BookingStatus) error {
	return domain.Errorf(domain.KindInvalidInput, "booking is not %s", from)
}
