package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"booking-scheduler/internal/domain"
)

// Store is the durable side of the inbox.
type Store interface {
	InsertNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	GetNotification(ctx context.Context, userID, id string) (domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error
}

// Service persists one record per notification and then pushes it to live subscribers.
type Service struct {
	store Store
	hub   *Hub
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store Store, hub *Hub, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		hub:   hub,
		log:   log.With().Str("component", "notify").Logger(),
		now:   time.Now,
	}
}

func (s *Service) Hub() *Hub { return s.hub }

// Notify stores the notification and publishes it. A storage failure is returned
// and nothing is published.
func (s *Service) Notify(ctx context.Context, userID string, typ domain.NotificationType, message string) (domain.Notification, error) {
	n := domain.Notification{
		UserID:    userID,
		Type:      typ,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertNotification(ctx, &n); err != nil {
		return n, domain.Storage("insert notification", err)
	}
	delivered := s.hub.Publish(userID, EventFrom(n))
	s.log.Debug().Str("user_id", userID).Str("type", string(typ)).Int("delivered", delivered).Msg("notification sent")
	return n, nil
}

// Emit is Notify for callers that must not fail because of the inbox: errors are logged.
func (s *Service) Emit(ctx context.Context, userID string, typ domain.NotificationType, message string) {
	if _, err := s.Notify(ctx, userID, typ, message); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("type", string(typ)).Msg("notification dropped")
	}
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	out, err := s.store.ListNotifications(ctx, userID, unreadOnly, limit)
	return out, domain.Storage("list notifications", err)
}

func (s *Service) Get(ctx context.Context, userID, id string) (domain.Notification, error) {
	n, err := s.store.GetNotification(ctx, userID, id)
	return n, domain.Storage("get notification", err)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return domain.Storage("mark notification read", s.store.MarkNotificationRead(ctx, userID, id))
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, userID)
	return n, domain.Storage("mark all notifications read", err)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return domain.Storage("delete notification", s.store.DeleteNotification(ctx, userID, id))
}
