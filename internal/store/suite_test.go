package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-scheduler/internal/domain"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	biz := &domain.Business{OwnerID: "owner-1", Name: "Salon", IsActive: true}
	if err := s.CreateBusiness(ctx, biz); err != nil {
		t.Fatalf("create business: %v", err)
	}
	svc := &domain.Service{BusinessID: biz.ID, Name: "Cut", DurationMinutes: 30, IsActive: true}
	if err := s.CreateService(ctx, svc); err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := s.CreateService(ctx, &domain.Service{BusinessID: "missing", Name: "x", DurationMinutes: 30}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing business, got %v", err)
	}

	t.Run("availability upsert replaces per weekday", func(t *testing.T) {
		if err := s.UpsertAvailability(ctx, biz.ID, domain.DefaultWeek(biz.ID)); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		mon := domain.AvailabilityRule{DayOfWeek: 1, Enabled: true, OpenTime: "10:00", CloseTime: "12:00"}
		if err := s.UpsertAvailability(ctx, biz.ID, []domain.AvailabilityRule{mon}); err != nil {
			t.Fatalf("upsert monday: %v", err)
		}
		rules, err := s.ListAvailability(ctx, biz.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rules) != 7 {
			t.Fatalf("expected 7 rules, got %d", len(rules))
		}
		if rules[1].OpenTime != "10:00" || rules[1].CloseTime != "12:00" {
			t.Fatalf("expected monday 10:00-12:00, got %s-%s", rules[1].OpenTime, rules[1].CloseTime)
		}
	})

	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	first := &domain.Booking{ServiceID: svc.ID, UserID: "u1", StartTime: start, EndTime: start.Add(30 * time.Minute), Status: domain.StatusBooked}

	t.Run("insert rejects overlap", func(t *testing.T) {
		if err := s.InsertBooking(ctx, first); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if first.ID == "" {
			t.Fatalf("expected id to be assigned")
		}
		clash := &domain.Booking{ServiceID: svc.ID, UserID: "u2", StartTime: start.Add(15 * time.Minute), EndTime: start.Add(45 * time.Minute), Status: domain.StatusBooked}
		if err := s.InsertBooking(ctx, clash); !errors.Is(err, domain.ErrSlotUnavailable) {
			t.Fatalf("expected slot unavailable, got %v", err)
		}
		adjacent := &domain.Booking{ServiceID: svc.ID, UserID: "u2", StartTime: start.Add(30 * time.Minute), EndTime: start.Add(60 * time.Minute), Status: domain.StatusBooked}
		if err := s.InsertBooking(ctx, adjacent); err != nil {
			t.Fatalf("adjacent interval should fit, got %v", err)
		}
		got, err := s.FindOverlapping(ctx, svc.ID, start, start.Add(time.Hour))
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(got) != 2 || !got[0].StartTime.Equal(start) {
			t.Fatalf("expected 2 ordered bookings, got %+v", got)
		}
	})

	t.Run("status transition guards", func(t *testing.T) {
		if err := s.UpdateBookingStatus(ctx, first.ID, domain.StatusBooked, domain.StatusCancelled); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if err := s.UpdateBookingStatus(ctx, first.ID, domain.StatusBooked, domain.StatusCancelled); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input on second cancel, got %v", err)
		}
		if err := s.UpdateBookingStatus(ctx, "nope", domain.StatusBooked, domain.StatusCancelled); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		again := &domain.Booking{ServiceID: svc.ID, UserID: "u3", StartTime: start, EndTime: start.Add(30 * time.Minute), Status: domain.StatusBooked}
		if err := s.InsertBooking(ctx, again); err != nil {
			t.Fatalf("cancelled interval should be free again, got %v", err)
		}
	})

	t.Run("detail listings", func(t *testing.T) {
		mine, err := s.ListUserBookings(ctx, "u3")
		if err != nil {
			t.Fatalf("list user: %v", err)
		}
		if len(mine) != 1 || mine[0].ServiceName != "Cut" || mine[0].OwnerID != "owner-1" {
			t.Fatalf("unexpected user bookings: %+v", mine)
		}
		all, err := s.ListBusinessBookings(ctx, biz.ID)
		if err != nil {
			t.Fatalf("list business: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 bookings for business, got %d", len(all))
		}
		up, err := s.ListUpcoming(ctx, start, start.Add(time.Minute))
		if err != nil {
			t.Fatalf("upcoming: %v", err)
		}
		if len(up) != 1 || up[0].UserID != "u3" {
			t.Fatalf("expected only the live booking at 09:00, got %+v", up)
		}
	})

	t.Run("notifications are scoped to their user", func(t *testing.T) {
		for _, msg := range []string{"a", "b", "c"} {
			n := &domain.Notification{UserID: "u1", Type: domain.NotifReminder, Message: msg}
			if err := s.InsertNotification(ctx, n); err != nil {
				t.Fatalf("insert notification: %v", err)
			}
		}
		other := &domain.Notification{UserID: "u2", Type: domain.NotifReminder, Message: "x"}
		if err := s.InsertNotification(ctx, other); err != nil {
			t.Fatalf("insert notification: %v", err)
		}
		if err := s.MarkNotificationRead(ctx, "u1", other.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found across users, got %v", err)
		}
		list, err := s.ListNotifications(ctx, "u1", false, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected limit 2, got %d", len(list))
		}
		if err := s.MarkNotificationRead(ctx, "u1", list[0].ID); err != nil {
			t.Fatalf("mark read: %v", err)
		}
		unread, _ := s.ListNotifications(ctx, "u1", true, 10)
		if len(unread) != 2 {
			t.Fatalf("expected 2 unread, got %d", len(unread))
		}
		n, err := s.MarkAllNotificationsRead(ctx, "u1")
		if err != nil || n != 2 {
			t.Fatalf("expected 2 marked, got %d (%v)", n, err)
		}
		if err := s.DeleteNotification(ctx, "u1", list[0].ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.GetNotification(ctx, "u1", list[0].ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
	})

	t.Run("calendar token round trip", func(t *testing.T) {
		if _, err := s.GetCalendarToken(ctx, "owner-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		tok := []byte(`{"access_token":"abc"}`)
		if err := s.SaveCalendarToken(ctx, "owner-1", tok); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := s.GetCalendarToken(ctx, "owner-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(got) == 0 {
			t.Fatalf("expected token bytes")
		}
	})

	t.Run("concurrent inserts admit one", func(t *testing.T) {
		slot := time.Date(2026, 10, 21, 14, 0, 0, 0, time.UTC)
		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			won int
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b := &domain.Booking{ServiceID: svc.ID, UserID: "racer", StartTime: slot, EndTime: slot.Add(30 * time.Minute), Status: domain.StatusBooked}
				if err := s.InsertBooking(ctx, b); err == nil {
					mu.Lock()
					won++
					mu.Unlock()
				} else if !errors.Is(err, domain.ErrSlotUnavailable) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if won != 1 {
			t.Fatalf("expected exactly one winner, got %d", won)
		}
	})

	t.Run("delete business cascades", func(t *testing.T) {
		if err := s.DeleteBusiness(ctx, biz.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.GetService(ctx, svc.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected service gone, got %v", err)
		}
		if _, err := s.GetBooking(ctx, first.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected booking gone, got %v", err)
		}
	})
}
