package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"booking-scheduler/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryNotificationsNewestFirst(t *testing.T) {
	m := NewMemory()
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	ctx := context.Background()
	for _, msg := range []string{"old", "mid", "new"} {
		if err := m.InsertNotification(ctx, &domain.Notification{UserID: "u", Type: domain.NotifReminder, Message: msg}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	list, _ := m.ListNotifications(ctx, "u", false, 20)
	if len(list) != 3 || list[0].Message != "new" || list[2].Message != "old" {
		t.Fatalf("expected newest first, got %+v", list)
	}
}

func TestMemoryTokenIsCopied(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tok := []byte("abc")
	_ = m.SaveCalendarToken(ctx, "u", tok)
	tok[0] = 'z'
	got, _ := m.GetCalendarToken(ctx, "u")
	if string(got) != "abc" {
		t.Fatalf("expected stored copy to be isolated, got %q", got)
	}
}

func TestOpenDrivers(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: "memory"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", s)
	}
	if _, err := Open(context.Background(), Config{Driver: "oracle"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := Open(context.Background(), Config{Driver: "postgres"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}
