package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"booking-scheduler/internal/auth"
	"booking-scheduler/internal/booking"
	"booking-scheduler/internal/domain"
	"booking-scheduler/internal/notify"
	"booking-scheduler/internal/ratelimit"
	"booking-scheduler/internal/store"
)

// Sunday 2026-10-18 12:00 UTC.
var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T, limits ratelimit.Config) (*App, *gin.Engine) {
	t.Helper()
	return newTestAppWithStore(t, limits, store.NewMemory())
}

func newTestAppWithStore(t *testing.T, limits ratelimit.Config, mem store.Store) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := notify.NewHub(8)
	hub.Start()
	t.Cleanup(hub.Stop)
	ns := notify.NewService(mem, hub, zerolog.Nop())
	a := &App{
		Store:    mem,
		Bookings: booking.NewController(mem, ns, zerolog.Nop(), booking.Options{Now: func() time.Time { return now }}),
		Notify:   ns,
		Limits:   ratelimit.NewSet(limits, zerolog.Nop()),
		Auth: auth.NewOracle(auth.Config{StaticTokens: []string{
			"owner-token:owner", "alice-token:alice", "bob-token:bob",
		}}),
		Log: zerolog.Nop(),
	}
	return a, a.Router(RouterOptions{})
}

func call(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func expectCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, w, status)
	body := decode[map[string]any](t, w)
	if body["code"] != code {
		t.Fatalf("expected code %s, got %v", code, body["code"])
	}
}

// setupCatalog creates a business with a 30 minute service owned by "owner".
func setupCatalog(t *testing.T, r http.Handler) (domain.Business, domain.Service) {
	t.Helper()
	w := call(t, r, http.MethodPost, "/api/businesses", "owner-token", gin.H{"name": "Studio"})
	expectStatus(t, w, http.StatusCreated)
	biz := decode[domain.Business](t, w)
	if biz.OwnerID != "owner" || !biz.IsActive {
		t.Fatalf("unexpected business %+v", biz)
	}
	w = call(t, r, http.MethodPost, "/api/businesses/"+biz.ID+"/services", "owner-token", gin.H{"name": "Massage", "duration_minutes": 30})
	expectStatus(t, w, http.StatusCreated)
	return biz, decode[domain.Service](t, w)
}

func TestBookingFlow(t *testing.T) {
	_, r := newTestApp(t, ratelimit.DefaultConfig())
	biz, svc := setupCatalog(t, r)

	w := call(t, r, http.MethodGet, "/api/businesses/"+biz.ID+"/availability", "owner-token", nil)
	expectStatus(t, w, http.StatusOK)
	week := decode[[]availabilityView](t, w)
	if len(week) != 7 || week[1].DayName != "Monday" || !week[1].Enabled || week[0].Enabled {
		t.Fatalf("unexpected default week %+v", week)
	}

	w = call(t, r, http.MethodGet, "/api/services/"+svc.ID+"/slots?from=2026-10-19T00:00:00Z&to=2026-10-20T00:00:00Z", "alice-token", nil)
	expectStatus(t, w, http.StatusOK)
	slots := decode[[]domain.Slot](t, w)
	if len(slots) != 16 {
		t.Fatalf("expected 16 monday slots, got %d", len(slots))
	}
	if !slots[0].StartTime.Equal(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected first slot at 09:00, got %s", slots[0].StartTime)
	}

	w = call(t, r, http.MethodPost, "/api/bookings", "alice-token", gin.H{"service_id": svc.ID, "start_time": "2026-10-19T09:00:00Z"})
	expectStatus(t, w, http.StatusCreated)
	b := decode[domain.Booking](t, w)

	w = call(t, r, http.MethodPost, "/api/bookings", "bob-token", gin.H{"service_id": svc.ID, "start_time": "2026-10-19T09:15:00Z"})
	expectCode(t, w, http.StatusConflict, "slot_unavailable")

	w = call(t, r, http.MethodPost, "/api/bookings", "alice-token", gin.H{"service_id": svc.ID, "start_time": "2026-10-19T09:00:00Z"})
	expectCode(t, w, http.StatusConflict, "duplicate_booking")

	w = call(t, r, http.MethodPost, "/api/bookings", "bob-token", gin.H{"service_id": svc.ID, "start_time": now.Add(30 * time.Minute).Format(time.RFC3339)})
	expectCode(t, w, http.StatusUnprocessableEntity, "out_of_window")

	w = call(t, r, http.MethodGet, "/api/services/"+svc.ID+"/slots?from=2026-10-19T09:00:00Z&to=2026-10-19T10:00:00Z", "bob-token", nil)
	slots = decode[[]domain.Slot](t, w)
	if len(slots) != 2 || !slots[0].IsBooked || slots[1].IsBooked {
		t.Fatalf("expected 09:00 booked and 09:30 free, got %+v", slots)
	}

	w = call(t, r, http.MethodGet, "/api/bookings", "alice-token", nil)
	mine := decode[[]domain.BookingDetail](t, w)
	if len(mine) != 1 || mine[0].ServiceName != "Massage" {
		t.Fatalf("unexpected bookings %+v", mine)
	}
	w = call(t, r, http.MethodGet, "/api/businesses/"+biz.ID+"/bookings", "owner-token", nil)
	if got := decode[[]domain.BookingDetail](t, w); len(got) != 1 {
		t.Fatalf("expected owner to see 1 booking, got %d", len(got))
	}
	w = call(t, r, http.MethodGet, "/api/bookings/"+b.ID, "bob-token", nil)
	expectCode(t, w, http.StatusForbidden, "forbidden")

	w = call(t, r, http.MethodPost, "/api/bookings/"+b.ID+"/cancel", "alice-token", gin.H{"reason": "sick"})
	expectStatus(t, w, http.StatusOK)
	w = call(t, r, http.MethodDelete, "/api/bookings/"+b.ID, "alice-token", nil)
	expectCode(t, w, http.StatusBadRequest, "invalid_input")

	w = call(t, r, http.MethodGet, "/api/notifications", "owner-token", nil)
	notes := decode[[]domain.Notification](t, w)
	if len(notes) != 2 || notes[0].Type != domain.NotifCancelled && notes[1].Type != domain.NotifCancelled {
		t.Fatalf("expected created and cancelled notifications, got %+v", notes)
	}
}

func TestNotificationInbox(t *testing.T) {
	a, r := newTestApp(t, ratelimit.DefaultConfig())
	ctx := t.Context()
	n1, _ := a.Notify.Notify(ctx, "alice", domain.NotifReminder, "one")
	_, _ = a.Notify.Notify(ctx, "alice", domain.NotifReminder, "two")

	w := call(t, r, http.MethodGet, "/api/notifications/"+n1.ID, "bob-token", nil)
	expectCode(t, w, http.StatusNotFound, "not_found")

	w = call(t, r, http.MethodPost, "/api/notifications/"+n1.ID+"/read", "alice-token", nil)
	expectStatus(t, w, http.StatusOK)
	w = call(t, r, http.MethodGet, "/api/notifications?unread=true", "alice-token", nil)
	if got := decode[[]domain.Notification](t, w); len(got) != 1 {
		t.Fatalf("expected 1 unread, got %d", len(got))
	}
	w = call(t, r, http.MethodPut, "/api/notifications", "alice-token", nil)
	if body := decode[map[string]any](t, w); body["updated"] != float64(1) {
		t.Fatalf("expected 1 updated, got %v", body)
	}
	w = call(t, r, http.MethodDelete, "/api/notifications/"+n1.ID, "alice-token", nil)
	expectStatus(t, w, http.StatusOK)
	w = call(t, r, http.MethodGet, "/api/notifications?limit=0", "alice-token", nil)
	expectCode(t, w, http.StatusBadRequest, "invalid_input")
	w = call(t, r, http.MethodGet, "/api/notifications", "bob-token", nil)
	if w.Body.String() != "[]" {
		t.Fatalf("expected empty array, got %s", w.Body.String())
	}
}

func TestCatalogAuthorization(t *testing.T) {
	_, r := newTestApp(t, ratelimit.DefaultConfig())
	biz, svc := setupCatalog(t, r)

	expectCode(t, call(t, r, http.MethodGet, "/api/businesses", "", nil), http.StatusUnauthorized, "unauthenticated")
	expectCode(t, call(t, r, http.MethodPut, "/api/businesses/"+biz.ID, "alice-token", gin.H{"name": "Mine"}), http.StatusForbidden, "forbidden")
	expectCode(t, call(t, r, http.MethodDelete, "/api/services/"+svc.ID, "alice-token", nil), http.StatusForbidden, "forbidden")
	expectCode(t, call(t, r, http.MethodGet, "/api/services/nope", "alice-token", nil), http.StatusNotFound, "not_found")
	expectCode(t, call(t, r, http.MethodPost, "/api/businesses", "alice-token", gin.H{"name": "  "}), http.StatusBadRequest, "invalid_input")
	expectCode(t, call(t, r, http.MethodPost, "/api/businesses/"+biz.ID+"/services", "owner-token", gin.H{"name": "x", "duration_minutes": 0}), http.StatusBadRequest, "invalid_input")
	expectCode(t, call(t, r, http.MethodPost, "/api/bookings", "owner-token", gin.H{"service_id": svc.ID, "start_time": "2026-10-19T10:00:00Z"}), http.StatusForbidden, "forbidden")
	expectCode(t, call(t, r, http.MethodPost, "/api/bookings", "alice-token", gin.H{"service_id": svc.ID, "start_time": "monday"}), http.StatusBadRequest, "invalid_input")

	w := call(t, r, http.MethodPut, "/api/services/"+svc.ID, "owner-token", gin.H{"price": "40"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[domain.Service](t, w); got.Price != "40" || got.Name != "Massage" || got.DurationMinutes != 30 {
		t.Fatalf("expected partial update, got %+v", got)
	}

	w = call(t, r, http.MethodGet, "/api/businesses?mine=true", "owner-token", nil)
	if got := decode[[]domain.Business](t, w); len(got) != 1 {
		t.Fatalf("expected 1 owned business, got %d", len(got))
	}
	expectStatus(t, call(t, r, http.MethodDelete, "/api/businesses/"+biz.ID, "owner-token", nil), http.StatusOK)
	expectCode(t, call(t, r, http.MethodGet, "/api/services/"+svc.ID, "owner-token", nil), http.StatusNotFound, "not_found")
}

func TestSetAvailability(t *testing.T) {
	_, r := newTestApp(t, ratelimit.DefaultConfig())
	biz, svc := setupCatalog(t, r)
	path := "/api/businesses/" + biz.ID + "/availability"

	week := func(mutate func(days []gin.H)) gin.H {
		days := make([]gin.H, 7)
		for d := range days {
			days[d] = gin.H{"day_of_week": d, "is_enabled": d == 1, "open_time": "10:00", "close_time": "12:00"}
		}
		if mutate != nil {
			mutate(days)
		}
		return gin.H{"schedule": days}
	}

	cases := []struct {
		name string
		body gin.H
	}{
		{"six days", gin.H{"schedule": week(nil)["schedule"].([]gin.H)[:6]}},
		{"bad format", week(func(d []gin.H) { d[1]["open_time"] = "9:00" })},
		{"seconds", week(func(d []gin.H) { d[1]["open_time"] = "09:00:00" })},
		{"open after close", week(func(d []gin.H) { d[1]["open_time"] = "13:00" })},
		{"duplicate day", week(func(d []gin.H) { d[2]["day_of_week"] = 1 })},
		{"day out of range", week(func(d []gin.H) { d[0]["day_of_week"] = 7 })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectCode(t, call(t, r, http.MethodPut, path, "owner-token", tc.body), http.StatusBadRequest, "invalid_input")
		})
	}

	expectCode(t, call(t, r, http.MethodPut, path, "alice-token", week(nil)), http.StatusForbidden, "forbidden")

	w := call(t, r, http.MethodPut, path, "owner-token", week(nil))
	expectStatus(t, w, http.StatusOK)
	saved := decode[[]availabilityView](t, w)
	if len(saved) != 7 || saved[1].OpenTime != "10:00" || saved[2].Enabled {
		t.Fatalf("unexpected saved week %+v", saved)
	}

	w = call(t, r, http.MethodPost, "/api/bookings", "alice-token", gin.H{"service_id": svc.ID, "start_time": "2026-10-19T09:00:00Z"})
	expectCode(t, w, http.StatusUnprocessableEntity, "out_of_window")
	w = call(t, r, http.MethodPost, "/api/bookings", "alice-token", gin.H{"service_id": svc.ID, "start_time": "2026-10-20T10:00:00Z"})
	expectCode(t, w, http.StatusConflict, "slot_unavailable")
}

func TestBookingRateLimit(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.Booking = ratelimit.Rule{Max: 2, Window: time.Minute}
	_, r := newTestApp(t, cfg)
	_, svc := setupCatalog(t, r)

	starts := []string{"2026-10-19T10:00:00Z", "2026-10-19T11:00:00Z", "2026-10-19T12:00:00Z"}
	var last *httptest.ResponseRecorder
	for _, s := range starts {
		last = call(t, r, http.MethodPost, "/api/bookings", "alice-token", gin.H{"service_id": svc.ID, "start_time": s})
	}
	expectCode(t, last, http.StatusTooManyRequests, "rate_limited")
	if last.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	// The limit is per user; another caller is unaffected.
	w := call(t, r, http.MethodPost, "/api/bookings", "bob-token", gin.H{"service_id": svc.ID, "start_time": "2026-10-19T12:00:00Z"})
	expectStatus(t, w, http.StatusCreated)
}

func TestCalendarNotConfigured(t *testing.T) {
	_, r := newTestApp(t, ratelimit.DefaultConfig())
	expectStatus(t, call(t, r, http.MethodGet, "/api/calendar/auth", "owner-token", nil), http.StatusServiceUnavailable)
	expectStatus(t, call(t, r, http.MethodGet, "/oauth2callback?code=x", "", nil), http.StatusServiceUnavailable)
}

func TestHealth(t *testing.T) {
	_, r := newTestApp(t, ratelimit.DefaultConfig())
	w := call(t, r, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, w, http.StatusOK)
	if body := decode[map[string]any](t, w); body["store"] != "ok" || body["dropped"] != float64(0) {
		t.Fatalf("unexpected health %v", body)
	}
}

func TestStatusOf(t *testing.T) {
	cases := map[domain.Kind]int{
		domain.KindUnauthenticated:  401,
		domain.KindForbidden:        403,
		domain.KindNotFound:         404,
		domain.KindInvalidInput:     400,
		domain.KindOutOfWindow:      422,
		domain.KindSlotUnavailable:  409,
		domain.KindDuplicateBooking: 409,
		domain.KindRateLimited:      429,
		domain.KindStorageFailure:   500,
		domain.KindUnknown:          500,
	}
	for k, want := range cases {
		if got := statusOf(k); got != want {
			t.Fatalf("%s: expected %d, got %d", k, want, got)
		}
	}
}

type noSeedStore struct {
	store.Store
}

func (noSeedStore) UpsertAvailability(context.Context, string, []domain.AvailabilityRule) error {
	return errors.New("connection reset")
}

func TestCreateBusinessSurvivesSeedFailure(t *testing.T) {
	_, r := newTestAppWithStore(t, ratelimit.DefaultConfig(), noSeedStore{store.NewMemory()})
	w := call(t, r, http.MethodPost, "/api/businesses", "owner-token", gin.H{"name": "Studio"})
	expectStatus(t, w, http.StatusCreated)
	biz := decode[domain.Business](t, w)
	expectStatus(t, call(t, r, http.MethodGet, "/api/businesses/"+biz.ID, "owner-token", nil), http.StatusOK)
}

func TestCancelIgnoresMalformedBody(t *testing.T) {
	_, r := newTestApp(t, ratelimit.DefaultConfig())
	_, svc := setupCatalog(t, r)
	w := call(t, r, http.MethodPost, "/api/bookings", "alice-token", gin.H{"service_id": svc.ID, "start_time": "2026-10-19T09:00:00Z"})
	expectStatus(t, w, http.StatusCreated)
	b := decode[domain.Booking](t, w)

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/"+b.ID+"/cancel", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer alice-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)

	body := decode[struct {
		Booking domain.BookingDetail `json:"booking"`
	}](t, w)
	if body.Booking.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled booking, got %s", body.Booking.Status)
	}
}
