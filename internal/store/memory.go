package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"booking-scheduler/internal/domain"
)

// Memory is the in-process backend. All methods are safe for concurrent use.
type Memory struct {
	mu            sync.RWMutex
	now           func() time.Time
	businesses    map[string]domain.Business
	services      map[string]domain.Service
	availability  map[string]map[int]domain.AvailabilityRule
	bookings      map[string]domain.Booking
	notifications map[string]domain.Notification
	tokens        map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		now:           time.Now,
		businesses:    map[string]domain.Business{},
		services:      map[string]domain.Service{},
		availability:  map[string]map[int]domain.AvailabilityRule{},
		bookings:      map[string]domain.Booking{},
		notifications: map[string]domain.Notification{},
		tokens:        map[string][]byte{},
	}
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close()                     {}

func (m *Memory) CreateBusiness(_ context.Context, b *domain.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		b.ID = newID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = m.now().UTC()
	}
	m.businesses[b.ID] = *b
	return nil
}

func (m *Memory) GetBusiness(_ context.Context, id string) (domain.Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.businesses[id]
	if !ok {
		return domain.Business{}, notFound("business")
	}
	return b, nil
}

func (m *Memory) ListBusinesses(_ context.Context, activeOnly bool) ([]domain.Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Business
	for _, b := range m.businesses {
		if activeOnly && !b.IsActive {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateBusiness(_ context.Context, b *domain.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.businesses[b.ID]
	if !ok {
		return notFound("business")
	}
	b.OwnerID, b.CreatedAt = cur.OwnerID, cur.CreatedAt
	m.businesses[b.ID] = *b
	return nil
}

func (m *Memory) DeleteBusiness(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.businesses[id]; !ok {
		return notFound("business")
	}
	delete(m.businesses, id)
	delete(m.availability, id)
	for sid, s := range m.services {
		if s.BusinessID == id {
			m.deleteServiceLocked(sid)
		}
	}
	return nil
}

func (m *Memory) CreateService(_ context.Context, s *domain.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.businesses[s.BusinessID]; !ok {
		return notFound("business")
	}
	if s.ID == "" {
		s.ID = newID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now().UTC()
	}
	m.services[s.ID] = *s
	return nil
}

func (m *Memory) GetService(_ context.Context, id string) (domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return domain.Service{}, notFound("service")
	}
	return s, nil
}

func (m *Memory) ListServices(_ context.Context, businessID string) ([]domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Service
	for _, s := range m.services {
		if s.BusinessID == businessID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateService(_ context.Context, s *domain.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.services[s.ID]
	if !ok {
		return notFound("service")
	}
	s.BusinessID, s.CreatedAt = cur.BusinessID, cur.CreatedAt
	m.services[s.ID] = *s
	return nil
}

func (m *Memory) DeleteService(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[id]; !ok {
		return notFound("service")
	}
	m.deleteServiceLocked(id)
	return nil
}

func (m *Memory) deleteServiceLocked(id string) {
	delete(m.services, id)
	for bid, b := range m.bookings {
		if b.ServiceID == id {
			delete(m.bookings, bid)
		}
	}
}

func (m *Memory) ListAvailability(_ context.Context, businessID string) ([]domain.AvailabilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AvailabilityRule
	for _, r := range m.availability[businessID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out, nil
}

func (m *Memory) UpsertAvailability(_ context.Context, businessID string, rules []domain.AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.businesses[businessID]; !ok {
		return notFound("business")
	}
	week, ok := m.availability[businessID]
	if !ok {
		week = map[int]domain.AvailabilityRule{}
		m.availability[businessID] = week
	}
	for _, r := range rules {
		r.BusinessID = businessID
		if cur, ok := week[r.DayOfWeek]; ok {
			r.ID, r.CreatedAt = cur.ID, cur.CreatedAt
		} else {
			r.ID, r.CreatedAt = newID(), m.now().UTC()
		}
		week[r.DayOfWeek] = r
	}
	return nil
}

func (m *Memory) FindOverlapping(_ context.Context, serviceID string, start, end time.Time) ([]domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overlappingLocked(serviceID, start, end), nil
}

func (m *Memory) overlappingLocked(serviceID string, start, end time.Time) []domain.Booking {
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.ServiceID == serviceID && b.Status == domain.StatusBooked && domain.Overlaps(start, end, b.StartTime, b.EndTime) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out
}

func (m *Memory) InsertBooking(_ context.Context, b *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.Status == domain.StatusBooked && len(m.overlappingLocked(b.ServiceID, b.StartTime, b.EndTime)) > 0 {
		return slotTaken()
	}
	b.ID = newID()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = m.now().UTC()
	}
	m.bookings[b.ID] = *b
	return nil
}

func (m *Memory) UpdateBookingStatus(_ context.Context, id string, from, to domain.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return notFound("booking")
	}
	if b.Status != from {
		return statusConflict(from)
	}
	b.Status = to
	m.bookings[id] = b
	return nil
}

func (m *Memory) GetBooking(_ context.Context, id string) (domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, notFound("booking")
	}
	return b, nil
}

func (m *Memory) ListBooked(_ context.Context, serviceID string, from, to time.Time) ([]domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.ServiceID == serviceID && b.Status == domain.StatusBooked && !b.StartTime.Before(from) && b.StartTime.Before(to) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (m *Memory) detailLocked(b domain.Booking) (domain.BookingDetail, bool) {
	s, ok := m.services[b.ServiceID]
	if !ok {
		return domain.BookingDetail{}, false
	}
	biz, ok := m.businesses[s.BusinessID]
	if !ok {
		return domain.BookingDetail{}, false
	}
	return domain.BookingDetail{
		Booking:      b,
		ServiceName:  s.Name,
		BusinessID:   biz.ID,
		BusinessName: biz.Name,
		OwnerID:      biz.OwnerID,
	}, true
}

func (m *Memory) listDetails(keep func(domain.BookingDetail) bool) []domain.BookingDetail {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.BookingDetail
	for _, b := range m.bookings {
		d, ok := m.detailLocked(b)
		if ok && keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *Memory) ListUserBookings(_ context.Context, userID string) ([]domain.BookingDetail, error) {
	return m.listDetails(func(d domain.BookingDetail) bool { return d.UserID == userID }), nil
}

func (m *Memory) ListBusinessBookings(_ context.Context, businessID string) ([]domain.BookingDetail, error) {
	return m.listDetails(func(d domain.BookingDetail) bool { return d.BusinessID == businessID }), nil
}

func (m *Memory) ListUpcoming(_ context.Context, from, to time.Time) ([]domain.BookingDetail, error) {
	return m.listDetails(func(d domain.BookingDetail) bool {
		return d.Status == domain.StatusBooked && !d.StartTime.Before(from) && d.StartTime.Before(to)
	}), nil
}

func (m *Memory) InsertNotification(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = newID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now().UTC()
	}
	m.notifications[n.ID] = *n
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Notification
	for _, n := range m.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetNotification(_ context.Context, userID, id string) (domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return domain.Notification{}, notFound("notification")
	}
	return n, nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return notFound("notification")
	}
	n.IsRead = true
	m.notifications[id] = n
	return nil
}

func (m *Memory) MarkAllNotificationsRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.notifications {
		if rec.UserID == userID && !rec.IsRead {
			rec.IsRead = true
			m.notifications[id] = rec
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeleteNotification(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return notFound("notification")
	}
	delete(m.notifications, id)
	return nil
}

func (m *Memory) SaveCalendarToken(_ context.Context, userID string, token []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = slices.Clone(token)
	return nil
}

func (m *Memory) GetCalendarToken(_ context.Context, userID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[userID]
	if !ok {
		return nil, notFound("calendar token")
	}
	return slices.Clone(t), nil
}

func sortBookings(bs []domain.Booking) {
	sort.Slice(bs, func(i, j int) bool { return bs[i].StartTime.Before(bs[j].StartTime) })
}
