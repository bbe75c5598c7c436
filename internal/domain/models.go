package domain

import "time"

type Business struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Address     string    `json:"address,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Service struct {
	ID              string    `json:"id"`
	BusinessID      string    `json:"business_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           string    `json:"price,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Duration is the fixed session length of one booking of this service.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// AvailabilityRule is the weekly template entry for one weekday of a business.
// DayOfWeek follows time.Weekday: 0 = Sunday ... 6 = Saturday.
type AvailabilityRule struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	DayOfWeek  int       `json:"day_of_week"`
	Enabled    bool      `json:"is_enabled"`
	OpenTime   string    `json:"open_time"`
	CloseTime  string    `json:"close_time"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

type BookingStatus string

const (
	StatusBooked    BookingStatus = "booked"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

type Booking struct {
	ID        string        `json:"id"`
	ServiceID string        `json:"service_id"`
	UserID    string        `json:"user_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// BookingDetail is a booking joined with the names needed for listings and messages.
type BookingDetail struct {
	Booking
	ServiceName  string `json:"service_name"`
	BusinessID   string `json:"business_id"`
	BusinessName string `json:"business_name"`
	OwnerID      string `json:"owner_id"`
}

type NotificationType string

const (
	NotifBookingCreated NotificationType = "booking_created"
	NotifReminder       NotificationType = "reminder"
	NotifCancelled      NotificationType = "cancelled"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// Slot is derived on demand and never stored. IsBooked is a display hint only.
type Slot struct {
	ServiceID string    `json:"service_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	IsBooked  bool      `json:"is_booked"`
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
