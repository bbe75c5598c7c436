package app

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/auth"
	"booking-scheduler/internal/domain"
)

type availabilityView struct {
	domain.AvailabilityRule
	DayName string `json:"day_name"`
}

func viewRules(rules []domain.AvailabilityRule) []availabilityView {
	out := make([]availabilityView, 0, len(rules))
	for _, r := range rules {
		out = append(out, availabilityView{AvailabilityRule: r, DayName: domain.DayNames[r.DayOfWeek]})
	}
	return out
}

// GET /businesses/:id/availability
// Businesses without a schedule get the default week on first read.
func (a *App) ListAvailabilityHandler(c *gin.Context) {
	biz, ok := a.ownedBusiness(c, c.Param("id"))
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rules, err := a.Store.ListAvailability(ctx, biz.ID)
	if err != nil {
		a.respondError(c, domain.Storage("list availability", err))
		return
	}
	if len(rules) == 0 {
		if err := a.Store.UpsertAvailability(ctx, biz.ID, domain.DefaultWeek(biz.ID)); err != nil {
			a.respondError(c, domain.Storage("seed availability", err))
			return
		}
		if rules, err = a.Store.ListAvailability(ctx, biz.ID); err != nil {
			a.respondError(c, domain.Storage("list availability", err))
			return
		}
	}
	c.JSON(http.StatusOK, viewRules(rules))
}

type ruleInput struct {
	DayOfWeek *int   `json:"day_of_week"`
	IsEnabled bool   `json:"is_enabled"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

type setAvailabilityReq struct {
	Schedule []ruleInput `json:"schedule"`
}

// PUT /businesses/:id/availability
// Replaces the whole week: exactly one entry per weekday.
func (a *App) SetAvailabilityHandler(c *gin.Context) {
	biz, ok := a.ownedBusiness(c, c.Param("id"))
	if !ok {
		return
	}
	var req setAvailabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondError(c, invalid("%s", err.Error()))
		return
	}
	if len(req.Schedule) != 7 {
		a.respondError(c, invalid("schedule must be an array of 7 days"))
		return
	}
	var seen [7]bool
	rules := make([]domain.AvailabilityRule, 0, 7)
	for _, in := range req.Schedule {
		if in.DayOfWeek == nil || *in.DayOfWeek < 0 || *in.DayOfWeek > 6 {
			a.respondError(c, invalid("invalid day of week"))
			return
		}
		if seen[*in.DayOfWeek] {
			a.respondError(c, invalid("duplicate entry for %s", domain.DayNames[*in.DayOfWeek]))
			return
		}
		seen[*in.DayOfWeek] = true
		if len(in.OpenTime) != 5 || len(in.CloseTime) != 5 {
			a.respondError(c, invalid("invalid time format, use HH:MM"))
			return
		}
		r := domain.AvailabilityRule{
			BusinessID: biz.ID,
			DayOfWeek:  *in.DayOfWeek,
			Enabled:    in.IsEnabled,
			OpenTime:   in.OpenTime,
			CloseTime:  in.CloseTime,
		}
		if err := r.Validate(); err != nil {
			a.respondError(c, err)
			return
		}
		rules = append(rules, r)
	}

	ctx := c.Request.Context()
	if err := a.Store.UpsertAvailability(ctx, biz.ID, rules); err != nil {
		a.respondError(c, domain.Storage("save availability", err))
		return
	}
	saved, err := a.Store.ListAvailability(ctx, biz.ID)
	if err != nil {
		a.respondError(c, domain.Storage("list availability", err))
		return
	}
	c.JSON(http.StatusOK, viewRules(saved))
}

// GET /services/:id/slots?from=ISO&to=ISO&limit=N
func (a *App) GetSlotsHandler(c *gin.Context) {
	from, to, bounded, err := parseRange(c)
	if err != nil {
		a.respondError(c, err)
		return
	}
	limit, err := queryLimit(c, 0)
	if err != nil {
		a.respondError(c, err)
		return
	}
	seq, err := a.Bookings.ExpandSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	slots := make([]domain.Slot, 0, 64)
	for s := range seq {
		if bounded {
			if !s.StartTime.Before(to) {
				break
			}
			if s.StartTime.Before(from) {
				continue
			}
		}
		slots = append(slots, s)
		if limit > 0 && len(slots) >= limit {
			break
		}
	}
	c.JSON(http.StatusOK, slots)
}

type createBookingReq struct {
	ServiceID string `json:"service_id" binding:"required"`
	StartTime string `json:"start_time" binding:"required"` // RFC3339
}

// POST /bookings
func (a *App) CreateBookingHandler(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondError(c, invalid("missing service_id or start_time"))
		return
	}
	start, err := parseTime("start_time", req.StartTime)
	if err != nil {
		a.respondError(c, err)
		return
	}
	b, err := a.Bookings.RequestBooking(c.Request.Context(), req.ServiceID, auth.UserID(c), start)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// GET /bookings?from=ISO&to=ISO
func (a *App) ListBookingsHandler(c *gin.Context) {
	from, to, bounded, err := parseRange(c)
	if err != nil {
		a.respondError(c, err)
		return
	}
	list, err := a.Store.ListUserBookings(c.Request.Context(), auth.UserID(c))
	if err != nil {
		a.respondError(c, domain.Storage("list bookings", err))
		return
	}
	out := make([]domain.BookingDetail, 0, len(list))
	for _, d := range list {
		if bounded && (d.StartTime.Before(from) || !d.StartTime.Before(to)) {
			continue
		}
		out = append(out, d)
	}
	c.JSON(http.StatusOK, out)
}

// GET /businesses/:id/bookings
func (a *App) ListBusinessBookingsHandler(c *gin.Context) {
	biz, ok := a.ownedBusiness(c, c.Param("id"))
	if !ok {
		return
	}
	list, err := a.Store.ListBusinessBookings(c.Request.Context(), biz.ID)
	if err != nil {
		a.respondError(c, domain.Storage("list bookings", err))
		return
	}
	if list == nil {
		list = []domain.BookingDetail{}
	}
	c.JSON(http.StatusOK, list)
}

// GET /bookings/:id
func (a *App) GetBookingHandler(c *gin.Context) {
	d, err := a.Bookings.GetBooking(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type cancelBookingReq struct {
	Reason string `json:"reason"`
}

// POST /bookings/:id/cancel, DELETE /bookings/:id?reason=
func (a *App) CancelBookingHandler(c *gin.Context) {
	reason := c.Query("reason")
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		// An unreadable body cancels without a reason.
		var req cancelBookingReq
		if err := c.ShouldBindJSON(&req); err == nil {
			reason = req.Reason
		}
	}
	d, err := a.Bookings.CancelBooking(c.Request.Context(), c.Param("id"), auth.UserID(c), strings.TrimSpace(reason))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "booking": d})
}
