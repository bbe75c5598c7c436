package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"booking-scheduler/internal/auth"
	"booking-scheduler/internal/booking"
	"booking-scheduler/internal/calendar"
	"booking-scheduler/internal/logging"
	"booking-scheduler/internal/notify"
	"booking-scheduler/internal/ratelimit"
	"booking-scheduler/internal/store"
)

// App holds the collaborators shared by every HTTP handler.
type App struct {
	Store    store.Store
	Bookings *booking.Controller
	Notify   *notify.Service
	Limits   *ratelimit.Set
	Auth     *auth.Oracle
	// Calendar is nil when Google OAuth is not configured.
	Calendar  *calendar.Service
	KeepAlive time.Duration
	Log       zerolog.Logger
}

type RouterOptions struct {
	// TrustedProxies enables X-Forwarded-For for these addresses; empty trusts none.
	TrustedProxies []string
}

func (a *App) Router(opts RouterOptions) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(opts.TrustedProxies)
	r.Use(logging.Requests(a.Log), logging.Recovery(a.Log))

	r.GET("/healthz", a.HealthHandler)
	// OAuth2 callback (must be before auth middleware)
	r.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	userKey := ratelimit.ClientUserKey(auth.UserIDKey)
	api := r.Group("/api", auth.Middleware(a.Auth, a.Limits), a.Limits.Middleware(ratelimit.PurposeAPI, userKey))
	{
		businesses := api.Group("/businesses")
		{
			businesses.GET("", a.ListBusinessesHandler)
			businesses.POST("", a.CreateBusinessHandler)
			businesses.GET("/:id", a.GetBusinessHandler)
			businesses.PUT("/:id", a.UpdateBusinessHandler)
			businesses.DELETE("/:id", a.DeleteBusinessHandler)
			businesses.GET("/:id/services", a.ListServicesHandler)
			businesses.POST("/:id/services", a.CreateServiceHandler)
			businesses.GET("/:id/availability", a.ListAvailabilityHandler)
			businesses.PUT("/:id/availability", a.Limits.Middleware(ratelimit.PurposeSlots, userKey), a.SetAvailabilityHandler)
			businesses.GET("/:id/bookings", a.ListBusinessBookingsHandler)
		}

		services := api.Group("/services")
		{
			services.GET("/:id", a.GetServiceHandler)
			services.PUT("/:id", a.UpdateServiceHandler)
			services.DELETE("/:id", a.DeleteServiceHandler)
			services.GET("/:id/slots", a.GetSlotsHandler)
		}

		bookings := api.Group("/bookings")
		{
			bookings.GET("", a.ListBookingsHandler)
			bookings.POST("", a.Limits.Middleware(ratelimit.PurposeBooking, userKey), a.CreateBookingHandler)
			bookings.GET("/:id", a.GetBookingHandler)
			bookings.POST("/:id/cancel", a.CancelBookingHandler)
			bookings.DELETE("/:id", a.CancelBookingHandler)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", a.ListNotificationsHandler)
			notifications.PUT("", a.MarkAllNotificationsReadHandler)
			notifications.GET("/stream", a.NotificationStreamHandler)
			notifications.GET("/:id", a.GetNotificationHandler)
			notifications.PUT("/:id", a.MarkNotificationReadHandler)
			notifications.POST("/:id/read", a.MarkNotificationReadHandler)
			notifications.DELETE("/:id", a.DeleteNotificationHandler)
		}

		// Google Calendar integration routes
		cal := api.Group("/calendar")
		{
			cal.GET("/auth", a.GoogleAuthHandler)
			cal.GET("/events", a.GetGoogleCalendarEvents)
			cal.GET("/calendars", a.GetGoogleCalendarList)
		}
	}
	return r
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	hub := a.Notify.Hub()
	body := gin.H{"status": "ok", "store": "ok", "subscribers": hub.ActiveUsers(), "dropped": hub.Dropped()}
	if err := a.Store.Ping(ctx); err != nil {
		body["status"], body["store"] = "degraded", err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
