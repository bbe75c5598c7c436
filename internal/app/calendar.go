package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/auth"
)

func (a *App) calendarEnabled(c *gin.Context) bool {
	if a.Calendar == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured", "code": "unavailable"})
		return false
	}
	return true
}

// GET /api/calendar/auth
// Starts the OAuth2 flow for the calling owner.
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if !a.calendarEnabled(c) {
		return
	}
	url, state, err := a.Calendar.AuthURL(auth.UserID(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"auth_url": url,
		"state":    state,
	})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if !a.calendarEnabled(c) {
		return
	}
	ownerID, err := a.Calendar.Exchange(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Authorization successful",
		"owner_id": ownerID,
	})
}

// GET /api/calendar/events?calendar_id=primary&time_min=ISO&time_max=ISO
func (a *App) GetGoogleCalendarEvents(c *gin.Context) {
	if !a.calendarEnabled(c) {
		return
	}
	for _, name := range []string{"time_min", "time_max"} {
		if v := c.Query(name); v != "" {
			if _, err := parseTime(name, v); err != nil {
				a.respondError(c, err)
				return
			}
		}
	}
	events, err := a.Calendar.Events(c.Request.Context(), auth.UserID(c),
		c.DefaultQuery("calendar_id", "primary"), c.Query("time_min"), c.Query("time_max"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// GET /api/calendar/calendars
func (a *App) GetGoogleCalendarList(c *gin.Context) {
	if !a.calendarEnabled(c) {
		return
	}
	calendars, err := a.Calendar.Calendars(c.Request.Context(), auth.UserID(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"calendars": calendars,
		"count":     len(calendars),
	})
}
