package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/auth"
	"booking-scheduler/internal/domain"
	"booking-scheduler/internal/notify"
)

// GET /api/notifications?limit=20&unread=true
func (a *App) ListNotificationsHandler(c *gin.Context) {
	limit, err := queryLimit(c, notify.DefaultListLimit)
	if err != nil {
		a.respondError(c, err)
		return
	}
	list, err := a.Notify.List(c.Request.Context(), auth.UserID(c), c.Query("unread") == "true", limit)
	if err != nil {
		a.respondError(c, err)
		return
	}
	if list == nil {
		list = []domain.Notification{}
	}
	c.JSON(http.StatusOK, list)
}

// PUT /api/notifications
func (a *App) MarkAllNotificationsReadHandler(c *gin.Context) {
	n, err := a.Notify.MarkAllRead(c.Request.Context(), auth.UserID(c))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "updated": n})
}

// GET /api/notifications/:id
func (a *App) GetNotificationHandler(c *gin.Context) {
	n, err := a.Notify.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// PUT /api/notifications/:id, POST /api/notifications/:id/read
func (a *App) MarkNotificationReadHandler(c *gin.Context) {
	if err := a.Notify.MarkRead(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DELETE /api/notifications/:id
func (a *App) DeleteNotificationHandler(c *gin.Context) {
	if err := a.Notify.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/notifications/stream
func (a *App) NotificationStreamHandler(c *gin.Context) {
	notify.ServeStream(c, a.Notify.Hub(), auth.UserID(c), a.KeepAlive)
}
