package notify

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const DefaultKeepAlive = 30 * time.Second

// ServeStream holds a text/event-stream open for userID until the client goes away
// or the hub stops. The subscription is removed before ServeStream returns.
func ServeStream(c *gin.Context, hub *Hub, userID string, keepAlive time.Duration) {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	sub, err := hub.Subscribe(userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer sub.Close()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("", gin.H{"type": "connected"})
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent("", ev)
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
