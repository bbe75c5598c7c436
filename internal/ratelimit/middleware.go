package ratelimit

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/domain"
)

type KeyFunc func(c *gin.Context) string

// ClientKey identifies the caller by client address. gin resolves X-Forwarded-For
// only for trusted proxies configured on the engine.
func ClientKey(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// ClientUserKey combines client address and the authenticated user id found under ctxKey.
func ClientUserKey(ctxKey string) KeyFunc {
	return func(c *gin.Context) string {
		key := ClientKey(c)
		if uid := c.GetString(ctxKey); uid != "" {
			key += ":" + uid
		}
		return key
	}
}

// Middleware rejects requests over the purpose's limit with 429 before any
// handler logic runs.
func (s *Set) Middleware(p Purpose, keyFn KeyFunc) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = ClientKey
	}
	return func(c *gin.Context) {
		if err := s.Check(p, keyFn(c)); err != nil {
			AbortLimited(c, err)
			return
		}
		c.Next()
	}
}

// AbortLimited writes a 429 response carrying Retry-After in whole seconds (rounded up).
func AbortLimited(c *gin.Context, err error) {
	var retry time.Duration
	var de *domain.Error
	if errors.As(err, &de) {
		retry = de.RetryAfter
	}
	c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds(retry)))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "too many requests, please slow down",
		"code":  domain.KindRateLimited.String(),
	})
}

func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
