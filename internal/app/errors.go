package app

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/auth"
	"booking-scheduler/internal/domain"
	"booking-scheduler/internal/ratelimit"
)

func statusOf(k domain.Kind) int {
	switch k {
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindOutOfWindow:
		return http.StatusUnprocessableEntity
	case domain.KindSlotUnavailable, domain.KindDuplicateBooking:
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error","code"} with the status of its kind.
// Server-side failures are logged and their cause is not exposed.
func (a *App) respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindRateLimited {
		ratelimit.AbortLimited(c, err)
		return
	}
	status := statusOf(kind)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		a.Log.Error().Err(err).Str("path", c.FullPath()).Str("user_id", auth.UserID(c)).Msg("request failed")
		msg = "internal error"
		if kind == domain.KindUnknown {
			kind = domain.KindStorageFailure
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": kind.String()})
}

func invalid(format string, args ...any) error {
	return domain.Errorf(domain.KindInvalidInput, format, args...)
}

func parseTime(name, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, invalid("invalid %s, use RFC3339", name)
	}
	return t, nil
}

// parseRange reads optional from/to RFC3339 query parameters; both or neither must be set.
func parseRange(c *gin.Context) (from, to time.Time, ok bool, err error) {
	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr == "" && toStr == "" {
		return from, to, false, nil
	}
	if fromStr == "" || toStr == "" {
		return from, to, false, invalid("from and to required together (RFC3339)")
	}
	if from, err = parseTime("from", fromStr); err != nil {
		return
	}
	if to, err = parseTime("to", toStr); err != nil {
		return
	}
	if !from.Before(to) {
		return from, to, false, invalid("from must be before to")
	}
	return from, to, true, nil
}

func queryLimit(c *gin.Context, def int) (int, error) {
	s := c.Query("limit")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, invalid("limit must be a positive integer")
	}
	return n, nil
}
