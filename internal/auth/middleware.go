package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/domain"
	"booking-scheduler/internal/ratelimit"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "user_id"

func UserID(c *gin.Context) string { return c.GetString(UserIDKey) }

// bearer extracts the token from the Authorization header, falling back to the
// access_token query parameter which EventSource clients need.
func bearer(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.Fields(h)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		return parts[1], true
	}
	if q := c.Query("access_token"); q != "" {
		return q, true
	}
	return "", false
}

// Middleware authenticates every request. Failed attempts count against the
// login limiter per client address; once it trips, failures answer 429.
func Middleware(o *Oracle, limits *ratelimit.Set) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearer(c)
		if !ok {
			fail(c, limits, "missing authorization")
			return
		}
		sess, err := o.ValidateToken(tok)
		if err != nil {
			fail(c, limits, "invalid token")
			return
		}
		c.Set(UserIDKey, sess.UserID)
		c.Next()
	}
}

func fail(c *gin.Context, limits *ratelimit.Set, msg string) {
	if limits != nil {
		if err := limits.Check(ratelimit.PurposeLogin, ratelimit.ClientKey(c)); err != nil {
			ratelimit.AbortLimited(c, err)
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": msg,
		"code":  domain.KindUnauthenticated.String(),
	})
}
