// Package auth resolves bearer credentials to a user id. Identity itself lives
// elsewhere: callers present either an HMAC-signed JWT whose subject is the user
// id, or one of the configured static tokens.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"booking-scheduler/internal/domain"
)

const DefaultLeeway = 5 * time.Second

type Claims struct {
	jwt.RegisteredClaims
}

type Session struct {
	UserID string
	Method string // "jwt" or "static"
}

type Config struct {
	// StaticTokens entries are "token:userID"; a bare token is its own user id.
	StaticTokens []string
	JWTSecret    string
	Leeway       time.Duration
	Now          func() time.Time
}

// Oracle validates tokens. It is safe for concurrent use.
type Oracle struct {
	static map[string]string
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

func NewOracle(cfg Config) *Oracle {
	o := &Oracle{
		static: make(map[string]string),
		secret: []byte(strings.TrimSpace(cfg.JWTSecret)),
		leeway: cfg.Leeway,
		now:    cfg.Now,
	}
	if o.leeway <= 0 {
		o.leeway = DefaultLeeway
	}
	if o.now == nil {
		o.now = time.Now
	}
	for _, entry := range cfg.StaticTokens {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		tok, uid, ok := strings.Cut(entry, ":")
		if !ok || uid == "" {
			uid = tok
		}
		o.static[tok] = uid
	}
	return o
}

// Enabled reports whether any credential source is configured.
func (o *Oracle) Enabled() bool { return len(o.secret) > 0 || len(o.static) > 0 }

var errNoSubject = errors.New("token has no subject")

// ValidateToken resolves token to a session or fails with Unauthenticated.
func (o *Oracle) ValidateToken(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, domain.Errorf(domain.KindUnauthenticated, "missing token")
	}
	if len(o.secret) > 0 {
		if uid, err := o.parseJWT(token); err == nil {
			return Session{UserID: uid, Method: "jwt"}, nil
		}
	}
	if uid, ok := o.static[token]; ok {
		return Session{UserID: uid, Method: "static"}, nil
	}
	return Session{}, domain.Errorf(domain.KindUnauthenticated, "invalid token")
}

func (o *Oracle) parseJWT(token string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return o.secret, nil
	}, jwt.WithLeeway(o.leeway), jwt.WithTimeFunc(o.now))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errNoSubject
	}
	return claims.Subject, nil
}

// Issue signs a token for userID valid for ttl.
func (o *Oracle) Issue(userID string, ttl time.Duration) (string, error) {
	if len(o.secret) == 0 {
		return "", errors.New("JWT_HMAC_SECRET not configured")
	}
	if userID == "" {
		return "", errNoSubject
	}
	now := o.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(o.secret)
}
