package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// HTTP
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	Port            string        `envconfig:"PORT"`
	TrustProxy      bool          `envconfig:"TRUST_PROXY" default:"false"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// Storage
	StoreDriver string        `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL string        `envconfig:"DATABASE_URL"`
	DBTimeout   time.Duration `envconfig:"DB_TIMEOUT" default:"5s"`
	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
	// Scheduling
	Timezone        string        `envconfig:"TIMEZONE" default:"UTC"`
	MinAdvance      time.Duration `envconfig:"MIN_ADVANCE" default:"1h"`
	MaxHorizon      time.Duration `envconfig:"MAX_HORIZON" default:"720h"`
	SlotHorizonDays int           `envconfig:"SLOT_HORIZON_DAYS" default:"62"`
	// Rate limits
	RateLoginMax      int           `envconfig:"RATE_LOGIN_MAX" default:"5"`
	RateLoginWindow   time.Duration `envconfig:"RATE_LOGIN_WINDOW" default:"15m"`
	RateAPIMax        int           `envconfig:"RATE_API_MAX" default:"60"`
	RateAPIWindow     time.Duration `envconfig:"RATE_API_WINDOW" default:"1m"`
	RateBookingMax    int           `envconfig:"RATE_BOOKING_MAX" default:"10"`
	RateBookingWindow time.Duration `envconfig:"RATE_BOOKING_WINDOW" default:"1m"`
	RateSlotsMax      int           `envconfig:"RATE_SLOTS_MAX" default:"20"`
	RateSlotsWindow   time.Duration `envconfig:"RATE_SLOTS_WINDOW" default:"1m"`
	RateSweepEvery    time.Duration `envconfig:"RATE_SWEEP_EVERY" default:"5m"`
	// Notifications
	StreamKeepAlive  time.Duration `envconfig:"STREAM_KEEPALIVE" default:"30s"`
	StreamBuffer     int           `envconfig:"STREAM_BUFFER" default:"16"`
	ReminderSchedule string        `envconfig:"REMINDER_SCHEDULE" default:"@every 15m"`
	ReminderRate     float64       `envconfig:"REMINDER_RATE" default:"20"`
	// Integration events
	RabbitURL       string `envconfig:"RABBIT_URL"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.events"`
	// Auth
	StaticTokens []string `envconfig:"STATIC_TOKENS"`
	JWTSecret    string   `envconfig:"JWT_HMAC_SECRET"`
	// Google Calendar
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL"`

	location *time.Location
}

func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	err := c.Validate()
	return c, err
}

// Validate checks cross-field constraints and resolves the time zone.
func (c *Config) Validate() error {
	var errs []error
	driver := strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if (driver == "" || driver == "postgres") && strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	c.location = loc
	if c.MaxHorizon <= 0 {
		errs = append(errs, errors.New("MAX_HORIZON must be positive"))
	}
	if c.SlotHorizonDays <= 0 {
		errs = append(errs, errors.New("SLOT_HORIZON_DAYS must be positive"))
	}
	for name, pair := range map[string]struct {
		max    int
		window time.Duration
	}{
		"LOGIN":   {c.RateLoginMax, c.RateLoginWindow},
		"API":     {c.RateAPIMax, c.RateAPIWindow},
		"BOOKING": {c.RateBookingMax, c.RateBookingWindow},
		"SLOTS":   {c.RateSlotsMax, c.RateSlotsWindow},
	} {
		if pair.max <= 0 || pair.window <= 0 {
			errs = append(errs, fmt.Errorf("RATE_%s_MAX and RATE_%s_WINDOW must be positive", name, name))
		}
	}
	if c.ReminderRate <= 0 {
		errs = append(errs, errors.New("REMINDER_RATE must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address; PORT wins over HTTP_ADDR as on most PaaS hosts.
func (c Config) Addr() string {
	if p := strings.TrimSpace(c.Port); p != "" {
		return ":" + strings.TrimPrefix(p, ":")
	}
	return c.HTTPAddr
}

// Location is the canonical clock for business hours. UTC until Validate succeeds.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c Config) CalendarEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}
