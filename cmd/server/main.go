package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"booking-scheduler/internal/app"
	"booking-scheduler/internal/auth"
	"booking-scheduler/internal/booking"
	"booking-scheduler/internal/calendar"
	"booking-scheduler/internal/config"
	"booking-scheduler/internal/events"
	"booking-scheduler/internal/logging"
	"booking-scheduler/internal/notify"
	"booking-scheduler/internal/ratelimit"
	"booking-scheduler/internal/reminder"
	"booking-scheduler/internal/server"
	"booking-scheduler/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	// token <user-id> [ttl] prints a signed bearer token for local testing.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(cfg, os.Args[2:]); err != nil {
			log.Fatal().Err(err).Msg("issue token")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		Timeout:     cfg.DBTimeout,
	}, logging.Component(log, "store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	hub := notify.NewHub(cfg.StreamBuffer)
	hub.Start()
	defer hub.Stop()
	notifier := notify.NewService(st, hub, logging.Component(log, "notify"))

	limits := ratelimit.NewSet(ratelimit.Config{
		Login:      ratelimit.Rule{Max: cfg.RateLoginMax, Window: cfg.RateLoginWindow},
		API:        ratelimit.Rule{Max: cfg.RateAPIMax, Window: cfg.RateAPIWindow},
		Booking:    ratelimit.Rule{Max: cfg.RateBookingMax, Window: cfg.RateBookingWindow},
		Slots:      ratelimit.Rule{Max: cfg.RateSlotsMax, Window: cfg.RateSlotsWindow},
		SweepEvery: cfg.RateSweepEvery,
	}, log)
	limits.Start(ctx)

	oracle := auth.NewOracle(auth.Config{StaticTokens: cfg.StaticTokens, JWTSecret: cfg.JWTSecret})
	if !oracle.Enabled() {
		log.Warn().Msg("no STATIC_TOKENS or JWT_HMAC_SECRET set; every API request will be rejected")
	}

	bookings := booking.NewController(st, notifier, logging.Component(log, "booking"), booking.Options{
		MinAdvance:      cfg.MinAdvance,
		MaxHorizon:      cfg.MaxHorizon,
		SlotHorizonDays: cfg.SlotHorizonDays,
		Location:        cfg.Location(),
	})

	cal := calendar.New(calendar.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		StateSecret:  cfg.JWTSecret,
		Location:     cfg.Location(),
	}, st, log)
	if cal != nil {
		bookings.Observe(cal)
		defer waitFor(cal.Wait, cfg.ShutdownTimeout)
	} else {
		log.Info().Msg("google calendar disabled")
	}

	if cfg.RabbitURL != "" {
		pub, err := events.NewPublisher(cfg.RabbitURL, cfg.BookingExchange)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer pub.Close()
		obs := events.NewObserver(pub, logging.Component(log, "events"))
		bookings.Observe(obs)
		defer waitFor(obs.Wait, cfg.ShutdownTimeout)
		log.Info().Str("exchange", cfg.BookingExchange).Msg("publishing booking events")
	}

	job, err := reminder.New(st, notifier, logging.Component(log, "reminder"), reminder.Config{
		Schedule:   cfg.ReminderSchedule,
		RatePerSec: cfg.ReminderRate,
		Location:   cfg.Location(),
	})
	if err != nil {
		return fmt.Errorf("reminder job: %w", err)
	}
	if err := job.Start(ctx); err != nil {
		return fmt.Errorf("start reminder job: %w", err)
	}
	defer waitFor(job.Stop, cfg.ShutdownTimeout)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	var proxies []string
	if cfg.TrustProxy {
		proxies = []string{"0.0.0.0/0", "::/0"}
	}
	a := &app.App{
		Store:     st,
		Bookings:  bookings,
		Notify:    notifier,
		Limits:    limits,
		Auth:      oracle,
		Calendar:  cal,
		KeepAlive: cfg.StreamKeepAlive,
		Log:       logging.Component(log, "http"),
	}
	return server.Run(ctx, cfg.Addr(), a.Router(app.RouterOptions{TrustedProxies: proxies}), cfg.ShutdownTimeout, log)
}

func waitFor(fn func(context.Context), timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	fn(ctx)
}

func issueToken(cfg config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: server token <user-id> [ttl]")
	}
	ttl := 24 * time.Hour
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("ttl: %w", err)
		}
		ttl = d
	}
	tok, err := auth.NewOracle(auth.Config{JWTSecret: cfg.JWTSecret}).Issue(args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
