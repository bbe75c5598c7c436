// Package calendar mirrors bookings into the business owner's Google Calendar.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"booking-scheduler/internal/domain"
)

const (
	PrimaryCalendar = "primary"
	stateTTL        = 10 * time.Minute
	callTimeout     = 15 * time.Second
)

var ErrNotConnected = domain.Errorf(domain.KindNotFound, "google calendar not connected")

type TokenStore interface {
	SaveCalendarToken(ctx context.Context, userID string, token []byte) error
	GetCalendarToken(ctx context.Context, userID string) ([]byte, error)
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// StateSecret signs the OAuth state parameter.
	StateSecret string
	Location    *time.Location
	// Endpoint overrides the Calendar API base URL and TokenURL the OAuth token
	// endpoint. Both are for tests.
	Endpoint string
	TokenURL string
	Now      func() time.Time
}

// CalendarEvent is a Google Calendar event as exposed by the API.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status"`
	Creator     string    `json:"creator,omitempty"`
}

type CalendarInfo struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Primary     bool   `json:"primary"`
	AccessRole  string `json:"access_role"`
}

type Service struct {
	oauth    *oauth2.Config
	tokens   TokenStore
	secret   []byte
	endpoint string
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger

	pending sync.WaitGroup
}

// New returns nil when the OAuth client is not configured.
func New(cfg Config, tokens TokenStore, log zerolog.Logger) *Service {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil
	}
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarReadonlyScope, calendar.CalendarEventsScope},
			Endpoint:     endpoint,
		},
		tokens:   tokens,
		secret:   []byte(cfg.StateSecret),
		endpoint: cfg.Endpoint,
		loc:      cfg.Location,
		now:      cfg.Now,
		log:      log.With().Str("component", "calendar").Logger(),
	}
	if len(s.secret) == 0 {
		s.secret = []byte(cfg.ClientSecret)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// AuthURL starts the consent flow for ownerID. The state carries the owner id
// signed and short-lived so the callback can be trusted without a session.
func (s *Service) AuthURL(ownerID string) (url, state string, err error) {
	now := s.now()
	state, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   ownerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}).SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), state, nil
}

func (s *Service) ownerFromState(state string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || claims.Subject == "" {
		return "", domain.Errorf(domain.KindInvalidInput, "invalid or expired state")
	}
	return claims.Subject, nil
}

// Exchange completes the consent flow and stores the token for the owner named in state.
func (s *Service) Exchange(ctx context.Context, code, state string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", domain.Errorf(domain.KindInvalidInput, "authorization code required")
	}
	ownerID, err := s.ownerFromState(state)
	if err != nil {
		return "", err
	}
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return "", domain.Errorf(domain.KindInvalidInput, "failed to exchange code for token")
	}
	if err := s.saveToken(ctx, ownerID, tok); err != nil {
		return "", err
	}
	s.log.Info().Str("owner_id", ownerID).Msg("calendar connected")
	return ownerID, nil
}

func (s *Service) saveToken(ctx context.Context, ownerID string, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return domain.Storage("save calendar token", s.tokens.SaveCalendarToken(ctx, ownerID, raw))
}

// client builds a Calendar client for ownerID, persisting a refreshed token.
func (s *Service) client(ctx context.Context, ownerID string) (*calendar.Service, error) {
	raw, err := s.tokens.GetCalendarToken(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, domain.Storage("get calendar token", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode calendar token: %w", err)
	}
	ts := s.oauth.TokenSource(ctx, &tok)
	fresh, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh calendar token: %w", err)
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := s.saveToken(ctx, ownerID, fresh); err != nil {
			s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("refreshed token not saved")
		}
	}
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	return calendar.NewService(ctx, opts...)
}

// Events lists events of calendarID between the optional RFC3339 bounds.
func (s *Service) Events(ctx context.Context, ownerID, calendarID, timeMin, timeMax string) ([]CalendarEvent, error) {
	srv, err := s.client(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if calendarID == "" {
		calendarID = PrimaryCalendar
	}
	call := srv.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250).
		Context(ctx)
	if timeMin != "" {
		call = call.TimeMin(timeMin)
	}
	if timeMax != "" {
		call = call.TimeMax(timeMax)
	}
	events, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	out := make([]CalendarEvent, 0, len(events.Items))
	for _, item := range events.Items {
		ev := CalendarEvent{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Location:    item.Location,
			Status:      item.Status,
		}
		if item.Creator != nil {
			ev.Creator = item.Creator.Email
		}
		ev.StartTime = parseEventTime(item.Start)
		ev.EndTime = parseEventTime(item.End)
		out = append(out, ev)
	}
	return out, nil
}

func parseEventTime(t *calendar.EventDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		if v, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return v
		}
	}
	if t.Date != "" {
		if v, err := time.Parse("2006-01-02", t.Date); err == nil {
			return v
		}
	}
	return time.Time{}
}

func (s *Service) Calendars(ctx context.Context, ownerID string) ([]CalendarInfo, error) {
	srv, err := s.client(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	list, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve calendars: %w", err)
	}
	out := make([]CalendarInfo, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, CalendarInfo{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Primary:     item.Primary,
			AccessRole:  item.AccessRole,
		})
	}
	return out, nil
}

// EventID derives the calendar event id from a booking id. Google accepts
// lowercase base32hex ids, which a hyphen-free uuid satisfies.
func EventID(bookingID string) string {
	return "bk" + strings.ToLower(strings.ReplaceAll(bookingID, "-", ""))
}

// BookingCreated inserts the booking into the owner's primary calendar in the background.
func (s *Service) BookingCreated(ctx context.Context, d domain.BookingDetail) {
	s.async(ctx, d, "insert", func(ctx context.Context, srv *calendar.Service) error {
		ev := &calendar.Event{
			Id:          EventID(d.ID),
			Summary:     fmt.Sprintf("%s booking", d.ServiceName),
			Description: fmt.Sprintf("Booking %s at %s for customer %s", d.ID, d.BusinessName, d.UserID),
			Start:       &calendar.EventDateTime{DateTime: d.StartTime.In(s.loc).Format(time.RFC3339), TimeZone: s.loc.String()},
			End:         &calendar.EventDateTime{DateTime: d.EndTime.In(s.loc).Format(time.RFC3339), TimeZone: s.loc.String()},
		}
		_, err := srv.Events.Insert(PrimaryCalendar, ev).Context(ctx).Do()
		return err
	})
}

// BookingCancelled removes the mirrored event. A missing event is not an error.
func (s *Service) BookingCancelled(ctx context.Context, d domain.BookingDetail, _, _ string) {
	s.async(ctx, d, "delete", func(ctx context.Context, srv *calendar.Service) error {
		err := srv.Events.Delete(PrimaryCalendar, EventID(d.ID)).Context(ctx).Do()
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && (gErr.Code == http.StatusNotFound || gErr.Code == http.StatusGone) {
			return nil
		}
		return err
	})
}

func (s *Service) async(ctx context.Context, d domain.BookingDetail, op string, call func(context.Context, *calendar.Service) error) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		srv, err := s.client(ctx, d.OwnerID)
		if errors.Is(err, ErrNotConnected) {
			return
		}
		if err == nil {
			err = call(ctx, srv)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("op", op).Str("booking_id", d.ID).Str("owner_id", d.OwnerID).Msg("calendar sync failed")
			return
		}
		s.log.Debug().Str("op", op).Str("booking_id", d.ID).Msg("calendar synced")
	}()
}

// Wait blocks until background syncs finish or ctx ends.
func (s *Service) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
