package domain

import (
	"errors"
	"fmt"
	"time"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalidInput
	KindOutOfWindow
	KindSlotUnavailable
	KindDuplicateBooking
	KindRateLimited
	KindStorageFailure
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindUnauthenticated:  "unauthenticated",
	KindForbidden:        "forbidden",
	KindNotFound:         "not_found",
	KindInvalidInput:     "invalid_input",
	KindOutOfWindow:      "out_of_window",
	KindSlotUnavailable:  "slot_unavailable",
	KindDuplicateBooking: "duplicate_booking",
	KindRateLimited:      "rate_limited",
	KindStorageFailure:   "storage_failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Error is a classified failure. Sentinels below carry only a Kind and match
// every Error of that Kind through errors.Is.
type Error struct {
	Kind       Kind
	Msg        string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrOutOfWindow      = &Error{Kind: KindOutOfWindow}
	ErrSlotUnavailable  = &Error{Kind: KindSlotUnavailable}
	ErrDuplicateBooking = &Error{Kind: KindDuplicateBooking}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrStorage          = &Error{Kind: KindStorageFailure}
)

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Msg: "too many requests", RetryAfter: retryAfter}
}

// Storage wraps a collaborator error. Already classified errors pass through.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStorageFailure, Msg: op, Err: err}
}

// KindOf returns the taxonomy entry of err, KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
