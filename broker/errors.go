package broker

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	NetworkError ErrorKind = iota
	RateLimited
	Unauthorized
	InvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case Unauthorized:
		return "unauthorized"
	case InvalidRequest:
		return "invalid_request"
	default:
		return "network_error"
	}
}

// Sentinels for errors.Is.
var (
	ErrNetwork        = errors.New("broker: network error")
	ErrRateLimited    = errors.New("broker: rate limited")
	ErrUnauthorized   = errors.New("broker: unauthorized")
	ErrInvalidRequest = errors.New("broker: invalid request")
)

// Error is the typed failure returned by every Client method.
type Error struct {
	Kind   ErrorKind
	Op     string
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		s += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == NetworkError
	case ErrRateLimited:
		return e.Kind == RateLimited
	case ErrUnauthorized:
		return e.Kind == Unauthorized
	case ErrInvalidRequest:
		return e.Kind == InvalidRequest
	}
	return false
}

// Transient reports whether a failure should be retried on a later cycle
// rather than treated as a broken setup.
func (e *Error) Transient() bool {
	return e.Kind == NetworkError || e.Kind == RateLimited
}

// IsTransient reports whether err is a transient broker failure.
func IsTransient(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Transient()
	}
	return false
}

// KindOf returns the kind of a broker error, or NetworkError for anything else.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return NetworkError
}
