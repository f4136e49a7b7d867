package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient matches failures worth retrying (rate limited, 5xx, network).
	ErrTransient = errors.New("marketplace transient failure")
	// ErrPermanent matches failures that retrying cannot fix (not found, invalid state).
	ErrPermanent = errors.New("marketplace permanent failure")
	// ErrAuth matches credential failures; they abort the whole job run.
	ErrAuth = errors.New("marketplace authentication failure")
)

// Kind classifies a gateway failure.
type Kind int

const (
	KindTransient Kind = iota
	KindPermanent
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is a classified gateway failure.
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("marketplace %s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("marketplace %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrPermanent:
		return e.Kind == KindPermanent
	case ErrAuth:
		return e.Kind == KindAuth
	default:
		return false
	}
}

// Transient wraps err as a retryable failure.
func Transient(op string, err error) error {
	return &Error{Op: op, Kind: KindTransient, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(op string, err error) error {
	return &Error{Op: op, Kind: KindPermanent, Err: err}
}

// Auth wraps err as a credential failure.
func Auth(op string, err error) error {
	return &Error{Op: op, Kind: KindAuth, Err: err}
}

// KindForStatus maps an HTTP status to a failure kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return KindTransient
	default:
		return KindPermanent
	}
}

// IsRetryable reports whether another attempt could succeed. Context
// cancellation is never retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrTransient)
}
