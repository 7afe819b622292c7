package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors shared by the service layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind is a category of error used to pick a response for it.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindUnauthorized
	KindForbidden
	KindConflict
	KindInternal
	KindTimeout
	KindDependencyFailure
	KindCanceled
)

var kindNames = map[Kind]string{
	KindNotFound:          "NotFound",
	KindValidation:        "Validation",
	KindUnauthorized:      "Unauthorized",
	KindForbidden:         "Forbidden",
	KindConflict:          "Conflict",
	KindInternal:          "Internal",
	KindTimeout:           "Timeout",
	KindDependencyFailure: "DependencyFailure",
	KindCanceled:          "Canceled",
}

// String returns the string representation of the Kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// kindPriorities is the order in which KindOf checks sentinels.
// Canceled and Timeout are checked before it.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindNotFound, ErrNotFound},
	{KindValidation, ErrValidation},
	{KindUnauthorized, ErrUnauthorized},
	{KindForbidden, ErrForbidden},
	{KindConflict, ErrConflict},
	{KindDependencyFailure, ErrDependencyFailure},
	{KindInternal, ErrInternal},
}

// KindOf classifies err by walking its chain.
//
// Cancellation wins over timeout, timeout over every sentinel; for errors.Join
// the first kind in kindPriorities order is returned. Unrecognized errors are
// KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case IsCanceled(err):
		return KindCanceled
	case IsTimeout(err):
		return KindTimeout
	}
	for _, p := range kindPriorities {
		if errors.Is(err, p.err) {
			return p.kind
		}
	}
	return KindUnknown
}

// ErrorOf returns the sentinel error for kind, or nil for KindUnknown and KindCanceled.
func ErrorOf(kind Kind) error {
	if kind == KindTimeout {
		return ErrTimeout
	}
	for _, p := range kindPriorities {
		if p.kind == kind {
			return p.err
		}
	}
	return nil
}

// MarkKind wraps err with the sentinel of kind so that KindOf reports kind
// while errors.Is(result, err) still holds. Marking is idempotent.
//
//	if errors.Is(err, dbsession.ErrConnectFailed) {
//	    return shared.MarkKind(err, shared.KindDependencyFailure)
//	}
func MarkKind(err error, kind Kind) error {
	sentinel := ErrorOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// IsCanceled reports whether err comes from a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a deadline, ErrTimeout or a net timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool        { return errors.Is(err, ErrValidation) }
func IsUnauthorized(err error) bool      { return errors.Is(err, ErrUnauthorized) }
func IsForbidden(err error) bool         { return errors.Is(err, ErrForbidden) }
func IsConflict(err error) bool          { return errors.Is(err, ErrConflict) }
func IsInternal(err error) bool          { return errors.Is(err, ErrInternal) }
func IsDependencyFailure(err error) bool { return errors.Is(err, ErrDependencyFailure) }
