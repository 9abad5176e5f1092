package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinels for the failure classes the executor, the schedulers and the
// storage adapters report.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrConfig            = errors.New("invalid configuration")
	ErrInvalidState      = errors.New("invalid state")
	ErrTimeout           = errors.New("operation timed out")
	ErrInvariantViolated = errors.New("invariant violated")
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind classifies an error chain. Kinds are declared in the order KindOf
// checks them: when a chain matches several, the earliest wins.
type Kind int

const (
	KindUnknown Kind = iota
	KindCanceled
	KindTimeout
	KindNotFound
	KindValidation
	KindConfig
	KindInvalidState
	KindDependencyFailure
	KindInvariantViolated
)

var kinds = [...]struct {
	kind     Kind
	name     string
	sentinel error
}{
	{KindCanceled, "Canceled", nil},
	{KindTimeout, "Timeout", ErrTimeout},
	{KindNotFound, "NotFound", ErrNotFound},
	{KindValidation, "Validation", ErrValidation},
	{KindConfig, "Config", ErrConfig},
	{KindInvalidState, "InvalidState", ErrInvalidState},
	{KindDependencyFailure, "DependencyFailure", ErrDependencyFailure},
	{KindInvariantViolated, "InvariantViolated", ErrInvariantViolated},
}

func (k Kind) String() string {
	for _, e := range kinds {
		if e.kind == k {
			return e.name
		}
	}
	return "Unknown"
}

func (k Kind) matches(err error) bool {
	switch k {
	case KindCanceled:
		return IsCanceled(err)
	case KindTimeout:
		return IsTimeout(err)
	}
	s := SentinelOf(k)
	return s != nil && errors.Is(err, s)
}

// KindOf returns the first kind, in declaration order, that err matches.
// Joined errors are searched in full.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, e := range kinds {
		if e.kind.matches(err) {
			return e.kind
		}
	}
	return KindUnknown
}

// HasKind reports whether KindOf(err) is kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SentinelOf returns the sentinel of kind, or nil for KindUnknown and
// KindCanceled.
func SentinelOf(kind Kind) error {
	for _, e := range kinds {
		if e.kind == kind {
			return e.sentinel
		}
	}
	return nil
}

// MarkKind attaches the sentinel of kind to err so that KindOf reports it.
// An error already of that kind is returned as is; a nil error becomes the
// bare sentinel.
//
//	if sqlite.IsBusy(err) {
//	    return shared.MarkKind(err, shared.KindDependencyFailure)
//	}
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap prefixes err with context. Nil stays nil.
func Wrap(err error, context string) error {
	if err == nil || context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf is Wrap with a formatted context.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Invariant returns an ErrInvariantViolated error when condition is false.
func Invariant(condition bool, message string) error {
	if condition {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvariantViolated, message)
}

// InvariantF is Invariant with a formatted message.
func InvariantF(condition bool, format string, args ...any) error {
	if condition {
		return nil
	}
	return Invariant(false, fmt.Sprintf(format, args...))
}

func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout matches context deadlines, net.Error timeouts and ErrTimeout.
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
func IsConfig(err error) bool            { return errors.Is(err, ErrConfig) }
func IsInvalidState(err error) bool      { return errors.Is(err, ErrInvalidState) }
func IsInvariantViolated(err error) bool { return errors.Is(err, ErrInvariantViolated) }
func IsDependencyFailure(err error) bool { return errors.Is(err, ErrDependencyFailure) }

// UnwrapAll flattens the error graph of err breadth first, outermost first.
// Each error appears once.
func UnwrapAll(err error) []error {
	if err == nil {
		return nil
	}
	var out []error
	seen := make(map[error]struct{})
	queue := []error{err}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		out = append(out, cur)

		switch u := cur.(type) {
		case interface{ Unwrap() []error }:
			queue = append(queue, u.Unwrap()...)
		case interface{ Unwrap() error }:
			if next := u.Unwrap(); next != nil {
				queue = append(queue, next)
			}
		}
	}
	return out
}
