package worker

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"log-inspection/internal/shared"
)

// PanicError is a recovered panic of a unit of work or a failure handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func invoke(fn func() (string, error)) (msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// innerMessage returns the message of the first error err wraps.
func innerMessage(err error) string {
	var agg *shared.AggregateError
	if errors.As(err, &agg) && len(agg.Errs) > 0 {
		return agg.Errs[0].Error()
	}
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return ""
}

// stackTrace renders the error chain, followed by the goroutine stack of
// every recovered panic in it.
func stackTrace(err error) string {
	var b strings.Builder
	for i, e := range shared.UnwrapAll(err) {
		if i > 0 {
			b.WriteString("\n  caused by: ")
		}
		fmt.Fprintf(&b, "%T: %s", e, e.Error())
	}
	for _, e := range shared.UnwrapAll(err) {
		if p, ok := e.(*PanicError); ok {
			b.WriteString("\n\n")
			b.Write(p.Stack)
		}
	}
	return b.String()
}
