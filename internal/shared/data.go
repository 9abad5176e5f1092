package shared

import (
	"maps"
	"strings"
)

// DataError attaches a key/value bag to an error. The bag travels with the
// error through wrapping and ends up in the persisted failure record.
type DataError struct {
	err  error
	data map[string]any
}

func (e *DataError) Error() string { return e.err.Error() }
func (e *DataError) Unwrap() error { return e.err }

// Data returns a copy of the attached values.
func (e *DataError) Data() map[string]any { return maps.Clone(e.data) }

// WithData returns err carrying the key/value pair. Values attached further
// out in the chain win over inner ones when read back with DataOf.
func WithData(err error, key string, value any) error {
	if err == nil {
		return nil
	}
	if de, ok := err.(*DataError); ok {
		next := maps.Clone(de.data)
		next[key] = value
		return &DataError{err: de.err, data: next}
	}
	return &DataError{err: err, data: map[string]any{key: value}}
}

// DataOf collects every value attached anywhere in the chain of err.
// It returns nil when nothing was attached.
func DataOf(err error) map[string]any {
	var out map[string]any
	all := UnwrapAll(err)
	for i := len(all) - 1; i >= 0; i-- {
		de, ok := all[i].(*DataError)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(de.data))
		}
		maps.Copy(out, de.data)
	}
	return out
}

// AggregateError bundles the error a task raised with the error its failure
// handler raised while reacting to it.
type AggregateError struct {
	Errs []error
}

// NewAggregate drops nil entries and returns nil if nothing remains.
func NewAggregate(errs ...error) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &AggregateError{Errs: kept}
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		parts = append(parts, err.Error())
	}
	return "one or more errors occurred: " + strings.Join(parts, "; ")
}

func (e *AggregateError) Unwrap() []error { return e.Errs }
