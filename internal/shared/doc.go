// Package shared contains common error types and utilities used across the
// executor, the retention schedulers and the storage adapters.
//
// # Error Classification
//
// Sentinel errors describe well-known failure conditions:
//
//   - ErrNotFound: record or collection not found
//   - ErrValidation: input validation failed
//   - ErrConfig: invalid configuration (cron expression, time zone)
//   - ErrInvalidState: object used before it is ready (task without a run function)
//   - ErrTimeout: operation timed out
//   - ErrInvariantViolated: business rule violation
//   - ErrDependencyFailure: database or notifier failure
//
// Use KindOf to classify an error chain, or the Is* predicates:
//
//	switch shared.KindOf(err) {
//	case shared.KindConfig:
//	    // refuse to start the scheduler
//	case shared.KindCanceled:
//	    // shutting down
//	}
//
// When a chain carries several sentinels (errors.Join, aggregates), KindOf
// reports the first in declaration order: Canceled, Timeout, NotFound,
// Validation, Config, InvalidState, DependencyFailure, InvariantViolated.
//
// # Error Data
//
// WithData attaches key/value pairs to an error. DataOf reads them back from
// anywhere in the chain; the executor stores them in the failure record:
//
//	return "", shared.WithData(err, "invoice", id)
//
// # Aggregates
//
// NewAggregate bundles several errors into one AggregateError. It supports
// errors.Is and errors.As against each member.
//
// # Error Message Style Guide
//
// - Use lowercase messages: "record not found" not "Record not found"
// - Avoid punctuation so messages compose under Wrap
// - Map Kind to HTTP codes in adapter layers, not in this package
package shared
