// Package inspection defines the records produced by background jobs and the
// storage ports the executor and the retention sweeps depend on.
package inspection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log-inspection/internal/shared"
)

// JobState is a lifecycle state of one job execution.
type JobState string

const (
	StateEnqueued   JobState = "Enqueued"
	StateProcessing JobState = "Processing"
	StateSucceeded  JobState = "Succeeded"
	StateFailed     JobState = "Failed"
)

// ParseJobState accepts a state name in any letter case.
func ParseJobState(s string) (JobState, error) {
	for _, st := range []JobState{StateEnqueued, StateProcessing, StateSucceeded, StateFailed} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", shared.MarkKind(fmt.Errorf("unknown job state %q", s), shared.KindValidation)
}

// Collection names one of the retention-managed log tables.
type Collection string

const (
	CollectionAudit    Collection = "audit"
	CollectionEndpoint Collection = "endpoint"
	CollectionHTTP     Collection = "http"
	CollectionJob      Collection = "job"
)

// Collections lists every collection in a stable order.
func Collections() []Collection {
	return []Collection{CollectionAudit, CollectionEndpoint, CollectionHTTP, CollectionJob}
}

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, error) {
	c := Collection(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tables[c]; !ok {
		return "", shared.MarkKind(fmt.Errorf("unknown log collection %q", s), shared.KindNotFound)
	}
	return c, nil
}

var tables = map[Collection]string{
	CollectionAudit:    "log_audit",
	CollectionEndpoint: "log_endpoint",
	CollectionHTTP:     "log_http",
	CollectionJob:      "log_job",
}

// Table returns the backing table name. Storage adapters only interpolate
// names obtained here into SQL.
func (c Collection) Table() (string, error) {
	t, ok := tables[c]
	if !ok {
		return "", shared.MarkKind(fmt.Errorf("unknown log collection %q", string(c)), shared.KindNotFound)
	}
	return t, nil
}

// JobRecord is one lifecycle event of a job execution.
type JobRecord struct {
	ID              int64
	ApplicationName string
	JobName         string
	State           JobState
	TraceID         string
	Duration        *time.Duration // nil until the work starts timing
	Message         string
	Exception       string
	InnerException  string
	StackTrace      string
	Data            map[string]any
	CreatedAt       time.Time // local time in the configured zone
	CreatedDateOnly time.Time // midnight of CreatedAt's calendar date
	CreatedBy       string
}

// JobFilter selects job records. Zero fields match everything.
type JobFilter struct {
	ApplicationName string
	JobName         string
	TraceID         string
	State           JobState
	Limit           int // defaults to DefaultJobLimit
}

const (
	DefaultJobLimit = 100
	MaxJobLimit     = 1000
)

// EffectiveLimit clamps Limit into [1, MaxJobLimit].
func (f JobFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultJobLimit
	case f.Limit > MaxJobLimit:
		return MaxJobLimit
	default:
		return f.Limit
	}
}

// Session is a scoped handle on the store. Each executor run and each
// scheduler tick opens its own session and closes it when done. Every write
// is committed when the call returns.
type Session interface {
	AddJobRecord(ctx context.Context, rec JobRecord) error
	// DeleteBatch removes at most batch records of collection created on or
	// before cutoff and owned by app. It returns the number of rows removed.
	DeleteBatch(ctx context.Context, collection Collection, cutoff time.Time, app string, batch int) (int64, error)
	Close() error
}

// Store opens sessions and answers operator queries.
type Store interface {
	Open(ctx context.Context) (Session, error)
	JobRecords(ctx context.Context, filter JobFilter) ([]JobRecord, error)
	Ping(ctx context.Context) error
	Close() error
}
