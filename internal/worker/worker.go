// Package worker runs units of background work with a tracked lifecycle.
//
// A Worker writes one job record per transition (Enqueued, Processing,
// Succeeded or Failed), times the work and converts every failure of the work
// function or its failure handler into a persisted Failed record. Execute
// only returns an error for misuse, cancellation or a store that cannot
// persist the lifecycle.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"log-inspection/internal/inspection"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/shared"
)

// DefaultJobName is used when JobName is left empty.
const DefaultJobName = "Anonymous"

// terminalWriteTimeout bounds the write of a Succeeded or Failed record after
// the caller's context has been canceled.
const terminalWriteTimeout = 5 * time.Second

var (
	ErrNoRunFunction   = shared.Wrap(shared.ErrInvalidState, "worker: run function is not set")
	ErrAlreadyExecuted = shared.Wrap(shared.ErrInvalidState, "worker: already executed")
	ErrNoSession       = shared.Wrap(shared.ErrInvalidState, "worker: not created by a Factory")
)

// RunFunc is the unit of work. The returned message is stored on the
// Succeeded record.
type RunFunc func(ctx context.Context, s *Scope) (string, error)

// ExceptionFunc reacts to a failure of the RunFunc after it was recorded.
type ExceptionFunc func(ctx context.Context, s *Scope, err error) error

// Scope is what a unit of work gets to use during one execution. The session
// belongs to this execution only and is closed when Execute returns.
// A worker holds no session while it waits out Delay.
type Scope struct {
	Session inspection.Session
	Clock   clock.Clock
	Logger  *slog.Logger
	AppName string
	JobName string
	TraceID string
}

// Worker is a single-use executor. Configure the exported fields, then call
// Execute once.
type Worker struct {
	Delay                time.Duration
	JobName              string
	TraceID              string
	IsLightExecution     bool
	CreatedBy            string
	RunFunction          RunFunc
	RunFunctionException ExceptionFunc

	store   inspection.Store
	session inspection.Session
	slots   *semaphore.Weighted // nil for workers run by the caller
	clock   clock.Clock
	log     *slog.Logger
	app     string
	hooks   Hooks
	used    atomic.Bool
}

// Execute runs the configured work. See the package doc for the error contract.
func (w *Worker) Execute(ctx context.Context) error {
	if w.RunFunction == nil {
		return ErrNoRunFunction
	}
	if w.store == nil {
		return ErrNoSession
	}
	if w.used.Swap(true) {
		return ErrAlreadyExecuted
	}
	defer w.release()

	if w.JobName == "" {
		w.JobName = DefaultJobName
	}
	log := w.log.With("job", w.JobName, "trace_id", w.TraceID)

	if err := w.openSession(ctx); err != nil {
		return err
	}

	log.Info("background job started")
	if err := w.transition(ctx, log, inspection.StateEnqueued, nil, ""); err != nil {
		return err
	}

	if w.Delay > 0 {
		w.closeSession()
		log.Info("background job delayed", "delay", w.Delay)
		timer := time.NewTimer(w.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn("background job canceled during delay")
			return ctx.Err()
		case <-timer.C:
		}
		if err := w.openSession(ctx); err != nil {
			return err
		}
		log.Info("background job resumed")
	}

	if err := w.transition(ctx, log, inspection.StateProcessing, nil, ""); err != nil {
		return err
	}

	scope := &Scope{
		Session: w.session,
		Clock:   w.clock,
		Logger:  log,
		AppName: w.app,
		JobName: w.JobName,
		TraceID: w.TraceID,
	}
	start := time.Now()
	msg, runErr := invoke(func() (string, error) { return w.RunFunction(ctx, scope) })
	elapsed := time.Since(start)

	if runErr != nil {
		return w.fail(ctx, log, scope, elapsed, runErr)
	}

	wctx, cancel := terminalContext(ctx)
	defer cancel()
	if err := w.transition(wctx, log, inspection.StateSucceeded, &elapsed, msg); err != nil {
		return w.outcome(ctx, err)
	}
	log.Info("background job finished")
	return ctx.Err()
}

// terminalContext keeps ctx while it is live. Once it is canceled, the
// terminal record is still written under a detached, time-bounded context.
func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}

// fail records runErr and routes it through the failure handler if any.
func (w *Worker) fail(ctx context.Context, log *slog.Logger, scope *Scope, elapsed time.Duration, runErr error) error {
	wctx, cancel := terminalContext(ctx)
	defer cancel()

	if w.RunFunctionException == nil {
		return w.outcome(ctx, w.failed(wctx, log, elapsed, runErr))
	}

	errorInit := fmt.Sprintf("job %s: intercepted background failure", w.JobName)
	runErr = shared.WithData(runErr, "error_init", errorInit)
	log.Error(errorInit, "error", runErr)

	if perr := w.failed(wctx, log, elapsed, runErr); perr != nil {
		return w.outcome(ctx, perr)
	}

	_, herr := invoke(func() (string, error) {
		return "", w.RunFunctionException(wctx, scope, runErr)
	})
	if herr != nil {
		agg := shared.NewAggregate(runErr, herr)
		return w.outcome(ctx, w.failed(wctx, log, elapsed, agg))
	}

	errorEnd := fmt.Sprintf("job %s: background failure handling finished", w.JobName)
	log.Error(errorEnd, "error", shared.WithData(runErr, "error_end", errorEnd))
	return w.outcome(ctx, nil)
}

// outcome prefers the caller's cancellation over a persistence error.
func (w *Worker) outcome(ctx context.Context, persistErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return persistErr
}

func (w *Worker) transition(ctx context.Context, log *slog.Logger, state inspection.JobState, elapsed *time.Duration, msg string) error {
	if w.IsLightExecution {
		log.Debug("background job transition", "state", state)
		return nil
	}

	rec := w.newRecord(state, elapsed)
	rec.Message = msg

	err := w.session.AddJobRecord(ctx, rec)
	w.hooks.transition(ctx, rec)
	if err != nil {
		log.Error("persist job record", "state", state, "error", err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return shared.Wrapf(err, "worker: record %s", state)
	}

	log.Info("background job transition", "state", state, "duration", elapsed)
	return nil
}

func (w *Worker) failed(ctx context.Context, log *slog.Logger, elapsed time.Duration, cause error) error {
	rec := w.newRecord(inspection.StateFailed, &elapsed)
	rec.Exception = cause.Error()
	rec.InnerException = innerMessage(cause)
	rec.StackTrace = stackTrace(cause)
	rec.Data = shared.DataOf(cause)

	err := w.session.AddJobRecord(ctx, rec)
	w.hooks.transition(ctx, rec)
	w.hooks.failure(ctx, rec)
	log.Error("background job failed", "state", inspection.StateFailed, "duration", elapsed, "error", cause)
	if err != nil {
		log.Error("persist failed job record", "error", err)
		return shared.Wrap(err, "worker: record Failed")
	}
	return nil
}

func (w *Worker) newRecord(state inspection.JobState, elapsed *time.Duration) inspection.JobRecord {
	now := w.clock.Now()
	return inspection.JobRecord{
		ApplicationName: w.app,
		JobName:         w.JobName,
		State:           state,
		TraceID:         w.TraceID,
		Duration:        elapsed,
		CreatedAt:       now,
		CreatedDateOnly: clock.DateOf(now),
		CreatedBy:       w.CreatedBy,
	}
}

// openSession takes a detached-work slot, if the worker has one, and a
// fresh session from the store.
func (w *Worker) openSession(ctx context.Context) error {
	if w.slots != nil {
		if err := w.slots.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	sess, err := w.store.Open(ctx)
	if err != nil {
		if w.slots != nil {
			w.slots.Release(1)
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return shared.Wrap(err, "worker: open session")
	}
	w.session = sess
	return nil
}

func (w *Worker) closeSession() {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		w.log.Warn("close job session", "error", err)
	}
	w.session = nil
	if w.slots != nil {
		w.slots.Release(1)
	}
}

func (w *Worker) release() {
	w.closeSession()
	w.RunFunction = nil
	w.RunFunctionException = nil
}
