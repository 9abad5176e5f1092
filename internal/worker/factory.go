package worker

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"log-inspection/internal/inspection"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/shared"
)

// DefaultDetachedLimit is how many detached workers may hold a session at
// once unless WithDetachedLimit says otherwise.
const DefaultDetachedLimit = 2

// Factory builds workers bound to a store, a clock and an application name,
// and runs detached workers for ad hoc callers.
type Factory struct {
	store inspection.Store
	clock clock.Clock
	log   *slog.Logger
	app   string
	hooks Hooks
	slots *semaphore.Weighted

	wg sync.WaitGroup
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithHooks sets the hooks every worker reports to.
func WithHooks(h Hooks) FactoryOption {
	return func(f *Factory) { f.hooks = h }
}

// WithDetachedLimit caps how many workers started by Go hold a session at the
// same time. n <= 0 lifts the cap.
func WithDetachedLimit(n int) FactoryOption {
	return func(f *Factory) {
		f.slots = nil
		if n > 0 {
			f.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewFactory returns a Factory writing records for application app.
func NewFactory(store inspection.Store, clk clock.Clock, log *slog.Logger, app string, opts ...FactoryOption) *Factory {
	if log == nil {
		log = slog.Default()
	}
	f := &Factory{
		store: store,
		clock: clk,
		log:   log.With("component", "worker"),
		app:   app,
		slots: semaphore.NewWeighted(DefaultDetachedLimit),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New returns an unconfigured worker bound to the factory's store. The session
// is opened by Execute. The trace id is taken from ctx when present and
// generated otherwise.
func (f *Factory) New(ctx context.Context) (*Worker, error) {
	if f.store == nil {
		return nil, shared.Wrap(shared.ErrInvalidState, "worker: factory has no store")
	}
	return &Worker{
		JobName: DefaultJobName,
		TraceID: traceIDFor(ctx),
		store:   f.store,
		clock:   f.clock,
		log:     f.log,
		app:     f.app,
		hooks:   f.hooks,
	}, nil
}

// Go builds a worker, lets configure set it up and executes it on its own
// goroutine. The caller gets the trace id and no handle; the outcome is only
// visible through the job records. At most the detached limit of these
// workers hold a session at once; the rest wait for a slot. ctx must outlive the request that
// triggered the work, typically the process context.
func (f *Factory) Go(ctx context.Context, configure func(*Worker)) (string, error) {
	w, err := f.New(ctx)
	if err != nil {
		return "", err
	}
	configure(w)
	if w.RunFunction == nil {
		return "", ErrNoRunFunction
	}
	w.slots = f.slots

	traceID := w.TraceID
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := w.Execute(ctx); err != nil {
			f.log.Warn("detached job ended with error", "job", w.JobName, "trace_id", traceID, "error", err)
		}
	}()
	return traceID, nil
}

// Wait blocks until every detached worker returned or ctx is done.
func (f *Factory) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
