// Package host owns long-running background services: the retention
// schedulers and the ops HTTP server. Services are started together and
// stopped together; one service returning early never stops the others.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"log-inspection/internal/shared"
)

// Service is a background task that runs until ctx is canceled.
// Run returns nil on a graceful stop.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// Host runs a fixed set of services.
type Host struct {
	services []Service
	log      *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	done    chan struct{}
	err     error
}

// New returns a Host for services. Nil services are skipped.
func New(log *slog.Logger, services ...Service) *Host {
	if log == nil {
		log = slog.Default()
	}
	h := &Host{log: log.With("component", "host"), done: make(chan struct{})}
	for _, s := range services {
		if s != nil {
			h.services = append(h.services, s)
		}
	}
	return h
}

// Start launches every service on its own goroutine and returns at once.
// The services observe a context derived from ctx that Stop cancels.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return shared.Wrap(shared.ErrInvalidState, "host: already started")
	}
	h.started = true

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.group = &errgroup.Group{}

	for _, s := range h.services {
		h.group.Go(func() error {
			h.log.Info("service starting", "service", s.Name())
			err := s.Run(runCtx)
			if err != nil && !shared.IsCanceled(err) {
				h.log.Error("service stopped with error", "service", s.Name(), "error", err)
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			h.log.Info("service stopped", "service", s.Name())
			return nil
		})
	}

	go func() {
		h.err = h.group.Wait()
		close(h.done)
	}()

	h.log.Info("host started", "services", len(h.services))
	return nil
}

// Done is closed once every service has returned.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// Stop cancels every service at once and waits for them within ctx's
// deadline. It returns the first service error, or ctx.Err() if the
// deadline passes first; in that case services keep winding down in the
// background.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	cancel := h.cancel
	h.mu.Unlock()

	h.log.Info("stopping host")
	cancel()

	select {
	case <-h.done:
		h.log.Info("host stopped")
		return h.err
	case <-ctx.Done():
		h.log.Warn("host stop deadline exceeded")
		return ctx.Err()
	}
}
