package worker

import (
	"context"

	"log-inspection/internal/inspection"
)

// Hooks observe job records as the executor emits them. Hooks run
// synchronously on the executing goroutine and must not block.
type Hooks struct {
	// OnTransition is called for every emitted record, Failed included.
	OnTransition func(ctx context.Context, rec inspection.JobRecord)
	// OnFailure is called for every Failed record.
	OnFailure func(ctx context.Context, rec inspection.JobRecord)
}

// ChainHooks calls every non-nil hook in order.
func ChainHooks(hs ...Hooks) Hooks {
	return Hooks{
		OnTransition: func(ctx context.Context, rec inspection.JobRecord) {
			for _, h := range hs {
				h.transition(ctx, rec)
			}
		},
		OnFailure: func(ctx context.Context, rec inspection.JobRecord) {
			for _, h := range hs {
				h.failure(ctx, rec)
			}
		},
	}
}

func (h Hooks) transition(ctx context.Context, rec inspection.JobRecord) {
	if h.OnTransition != nil {
		h.OnTransition(ctx, rec)
	}
}

func (h Hooks) failure(ctx context.Context, rec inspection.JobRecord) {
	if h.OnFailure != nil {
		h.OnFailure(ctx, rec)
	}
}
