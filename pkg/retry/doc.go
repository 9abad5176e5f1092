// Package retry provides retry logic with exponential backoff and jitter.
//
// It is used for short, idempotent operations against flaky dependencies:
// job record inserts hitting a busy SQLite file and outbound HTTP calls.
//
//	err := retry.DoWithRetryable(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
//	    return session.AddJobRecord(ctx, rec)
//	}, sqlite.IsBusy)
//
// Cancellation of ctx stops the loop immediately and returns ctx.Err().
// When every attempt fails with a retryable error, a *RetriesExceededError
// wrapping the last error is returned.
package retry
