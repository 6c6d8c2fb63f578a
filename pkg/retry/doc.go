// Package retry provides the retry state machine and backoff strategies used
// for photo downloads.
//
// A State is driven by the caller, which keeps control of anything that has to
// happen between attempts (releasing a concurrency permit, for example):
//
//	state := retry.NewState(retry.DefaultPolicy())
//	for {
//		d := state.Next(fetch())
//		if d.Action != retry.ActionRetry {
//			break
//		}
//		_ = retry.Wait(ctx, d.Delay)
//	}
//
// Network and timeout errors and unexpected statuses are retried with
// exponential backoff. Permanent rejections (403, 404) and context
// cancellation give up immediately.
package retry
