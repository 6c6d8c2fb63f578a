// Package ratelimit paces photo downloads with a fixed requests-per-second cap.
//
// New returns a single golang.org/x/time/rate token bucket shared by every
// download attempt. The cap is a static setting; there is no adaptive
// discovery of server limits.
//
//	limiter := ratelimit.New(2, 1) // 2 requests/s in total, burst 1
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//
// New(0, 0) returns Unlimited, which never blocks.
package ratelimit
