package retry

import (
	"context"
	"errors"
	"time"

	errs "pixiedl/pkg/errors"
)

// Action is what the caller should do after an attempt
type Action int

const (
	// ActionDone means the attempt succeeded
	ActionDone Action = iota
	// ActionRetry means wait Decision.Delay and attempt again
	ActionRetry
	// ActionGiveUp means the error is permanent or the budget is spent
	ActionGiveUp
)

func (a Action) String() string {
	switch a {
	case ActionDone:
		return "done"
	case ActionRetry:
		return "retry"
	case ActionGiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}

// Decision is the transition taken by State.Next
type Decision struct {
	Action  Action
	Attempt int
	Delay   time.Duration
	Err     error
	// Exhausted is set when giving up because the attempt budget ran out
	Exhausted bool
}

// Policy configures a retry sequence
type Policy struct {
	// MaxAttempts is the total number of attempts including the first
	MaxAttempts int
	// Backoff strategy to use between attempts
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
}

// DefaultPolicy allows three attempts with 1s then 2s between them
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
	}
}

// State tracks one retry sequence. Once a terminal decision is reached every
// further call to Next gives up with the last error. It is not safe for
// concurrent use.
type State struct {
	policy  Policy
	attempt int
	lastErr error
	done    bool
}

// NewState starts a fresh sequence for the policy
func NewState(policy Policy) *State {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Backoff == nil {
		policy.Backoff = DefaultExponentialBackoff()
	}
	if policy.RetryIf == nil {
		policy.RetryIf = DefaultRetryIf
	}
	return &State{policy: policy}
}

// Attempt returns the number of attempts recorded so far
func (s *State) Attempt() int { return s.attempt }

// Next records the outcome of an attempt and returns the transition
func (s *State) Next(err error) Decision {
	if s.done {
		return Decision{Action: ActionGiveUp, Attempt: s.attempt, Err: s.lastErr}
	}

	s.attempt++

	if err == nil {
		s.done = true
		return Decision{Action: ActionDone, Attempt: s.attempt}
	}

	s.lastErr = err

	if !s.policy.RetryIf(err) {
		s.done = true
		return Decision{Action: ActionGiveUp, Attempt: s.attempt, Err: err}
	}

	if s.attempt >= s.policy.MaxAttempts {
		s.done = true
		return Decision{Action: ActionGiveUp, Attempt: s.attempt, Err: err, Exhausted: true}
	}

	delay := s.policy.Backoff.NextDelay(s.attempt)
	return Decision{Action: ActionRetry, Attempt: s.attempt, Delay: delay, Err: err}
}

// DefaultRetryIf retries typed transient errors and unknown errors. Untyped
// context errors mean the caller gave up and are never retried.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	var typed *errs.Error
	if errors.As(err, &typed) {
		return errs.IsRetryable(typed.Type)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return true
}
