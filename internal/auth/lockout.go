package auth

import "time"

// Lockout defaults
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 120 * time.Second
)

// LockoutState is the slice of an account the lockout policy reads and writes
type LockoutState struct {
	FailureCount  int
	LastFailureAt *time.Time
	Locked        bool
}

// LockoutPolicy decides how a qualifying password failure moves an account
// toward being locked. Failures closer together than Window extend a streak;
// a streak reaching Threshold locks the account.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
}

// DefaultLockoutPolicy returns the 5 failures / 120 seconds policy
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold: DefaultLockoutThreshold,
		Window:    DefaultLockoutWindow,
	}
}

// Next returns the state after one more failure at now.
// A lock already in place is never cleared here.
func (p LockoutPolicy) Next(state LockoutState, now time.Time) LockoutState {
	at := now
	next := LockoutState{
		LastFailureAt: &at,
		Locked:        state.Locked,
	}

	if state.LastFailureAt == nil || now.Sub(*state.LastFailureAt) >= p.Window {
		next.FailureCount = 1
		return next
	}

	next.FailureCount = state.FailureCount + 1
	if next.FailureCount >= p.Threshold {
		next.Locked = true
	}
	return next
}
