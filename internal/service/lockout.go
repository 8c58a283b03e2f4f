package service

import (
	"context"
	"time"

	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository"
)

// Default lockout policy: five consecutive failures lock the account for
// one hour.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = time.Hour
)

// LockoutPolicy configures the failed-login tracker.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

func (p LockoutPolicy) normalized() LockoutPolicy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultLockoutThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultLockoutDuration
	}
	return p
}

// LockoutStore is the slice of the user store the tracker writes to.
type LockoutStore interface {
	RecordFailedLogin(ctx context.Context, id uint64, now time.Time, threshold int, lockFor time.Duration) (repository.LockoutState, error)
	RecordSuccessfulLogin(ctx context.Context, id uint64, now time.Time) error
}

// LockoutTracker decides whether a user may attempt a login and records
// outcomes.  The counter lives in the users row so every server instance
// sees the same value; the store applies each increment atomically.
type LockoutTracker struct {
	store  LockoutStore
	policy LockoutPolicy
}

func NewLockoutTracker(store LockoutStore, policy LockoutPolicy) *LockoutTracker {
	return &LockoutTracker{store: store, policy: policy.normalized()}
}

// Policy returns the effective policy.
func (l *LockoutTracker) Policy() LockoutPolicy { return l.policy }

// Locked reports whether u is locked at now.
func (l *LockoutTracker) Locked(u model.User, now time.Time) bool {
	return u.LockedAt(now)
}

// FailureOutcome is the result of recording one failed attempt.
type FailureOutcome struct {
	Attempts    int
	LockedUntil *time.Time
	// JustLocked is true when this failure crossed the threshold.
	JustLocked bool
	// AlreadyLocked is true when a concurrent failure locked the row first
	// and this attempt was not counted.
	AlreadyLocked bool
}

// RecordFailure counts one failed attempt for userID.
func (l *LockoutTracker) RecordFailure(ctx context.Context, userID uint64, now time.Time) (FailureOutcome, error) {
	st, err := l.store.RecordFailedLogin(ctx, userID, now, l.policy.Threshold, l.policy.Duration)
	if err != nil {
		return FailureOutcome{}, err
	}
	out := FailureOutcome{Attempts: st.Attempts, LockedUntil: st.LockedUntil}
	locked := st.LockedUntil != nil && st.LockedUntil.After(now)
	if !st.Applied {
		out.AlreadyLocked = locked
		return out, nil
	}
	out.JustLocked = locked
	return out, nil
}

// RecordSuccess resets the counter, clears any lock and stamps last_login.
func (l *LockoutTracker) RecordSuccess(ctx context.Context, userID uint64, now time.Time) error {
	return l.store.RecordSuccessfulLogin(ctx, userID, now)
}
