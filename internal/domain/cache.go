package domain

import (
	"context"
	"time"
)

// LockManager provides distributed mutual exclusion, keyed by an arbitrary
// string. Used to keep two deployments from repricing the same marketplace
// at the same time.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned unlock
	// function is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RunSnapshotCache mirrors the scheduler's last-run summaries into a shared
// cache so external reporting surfaces can read them without touching the
// scheduler process.
type RunSnapshotCache interface {
	SetLastRun(ctx context.Context, key string, at time.Time, result RunResult) error
	GetLastRuns(ctx context.Context) (map[string]RunResult, error)
}
