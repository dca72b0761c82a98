package domain

import "time"

// RunStatus is the lifecycle state of one repricing run.
type RunStatus string

const (
	RunPending       RunStatus = "pending"
	RunRunning       RunStatus = "running"
	RunEmpty         RunStatus = "empty"
	RunBlocked       RunStatus = "blocked"
	RunCompleted     RunStatus = "completed"
	RunTestRunning   RunStatus = "test-running"
	RunTestCompleted RunStatus = "test-completed"
)

// RepricingRun is one orchestration run against one marketplace. Counters
// only grow while the run is alive; the row is never deleted.
type RepricingRun struct {
	ID            string
	MarketplaceID int64
	StartedAt     time.Time
	CompletedAt   *time.Time
	Status        RunStatus
	Processed     int
	Updated       int
	Errors        int
}

// RunResult is the summary of one orchestration run, kept by the scheduler
// for observability.
type RunResult struct {
	Marketplace       string  `json:"marketplace"`
	ProfileID         *int64  `json:"profile_id,omitempty"`
	Processed         int     `json:"processed"`
	Updated           int     `json:"updated"`
	Errors            int     `json:"errors"`
	ProfilesProcessed []int64 `json:"profiles_processed,omitempty"`
}
