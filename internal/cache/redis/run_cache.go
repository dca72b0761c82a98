package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sdtonline/repricer/internal/domain"
)

const (
	lastRunStatsKey = "repricer:last-runs"
	lastRunTimesKey = "repricer:last-run-times"
)

// RunSnapshotCache implements domain.RunSnapshotCache using two Redis
// hashes: one holding the serialized run result per scheduler key, one
// holding the last-run timestamp (Unix seconds). External dashboards read
// these without touching the scheduler process.
type RunSnapshotCache struct {
	rdb *redis.Client
}

// NewRunSnapshotCache creates a RunSnapshotCache backed by the given Client.
func NewRunSnapshotCache(c *Client) *RunSnapshotCache {
	return &RunSnapshotCache{rdb: c.Underlying()}
}

// SetLastRun stores the result and timestamp of a completed run under its
// scheduler key.
func (rc *RunSnapshotCache) SetLastRun(ctx context.Context, key string, at time.Time, result domain.RunResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: marshal run result %s: %w", key, err)
	}

	pipe := rc.rdb.Pipeline()
	pipe.HSet(ctx, lastRunStatsKey, key, payload)
	pipe.HSet(ctx, lastRunTimesKey, key, strconv.FormatInt(at.Unix(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set last run %s: %w", key, err)
	}
	return nil
}

// GetLastRuns returns all stored run results keyed by scheduler key.
func (rc *RunSnapshotCache) GetLastRuns(ctx context.Context) (map[string]domain.RunResult, error) {
	vals, err := rc.rdb.HGetAll(ctx, lastRunStatsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get last runs: %w", err)
	}

	results := make(map[string]domain.RunResult, len(vals))
	for key, raw := range vals {
		var result domain.RunResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			continue
		}
		results[key] = result
	}
	return results, nil
}

// Compile-time interface check.
var _ domain.RunSnapshotCache = (*RunSnapshotCache)(nil)
