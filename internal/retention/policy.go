// Package retention is the offline retention manager (C10): a policy
// table of (horizon, deletion predicate) pairs, run on a schedule,
// isolated from the serving path like C9.
package retention

import (
	"context"
	"time"
)

// Policy is one managed entity's retention rule: rows older than Horizon
// (by the entity's own notion of "age") are deleted when Delete runs.
type Policy struct {
	Name    string
	Horizon time.Duration
	Delete  func(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result is the outcome of running one policy once.
type Result struct {
	Policy       string
	CutoffAt     time.Time
	RanAt        time.Time
	DeletedCount int64
	Err          error
}
