package retention

import (
	"context"
	"time"
)

// Scheduler runs the retention manager's full policy table on a fixed
// tick, isolated from the serving path.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	nowFunc  func() time.Time
	stopCh   chan struct{}
}

// NewScheduler builds a scheduler that ticks every interval, running
// manager.RunAll each time. A non-positive interval defaults to an hour.
func NewScheduler(manager *Manager, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{manager: manager, interval: interval, nowFunc: time.Now, stopCh: make(chan struct{})}
}

// Run blocks, ticking the policy table until ctx is cancelled or Stop
// is called.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.manager.RunAll(ctx, s.nowFunc())
		}
	}
}

// Stop halts the scheduler loop; safe to call once.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}
