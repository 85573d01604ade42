package baseline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/aman-cerp/shopsearch/internal/config"
)

// Scheduler runs the baseline job on a fixed tick, isolated from the
// serving path, guarded by a cross-process exclusive lock so that two
// instances never run the job concurrently against the same data.
type Scheduler struct {
	job     *Job
	cfg     config.BaselineConfig
	lock    *flock.Flock
	stores  func(ctx context.Context) ([]string, error)
	log     *slog.Logger
	nowFunc func() time.Time
	stopCh  chan struct{}
}

// NewScheduler builds a scheduler that ticks every cfg.RefreshInterval,
// running job.Run for every store scope returned by stores.
func NewScheduler(job *Job, cfg config.BaselineConfig, stores func(ctx context.Context) ([]string, error), log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	lockPath := cfg.LockPath
	if lockPath == "" {
		lockPath = filepath.Join(os.TempDir(), ".shopsearch", "baseline.lock")
	}
	return &Scheduler{
		job:     job,
		cfg:     cfg,
		lock:    flock.New(lockPath),
		stores:  stores,
		log:     log,
		nowFunc: time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Run blocks, ticking the job until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.RefreshInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop halts the scheduler loop; safe to call once.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// RunOnce acquires the lock and runs the job a single time, for manual
// invocation (e.g. a CLI "baseline refresh" command) outside the ticker
// loop. Returns false without error if another process holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	acquired, err := s.lock.TryLock()
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer s.lock.Unlock()

	return true, s.runAllStores(ctx)
}

func (s *Scheduler) tick(ctx context.Context) {
	acquired, err := s.lock.TryLock()
	if err != nil {
		s.log.Error("baseline scheduler failed to acquire lock", "error", err)
		return
	}
	if !acquired {
		s.log.Debug("baseline scheduler skipping tick, lock held by another process")
		return
	}
	defer s.lock.Unlock()

	if err := s.runAllStores(ctx); err != nil {
		s.log.Error("baseline job run failed", "error", err)
	}
}

func (s *Scheduler) runAllStores(ctx context.Context) error {
	scopes, err := s.stores(ctx)
	if err != nil {
		return err
	}
	now := s.nowFunc()
	for _, scope := range scopes {
		if err := s.job.Run(ctx, scope, now); err != nil {
			s.log.Error("baseline job run failed for store", "store_scope", scope, "error", err)
			continue
		}
	}
	return nil
}
