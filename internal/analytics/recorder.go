package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aman-cerp/shopsearch/internal/config"
	"github.com/aman-cerp/shopsearch/internal/types"
)

// Recorder accepts served-query events on a bounded buffered channel
// and drains them with a small pool of writers that batch by a size
// and a time threshold before committing to the Store. A full buffer
// drops the event and increments a counter rather than blocking the
// caller — analytics loss is preferable to serving-path latency.
type Recorder struct {
	events  chan types.AnalyticsEvent
	store   *Store
	cfg     config.AnalyticsConfig
	dropped atomic.Int64
	wg      sync.WaitGroup
	stopCh  chan struct{}
	stopped atomic.Bool
}

// NewRecorder starts the writer pool and returns a Recorder ready to
// accept events. Call Close to drain in-flight events and stop the
// writers.
func NewRecorder(store *Store, cfg config.AnalyticsConfig) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.WriterCount <= 0 {
		cfg.WriterCount = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	r := &Recorder{
		events: make(chan types.AnalyticsEvent, cfg.BufferSize),
		store:  store,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}

	for i := 0; i < cfg.WriterCount; i++ {
		r.wg.Add(1)
		go r.writerLoop()
	}
	return r
}

// Record enqueues an event without blocking. If a raw, unanonymized
// caller address slipped through to ClientIPHash, it is anonymized
// defensively before the event ever reaches the channel — the
// recorder never writes a raw IP to storage.
func (r *Recorder) Record(event types.AnalyticsEvent) {
	if r.stopped.Load() {
		return
	}
	event.ClientIPHash = ensureAnonymized(event.ClientIPHash)

	select {
	case r.events <- event:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the count of events discarded because the buffer
// was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// PopularQueries passes through to the underlying Store, giving
// read-side callers (the orchestrator's popular-searches cache fill)
// access without holding a *Store of their own.
func (r *Recorder) PopularQueries(ctx context.Context, storeScope string, limit int) ([]types.PopularQuery, error) {
	return r.store.PopularQueries(ctx, storeScope, limit)
}

func (r *Recorder) writerLoop() {
	defer r.wg.Done()

	batch := make([]types.AnalyticsEvent, 0, r.cfg.BatchSize)
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = r.store.CommitBatch(ctx, batch)
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-r.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.stopCh:
			// Drain whatever is already buffered before exiting so a
			// cancelled caller's own event still lands (the single-flight
			// peer analog for analytics: the writer outlives the request).
			for {
				select {
				case e := <-r.events:
					batch = append(batch, e)
					if len(batch) >= r.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops accepting new events, drains what's buffered, and waits
// for the writer pool to exit.
func (r *Recorder) Close() error {
	if r.stopped.Swap(true) {
		return nil
	}
	close(r.stopCh)
	r.wg.Wait()
	return nil
}

// ensureAnonymized returns v unchanged if it does not parse as an IP
// address (the expected case — callers should already pass a
// fingerprint), and otherwise hashes it defensively so a raw address
// never reaches storage.
func ensureAnonymized(v string) string {
	if v == "" {
		return v
	}
	if net.ParseIP(v) == nil {
		return v
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:16])
}
