// Package ratelimit implements the two rate limiters the serving
// pipeline needs (C4): an outbound token bucket guarding calls to the
// embedding provider, and an inbound sliding window guarding calls
// from a single caller fingerprint.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	searcherrors "github.com/aman-cerp/shopsearch/internal/errors"
)

// Outbound wraps golang.org/x/time/rate.Limiter to pace outbound calls
// to the embedding provider, blocking up to a deadline rather than
// failing immediately — a burst of queries should queue briefly
// instead of each one tripping a hard throttle.
type Outbound struct {
	limiter *rate.Limiter
}

// NewOutbound builds a token bucket refilling at rps tokens per second
// with the given burst capacity.
func NewOutbound(rps float64, burst int) *Outbound {
	return &Outbound{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is done, returning a
// KindThrottled error if ctx expires first.
func (o *Outbound) Wait(ctx context.Context) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return searcherrors.New(searcherrors.KindThrottled, searcherrors.ErrCodeOutboundThrottled, "outbound rate limit wait exceeded deadline", err)
	}
	return nil
}

// Allow reports whether a token is available right now, without
// blocking or consuming a deadline.
func (o *Outbound) Allow() bool {
	return o.limiter.Allow()
}

// Inbound is a per-caller sliding window limiter: each fingerprint
// (session id, IP hash, etc.) gets its own counter over a rolling
// window, independent of every other caller's traffic.
type Inbound struct {
	mu         sync.Mutex
	window     time.Duration
	maxPerWin  int
	timestamps map[string][]time.Time
}

// NewInbound builds a sliding window allowing maxPerWindow requests
// per fingerprint within window.
func NewInbound(maxPerWindow int, window time.Duration) *Inbound {
	return &Inbound{
		window:     window,
		maxPerWin:  maxPerWindow,
		timestamps: make(map[string][]time.Time),
	}
}

// Allow records a request attempt for fingerprint at now and reports
// whether it falls within the window's quota. now is passed in rather
// than read internally so tests can drive the clock deterministically.
func (i *Inbound) Allow(fingerprint string, now time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := now.Add(-i.window)
	kept := i.timestamps[fingerprint][:0]
	for _, t := range i.timestamps[fingerprint] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= i.maxPerWin {
		i.timestamps[fingerprint] = kept
		return false
	}

	i.timestamps[fingerprint] = append(kept, now)
	return true
}

// Check is the form the orchestrator calls: it returns a KindThrottled
// error instead of a bool, matching how every other stage in the
// pipeline reports rejection.
func (i *Inbound) Check(fingerprint string, now time.Time) error {
	if i.Allow(fingerprint, now) {
		return nil
	}
	return searcherrors.New(searcherrors.KindThrottled, searcherrors.ErrCodeInboundThrottled, "caller exceeded inbound rate limit", nil).WithRetryAfter(i.window)
}

// Forget drops a fingerprint's history so the memory held for a caller
// that has gone idle can be reclaimed.
func (i *Inbound) Forget(fingerprint string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.timestamps, fingerprint)
}

// ActiveFingerprints reports how many distinct callers currently hold
// state, for metrics and retention sizing decisions.
func (i *Inbound) ActiveFingerprints() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.timestamps)
}
