package cache

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// RegenerateFunc recomputes the leaderboard end-to-end and replaces the
// stored snapshot.
type RegenerateFunc func(ctx context.Context) error

// Refresher triggers asynchronous regeneration when the snapshot goes stale.
// At most one regeneration runs at a time (single-flight), so a slow run can
// never clobber a newer snapshot with stale data.
type Refresher struct {
	store      *Store
	regenerate RegenerateFunc
	threshold  time.Duration
	timeout    time.Duration
	inflight   atomic.Bool
}

// NewRefresher creates a staleness refresher
func NewRefresher(store *Store, regenerate RegenerateFunc, threshold, timeout time.Duration) *Refresher {
	if threshold <= 0 {
		threshold = time.Hour
	}
	return &Refresher{
		store:      store,
		regenerate: regenerate,
		threshold:  threshold,
		timeout:    timeout,
	}
}

// Stale reports whether the current snapshot is older than the threshold
func (r *Refresher) Stale() bool {
	snap := r.store.Get()
	return time.Since(snap.LastUpdated) > r.threshold
}

// MaybeRefresh starts an asynchronous regeneration if the snapshot is stale
// and none is already running. Never blocks the caller.
func (r *Refresher) MaybeRefresh() {
	if !r.Stale() {
		return
	}
	r.Refresh()
}

// Refresh starts an asynchronous regeneration unless one is already in
// flight. Returns immediately.
func (r *Refresher) Refresh() {
	if !r.inflight.CompareAndSwap(false, true) {
		log.Debug("regeneration already in flight, skipping trigger")
		return
	}

	go func() {
		defer r.inflight.Store(false)

		ctx := context.Background()
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		started := time.Now()
		if err := r.regenerate(ctx); err != nil {
			log.Errorf("background regeneration failed after %v: %v", time.Since(started), err)
			return
		}
		log.Infof("🔄 background regeneration completed in %v", time.Since(started))
	}()
}

// InFlight reports whether a regeneration is currently running
func (r *Refresher) InFlight() bool {
	return r.inflight.Load()
}
