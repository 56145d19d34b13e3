package common

import (
	"context"
	"log"
	"sync"
	"time"
)

// TimeSync tracks the offset between the local clock and the exchange clock
// so signed request timestamps land inside the exchange recv window.
//
// The offset only moves on a successful sync. A failed sync keeps the last
// committed value; after the first success callers never fall back to a zero
// offset.
type TimeSync struct {
	fetch    func(ctx context.Context) (int64, error)
	interval time.Duration

	mu       sync.RWMutex
	offset   int64 // exchange - local, milliseconds
	synced   bool
	lastSync time.Time

	kick chan struct{}
}

// NewTimeSync builds a sync manager around a server-time fetcher.
func NewTimeSync(interval time.Duration, fetch func(ctx context.Context) (int64, error)) *TimeSync {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &TimeSync{
		fetch:    fetch,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Start performs an initial sync and keeps resyncing on a timer until ctx is
// cancelled. Readers of the offset are never blocked by an in-flight sync.
func (ts *TimeSync) Start(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		log.Printf("[TIMESYNC] initial sync failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(ts.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-ts.kick:
			}
			if err := ts.Sync(ctx); err != nil {
				log.Printf("[TIMESYNC] sync failed, keeping offset %dms: %v", ts.Offset(), err)
			}
		}
	}()
}

// Resync schedules an immediate out-of-band sync. Called when the exchange
// rejects a request for timestamp or signature reasons.
func (ts *TimeSync) Resync() {
	select {
	case ts.kick <- struct{}{}:
	default:
	}
}

// Sync fetches server time once and commits a new offset. A failed fetch
// leaves the previous offset untouched.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()
	serverTime, err := ts.fetch(ctx)
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()

	// Assume symmetric network latency.
	local := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - local
	ts.synced = true
	ts.lastSync = time.Now()
	ts.mu.Unlock()

	log.Printf("[TIMESYNC] offset=%dms", serverTime-local)
	return nil
}

// Now returns local time adjusted by the last committed offset, in
// milliseconds. Safe to call concurrently with a sync in progress.
func (ts *TimeSync) Now() int64 {
	return time.Now().UnixMilli() + ts.Offset()
}

// Offset returns the current offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}

// Synced reports whether at least one sync has succeeded.
func (ts *TimeSync) Synced() bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.synced
}

// LastSync returns when the offset was last committed.
func (ts *TimeSync) LastSync() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.lastSync
}
