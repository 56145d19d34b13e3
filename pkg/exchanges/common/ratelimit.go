package common

import (
	"log"
	"strconv"
	"sync"
	"time"
)

// WeightTracker mirrors the exchange's request-weight accounting from
// response headers so the gateway can see how close it is to a ban.
type WeightTracker struct {
	mu            sync.RWMutex
	usedWeight    int
	limit         int
	lastUpdate    time.Time
	resetInterval time.Duration
}

// NewWeightTracker creates a tracker for the given weight budget per window
// (Binance USDT-M futures allows 2400 weight per minute).
func NewWeightTracker(limit int, resetInterval time.Duration) *WeightTracker {
	return &WeightTracker{
		limit:         limit,
		resetInterval: resetInterval,
		lastUpdate:    time.Now(),
	}
}

// Observe ingests the used-weight response header value.
func (wt *WeightTracker) Observe(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	wt.mu.Lock()
	wt.usedWeight = weight
	wt.lastUpdate = time.Now()
	wt.mu.Unlock()

	pct := float64(weight) / float64(wt.limit) * 100
	if pct >= 95 {
		log.Printf("[WEIGHT] critical: %d/%d (%.1f%%) - approaching ban threshold", weight, wt.limit, pct)
	} else if pct >= 80 {
		log.Printf("[WEIGHT] warning: %d/%d (%.1f%%)", weight, wt.limit, pct)
	}
}

// Usage returns the last observed weight and the configured limit. Values
// older than one reset window are reported as zero.
func (wt *WeightTracker) Usage() (used, limit int) {
	wt.mu.RLock()
	defer wt.mu.RUnlock()
	if time.Since(wt.lastUpdate) >= wt.resetInterval {
		return 0, wt.limit
	}
	return wt.usedWeight, wt.limit
}
