package channels

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// SendLimiter enforces per-chat outbound message rates using token buckets.
// Chat platforms throttle bots that send too fast; pacing notifications per
// chat keeps a burst of session updates from tripping platform limits.
type SendLimiter struct {
	limiters sync.Map   // chat ref → *limiterEntry
	r        rate.Limit // refill rate (messages per second)
	burst    int        // max burst size
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos, shared between Wait and the cleanup loop
}

// NewSendLimiter creates a send limiter.
// mpm is messages per minute per chat, burst is the max burst allowed.
// If mpm <= 0, the limiter is effectively disabled (always allows).
func NewSendLimiter(mpm, burst int) *SendLimiter {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if mpm > 0 {
		r = rate.Limit(float64(mpm) / 60.0)
	}
	sl := &SendLimiter{r: r, burst: burst}

	// Periodic cleanup of stale entries (every 5 minutes)
	go sl.cleanupLoop()

	return sl
}

// Wait blocks until the chat may send another message, or ctx is done.
// Notifications queue rather than drop: a late pairing code still matters.
func (sl *SendLimiter) Wait(ctx context.Context, key string) error {
	if sl == nil || sl.r == 0 {
		return nil // disabled
	}
	entry := sl.getOrCreate(key)
	entry.lastSeen.Store(time.Now().UnixNano())
	if err := entry.limiter.Wait(ctx); err != nil {
		return err
	}
	return nil
}

// Enabled returns true if the limiter is active.
func (sl *SendLimiter) Enabled() bool {
	return sl != nil && sl.r > 0
}

func (sl *SendLimiter) getOrCreate(key string) *limiterEntry {
	if v, ok := sl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{limiter: rate.NewLimiter(sl.r, sl.burst)}
	entry.lastSeen.Store(time.Now().UnixNano())
	actual, _ := sl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

func (sl *SendLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		sl.cleanup()
	}
}

func (sl *SendLimiter) cleanup() {
	cutoff := time.Now().Add(-10 * time.Minute).UnixNano()
	sl.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		if entry.lastSeen.Load() < cutoff {
			sl.limiters.Delete(key)
		}
		return true
	})
}
