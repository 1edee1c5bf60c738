package room

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ConnLimiterConfig configures the per-connection message rate limit:
// more than 60 messages/sec gets rate_limited and dropped, never
// disconnected.
type ConnLimiterConfig struct {
	MessagesPerSecond float64
	Burst             int
}

// DefaultConnLimiterConfig is the 60/s protocol cap with a small burst
// allowance for a client catching up after a GC pause.
var DefaultConnLimiterConfig = ConnLimiterConfig{
	MessagesPerSecond: 60,
	Burst:             10,
}

type connLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ConnRateLimiter is the per-connection twin of the HTTP layer's
// per-IP ClientGate: a lazily-populated sync.Map of *rate.Limiter,
// keyed by connection instead of by IP, with the same periodic
// staleness sweep.
type ConnRateLimiter struct {
	limiters sync.Map // map[string]*connLimiterEntry
	config   ConnLimiterConfig
	stopChan chan struct{}
	stopOnce sync.Once

	rejectedCount uint64
	allowedCount  uint64
}

func NewConnRateLimiter(cfg ConnLimiterConfig) *ConnRateLimiter {
	rl := &ConnRateLimiter{config: cfg, stopChan: make(chan struct{})}
	go rl.cleanupLoop()
	return rl
}

func (rl *ConnRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

func (rl *ConnRateLimiter) getLimiter(connID string) *rate.Limiter {
	now := time.Now()
	if entry, ok := rl.limiters.Load(connID); ok {
		e := entry.(*connLimiterEntry)
		e.lastSeen = now
		return e.limiter
	}
	entry := &connLimiterEntry{
		limiter:  rate.NewLimiter(rate.Limit(rl.config.MessagesPerSecond), rl.config.Burst),
		lastSeen: now,
	}
	actual, _ := rl.limiters.LoadOrStore(connID, entry)
	return actual.(*connLimiterEntry).limiter
}

// Allow reports whether the next message from connID stays under the
// per-connection cap.
func (rl *ConnRateLimiter) Allow(connID string) bool {
	if rl.getLimiter(connID).Allow() {
		atomic.AddUint64(&rl.allowedCount, 1)
		return true
	}
	atomic.AddUint64(&rl.rejectedCount, 1)
	return false
}

// Forget drops a connection's limiter on disconnect so the map doesn't
// accumulate entries for short-lived connections between sweeps.
func (rl *ConnRateLimiter) Forget(connID string) {
	rl.limiters.Delete(connID)
}

func (rl *ConnRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			rl.limiters.Range(func(key, value interface{}) bool {
				if value.(*connLimiterEntry).lastSeen.Before(cutoff) {
					rl.limiters.Delete(key)
				}
				return true
			})
		}
	}
}
