package runtime

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiter keeps one token bucket per agent. A nil rateLimiter allows
// everything.
type rateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	messagesPerSecond float64
	burst             int
}

func newRateLimiter(messagesPerSecond float64, burst int) *rateLimiter {
	if messagesPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limiters:          make(map[string]*rate.Limiter),
		messagesPerSecond: messagesPerSecond,
		burst:             burst,
	}
}

// allow reports whether a message to agentID may be delivered now
func (rl *rateLimiter) allow(agentID string) bool {
	if rl == nil {
		return true
	}
	return rl.limiter(agentID).Allow()
}

// wait blocks until a message to agentID may be delivered
func (rl *rateLimiter) wait(ctx context.Context, agentID string) error {
	if rl == nil {
		return nil
	}
	if err := rl.limiter(agentID).Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRateLimited, agentID, err)
	}
	return nil
}

func (rl *rateLimiter) forget(agentID string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, agentID)
}

// limiter gets or creates the bucket for agentID
func (rl *rateLimiter) limiter(agentID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[agentID]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := rl.limiters[agentID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(rl.messagesPerSecond), rl.burst)
	rl.limiters[agentID] = limiter
	return limiter
}
