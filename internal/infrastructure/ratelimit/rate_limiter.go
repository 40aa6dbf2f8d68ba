package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionTyping      = "typing"
	ActionHTTP        = "http"
)

// Policy is a sustained per-minute budget with a burst allowance.
type Policy struct {
	PerMinute int
	Burst     int
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per user and action.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*entry
	policies map[string]Policy
	fallback Policy
	now      func() time.Time
}

// DefaultPolicies are used for actions not overridden by configuration.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		ActionSendMessage: {PerMinute: 30, Burst: 10},
		ActionTyping:      {PerMinute: 30, Burst: 5},
		ActionHTTP:        {PerMinute: 300, Burst: 60},
	}
}

func NewRateLimiter(policies map[string]Policy) *RateLimiter {
	merged := DefaultPolicies()
	for action, p := range policies {
		merged[action] = p
	}
	return &RateLimiter{
		buckets:  make(map[string]*entry),
		policies: merged,
		fallback: Policy{PerMinute: 20, Burst: 20},
		now:      time.Now,
	}
}

// Allow consumes a token for the action. When the bucket is empty it returns
// false and how long until the next token.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	now := rl.now()
	limiter := rl.get(userID+":"+action, action, now)

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Minute
	}
	delay := reservation.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	reservation.CancelAt(now)
	return false, delay
}

func (rl *RateLimiter) get(key, action string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if e, ok := rl.buckets[key]; ok {
		e.lastSeen = now
		return e.limiter
	}

	policy, ok := rl.policies[action]
	if !ok {
		policy = rl.fallback
	}
	if policy.PerMinute <= 0 {
		policy.PerMinute = rl.fallback.PerMinute
	}
	if policy.Burst <= 0 {
		policy.Burst = 1
	}

	l := rate.NewLimiter(rate.Limit(float64(policy.PerMinute)/60.0), policy.Burst)
	rl.buckets[key] = &entry{limiter: l, lastSeen: now}
	return l
}

// Cleanup drops buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, e := range rl.buckets {
		if now.Sub(e.lastSeen) > maxIdle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			}
		}
	}()
}
