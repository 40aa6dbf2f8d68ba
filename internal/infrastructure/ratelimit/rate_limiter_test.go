package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(rl *RateLimiter, t time.Time) *time.Time {
	current := t
	rl.now = func() time.Time { return current }
	return &current
}

func TestAllowConsumesBurstThenWaits(t *testing.T) {
	rl := NewRateLimiter(map[string]Policy{ActionSendMessage: {PerMinute: 60, Burst: 2}})
	clock := fixedClock(rl, time.Unix(1_700_000_000, 0))

	ok, _ := rl.Allow("alice", ActionSendMessage)
	assert.True(t, ok)
	ok, _ = rl.Allow("alice", ActionSendMessage)
	assert.True(t, ok)

	ok, wait := rl.Allow("alice", ActionSendMessage)
	assert.False(t, ok)
	assert.InDelta(t, time.Second.Seconds(), wait.Seconds(), 0.01)

	*clock = clock.Add(time.Second)
	ok, _ = rl.Allow("alice", ActionSendMessage)
	assert.True(t, ok)
}

func TestBucketsAreIsolatedPerUserAndAction(t *testing.T) {
	rl := NewRateLimiter(map[string]Policy{ActionTyping: {PerMinute: 1, Burst: 1}})
	fixedClock(rl, time.Unix(1_700_000_000, 0))

	ok, _ := rl.Allow("alice", ActionTyping)
	assert.True(t, ok)
	ok, _ = rl.Allow("alice", ActionTyping)
	assert.False(t, ok)

	ok, _ = rl.Allow("bob", ActionTyping)
	assert.True(t, ok)
	ok, _ = rl.Allow("alice", ActionSendMessage)
	assert.True(t, ok)
}

func TestCleanupRemovesIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(nil)
	clock := fixedClock(rl, time.Unix(1_700_000_000, 0))

	rl.Allow("alice", ActionTyping)
	rl.Allow("bob", ActionTyping)

	*clock = clock.Add(2 * time.Hour)
	rl.Allow("bob", ActionTyping)

	assert.Equal(t, 1, rl.Cleanup(time.Hour))
}
