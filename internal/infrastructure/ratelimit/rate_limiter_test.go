package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(policy Policy) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(policy)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

func TestAllowBurstThenDeny(t *testing.T) {
	rl, clock := newTestLimiter(Policy{PerMinute: 6, Burst: 3})

	for i := 0; i < 3; i++ {
		ok, wait := rl.Allow("u1", ActionSendMessage)
		assert.True(t, ok, "send %d", i)
		assert.Zero(t, wait)
	}

	ok, wait := rl.Allow("u1", ActionSendMessage)
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, wait)

	// A denied request does not consume the refill.
	*clock = clock.Add(10 * time.Second)
	ok, _ = rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)
}

func TestAllowIsPerParticipantAndAction(t *testing.T) {
	rl, _ := newTestLimiter(Policy{PerMinute: 1, Burst: 1})

	ok, _ := rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", ActionSendMessage)
	assert.False(t, ok)

	ok, _ = rl.Allow("d9", ActionSendMessage)
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", ActionPushTest)
	assert.True(t, ok)
}

func TestTokensAndCleanup(t *testing.T) {
	rl, clock := newTestLimiter(Policy{PerMinute: 60, Burst: 5})

	tokens, burst := rl.Tokens("u1", ActionSendMessage)
	assert.Equal(t, 5.0, tokens)
	assert.Equal(t, 5, burst)

	rl.Allow("u1", ActionSendMessage)
	tokens, _ = rl.Tokens("u1", ActionSendMessage)
	assert.InDelta(t, 4.0, tokens, 0.001)

	assert.Equal(t, 0, rl.Cleanup(time.Hour))
	*clock = clock.Add(2 * time.Hour)
	assert.Equal(t, 1, rl.Cleanup(time.Hour))
}
