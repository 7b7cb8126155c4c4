package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionPushTest    = "push_test"
	ActionHTTP        = "http"
)

// Policy is the refill rate and burst size for one action.
type Policy struct {
	PerMinute int
	Burst     int
}

func (p Policy) limit() rate.Limit {
	return rate.Every(time.Minute / time.Duration(p.PerMinute))
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter keeps one token bucket per participant and action.
type RateLimiter struct {
	policies map[string]Policy
	fallback Policy
	buckets  map[string]*bucket
	mutex    sync.Mutex
	now      func() time.Time
}

// NewRateLimiter uses sendPolicy for message sends. Other actions get a
// fixed slower policy.
func NewRateLimiter(sendPolicy Policy) *RateLimiter {
	return &RateLimiter{
		policies: map[string]Policy{
			ActionSendMessage: sendPolicy,
			ActionPushTest:    {PerMinute: 2, Burst: 2},
			ActionHTTP:        {PerMinute: 120, Burst: 60},
		},
		fallback: Policy{PerMinute: 20, Burst: 20},
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

func (rl *RateLimiter) policyFor(action string) Policy {
	if p, ok := rl.policies[action]; ok && p.PerMinute > 0 && p.Burst > 0 {
		return p
	}
	return rl.fallback
}

// Allow consumes a token for the participant's action. When none is
// available it returns false and the time until the next one.
func (rl *RateLimiter) Allow(participantID, action string) (bool, time.Duration) {
	key := participantID + ":" + action
	now := rl.now()

	rl.mutex.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		p := rl.policyFor(action)
		b = &bucket{limiter: rate.NewLimiter(p.limit(), p.Burst)}
		rl.buckets[key] = b
	}
	b.lastUsed = now
	rl.mutex.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// Tokens reports the tokens currently available for the participant's action.
func (rl *RateLimiter) Tokens(participantID, action string) (tokens float64, burst int) {
	rl.mutex.Lock()
	b, ok := rl.buckets[participantID+":"+action]
	rl.mutex.Unlock()

	if !ok {
		p := rl.policyFor(action)
		return float64(p.Burst), p.Burst
	}
	return b.limiter.TokensAt(rl.now()), b.limiter.Burst()
}

// Cleanup removes buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastUsed) > maxIdle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine prunes idle buckets until ctx is done.
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
