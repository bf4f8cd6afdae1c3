package providers

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// rateLimitState tracks a provider's remaining request quota across
// calls. It is shared by all goroutines using one client.
type rateLimitState struct {
	mu        sync.Mutex
	remaining int
	resetAt   time.Time

	threshold int
	sleepCap  time.Duration
}

func newRateLimitState(threshold int, sleepCap time.Duration) *rateLimitState {
	return &rateLimitState{
		remaining: 1000,
		threshold: threshold,
		sleepCap:  sleepCap,
	}
}

// wait blocks until the provider's limit window resets if the tracked
// quota has dropped to the threshold. The sleep is capped and respects
// context cancellation.
func (r *rateLimitState) wait(ctx context.Context, log *zap.Logger) error {
	r.mu.Lock()
	remaining := r.remaining
	resetAt := r.resetAt
	r.mu.Unlock()

	if remaining > r.threshold {
		return nil
	}

	waitFor := time.Until(resetAt)
	if waitFor <= 0 {
		return nil
	}
	if waitFor > r.sleepCap {
		waitFor = r.sleepCap
	}

	log.Warn("rate limit approaching, backing off",
		zap.Int("remaining", remaining),
		zap.Duration("wait", waitFor),
	)

	timer := time.NewTimer(waitFor)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// updateFromHeaders refreshes the tracked quota from standard
// x-ratelimit response headers. Missing or malformed headers leave the
// previous state untouched.
func (r *rateLimitState) updateFromHeaders(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v := h.Get("x-ratelimit-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.remaining = n
		}
	}
	if v := h.Get("x-ratelimit-reset"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			r.resetAt = time.Unix(ts, 0)
		}
	}
}

// consumeLocal decrements a locally estimated quota for providers that
// do not report limits in headers. The window resets to perMinute once
// a minute.
func (r *rateLimitState) consumeLocal(perMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.After(r.resetAt) {
		r.remaining = perMinute
		r.resetAt = now.Add(time.Minute)
	}
	if r.remaining > 0 {
		r.remaining--
	}
}

// snapshot returns the current remaining quota.
func (r *rateLimitState) snapshot() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}
