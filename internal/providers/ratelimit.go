package providers

import (
	"context"
	"sync"
	"time"
)

// rateLimitedModel gates every call through a RateLimiter.
type rateLimitedModel struct {
	Model
	limiter *RateLimiter
}

// WithRateLimit wraps m so calls never exceed requestsPerMinute. Provider
// 429s drain the bucket.
func WithRateLimit(m Model, requestsPerMinute int) Model {
	if requestsPerMinute <= 0 {
		return m
	}
	return &rateLimitedModel{Model: m, limiter: NewRateLimiter(requestsPerMinute)}
}

func (r *rateLimitedModel) GetCompletion(ctx context.Context, mode OperationMode, args *Args) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := r.Model.GetCompletion(ctx, mode, args)
	if rle, ok := IsRateLimitError(err); ok {
		r.limiter.Record429(rle.RetryAfter)
	}
	return resp, err
}

// RateLimiter is a token bucket sized to one minute of requests. A
// provider 429 with a retry-after hint pauses every caller until the hint
// expires.
type RateLimiter struct {
	mu sync.Mutex

	perMinute  int
	tokens     float64
	refilledAt time.Time
	pauseUntil time.Time

	consumed int64
	waited   time.Duration
	last429  time.Time
}

// RateLimiterStatus is a snapshot of a RateLimiter.
type RateLimiterStatus struct {
	Available   int           `json:"available"`
	PerMinute   int           `json:"per_minute"`
	Consumed    int64         `json:"consumed"`
	Waited      time.Duration `json:"waited"`
	PausedUntil time.Time     `json:"paused_until,omitempty"`
	Last429     time.Time     `json:"last_429,omitempty"`
}

// NewRateLimiter starts with a full bucket of requestsPerMinute tokens.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		perMinute:  requestsPerMinute,
		tokens:     float64(requestsPerMinute),
		refilledAt: time.Now(),
	}
}

// Wait takes one token, sleeping until one is available, the pause window
// has passed, or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		delay := r.reserve(time.Now())
		r.mu.Unlock()
		if delay == 0 {
			return nil
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
			r.mu.Lock()
			r.waited += delay
			r.mu.Unlock()
		}
	}
}

// reserve consumes a token and returns 0, or returns how long to sleep
// before trying again. Caller holds mu.
func (r *RateLimiter) reserve(now time.Time) time.Duration {
	if now.Before(r.pauseUntil) {
		return r.pauseUntil.Sub(now)
	}
	r.refill(now)
	if r.tokens >= 1 {
		r.tokens--
		r.consumed++
		return 0
	}
	perSecond := float64(r.perMinute) / 60
	return time.Duration((1 - r.tokens) / perSecond * float64(time.Second))
}

// Record429 notes a rate-limit response. A positive retryAfter empties the
// bucket and pauses callers for that long.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.last429 = now
	if retryAfter > 0 {
		r.tokens = 0
		r.refilledAt = now
		if until := now.Add(retryAfter); until.After(r.pauseUntil) {
			r.pauseUntil = until
		}
	}
}

// Status returns a snapshot of the limiter.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.refill(now)
	st := RateLimiterStatus{
		Available: int(r.tokens),
		PerMinute: r.perMinute,
		Consumed:  r.consumed,
		Waited:    r.waited,
		Last429:   r.last429,
	}
	if now.Before(r.pauseUntil) {
		st.PausedUntil = r.pauseUntil
	}
	return st
}

func (r *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(r.refilledAt)
	if elapsed <= 0 {
		return
	}
	r.refilledAt = now
	r.tokens += elapsed.Minutes() * float64(r.perMinute)
	if limit := float64(r.perMinute); r.tokens > limit {
		r.tokens = limit
	}
}
