package relay

import (
	"sync"
	"time"
)

// SessionLimiter applies a token bucket per session id. Each dispatch
// consumes one token; tokens refill continuously at rate/per. A session
// with an empty bucket is rejected immediately rather than queued, and the
// caller receives an ErrRateLimited with the time until the next token.
//
// Defaults allow 5 dispatches per 10 seconds per session.
type SessionLimiter struct {
	mu      sync.Mutex
	rate    float64
	per     time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// LimiterOption configures a SessionLimiter.
type LimiterOption func(*SessionLimiter)

// LimiterRate sets the number of tokens granted per refill period.
func LimiterRate(n int) LimiterOption {
	return func(l *SessionLimiter) { l.rate = float64(n) }
}

// LimiterPer sets the refill period.
func LimiterPer(d time.Duration) LimiterOption {
	return func(l *SessionLimiter) { l.per = d }
}

// NewSessionLimiter creates a limiter with the default 5-per-10s budget.
func NewSessionLimiter(opts ...LimiterOption) *SessionLimiter {
	l := &SessionLimiter{
		rate:    5,
		per:     10 * time.Second,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one token for sessionID. On rejection the returned
// error is an *ErrRateLimited carrying the retry-after hint.
func (l *SessionLimiter) Allow(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[sessionID]
	if !ok {
		b = &bucket{tokens: l.rate, last: now}
		l.buckets[sessionID] = b
	}

	// Continuous refill since last touch, capped at the bucket size.
	perSecond := l.rate / l.per.Seconds()
	b.tokens += now.Sub(b.last).Seconds() * perSecond
	if b.tokens > l.rate {
		b.tokens = l.rate
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return nil
	}
	return &ErrRateLimited{
		SessionID:  sessionID,
		RetryAfter: (1 - b.tokens) / perSecond,
	}
}
