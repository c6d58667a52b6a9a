package ledger

import (
	"context"
	"sync"
	"time"
)

// DefaultProbeCacheTTL bounds how often the liveness probe actually hits the
// ledger. Every write-capable operation checks reachability first, so the
// result is cached briefly to avoid hammering the ledger node per call.
const DefaultProbeCacheTTL = 5 * time.Second

// CachedProbe wraps a Client and memoizes IsReachable for a short TTL.
// Submit and view calls pass through unchanged.
type CachedProbe struct {
	Client

	ttl time.Duration
	now func() time.Time // for testability

	mu        sync.Mutex
	reachable bool
	checkedAt time.Time
}

// NewCachedProbe wraps the client with a TTL-cached liveness probe.
// A non-positive ttl falls back to DefaultProbeCacheTTL.
func NewCachedProbe(client Client, ttl time.Duration) *CachedProbe {
	if ttl <= 0 {
		ttl = DefaultProbeCacheTTL
	}
	return &CachedProbe{
		Client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

// IsReachable returns the cached probe result, refreshing it when the TTL
// has elapsed. Concurrent callers within one TTL window share one probe.
func (p *CachedProbe) IsReachable(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.checkedAt.IsZero() && p.now().Sub(p.checkedAt) < p.ttl {
		return p.reachable
	}

	p.reachable = p.Client.IsReachable(ctx)
	p.checkedAt = p.now()
	return p.reachable
}

// Invalidate drops the cached probe result so the next check hits the
// ledger. Called after an unexpected ErrUnreachable on a submit path.
func (p *CachedProbe) Invalidate() {
	p.mu.Lock()
	p.checkedAt = time.Time{}
	p.mu.Unlock()
}
