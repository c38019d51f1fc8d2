package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Class groups endpoints that share one rate budget on the exchange side.
type Class string

const (
	ClassMarket  Class = "market"
	ClassTrade   Class = "trade"
	ClassAccount Class = "account"
)

// classFor maps a request path to its endpoint class. Unknown paths land
// in the market class, the most generous budget.
func classFor(path string) Class {
	switch {
	case strings.HasPrefix(path, "/api/v1/trade"):
		return ClassTrade
	case strings.HasPrefix(path, "/api/v1/account"):
		return ClassAccount
	default:
		return ClassMarket
	}
}

// ClassLimit is one class budget: Requests per fixed Window.
type ClassLimit struct {
	Requests int
	Window   time.Duration
}

// RateBudget owns the per-class token state. Tokens refill only when a
// window elapses; callers out of tokens block (cooperatively, honoring
// ctx) until the refill. Classes are independent: draining one never
// blocks another.
type RateBudget struct {
	mu      sync.Mutex
	buckets map[Class]*bucket
	now     func() time.Time
}

type bucket struct {
	limit     ClassLimit
	remaining int
	windowEnd time.Time
}

// NewRateBudget builds a budget from per-class limits. Classes without an
// entry are unlimited.
func NewRateBudget(limits map[Class]ClassLimit) *RateBudget {
	b := &RateBudget{
		buckets: make(map[Class]*bucket, len(limits)),
		now:     time.Now,
	}
	for class, lim := range limits {
		if lim.Requests <= 0 || lim.Window <= 0 {
			continue
		}
		b.buckets[class] = &bucket{limit: lim}
	}
	return b
}

// Acquire takes one token for class, blocking until one is available or
// ctx is done.
func (b *RateBudget) Acquire(ctx context.Context, class Class) error {
	for {
		wait, ok := b.tryAcquire(class)
		if ok {
			return nil
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("rate budget %s: %w", class, ctx.Err())
		case <-t.C:
		}
	}
}

// tryAcquire consumes a token if one is available; otherwise it returns
// how long until the window refills.
func (b *RateBudget) tryAcquire(class Class) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bk, ok := b.buckets[class]
	if !ok {
		return 0, true
	}

	now := b.now()
	if !now.Before(bk.windowEnd) {
		bk.remaining = bk.limit.Requests
		bk.windowEnd = now.Add(bk.limit.Window)
	}
	if bk.remaining > 0 {
		bk.remaining--
		return 0, true
	}
	return bk.windowEnd.Sub(now), false
}
