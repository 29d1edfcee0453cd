package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// QuoteGetter is what the evaluators and the request layer consume
type QuoteGetter interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// PriceStore is the optional shared cache level behind the in-memory
// map, normally Redis.
type PriceStore interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	CacheQuote(ctx context.Context, q *Quote, ttl time.Duration) error
	GetPreviousClose(ctx context.Context, symbol string) (float64, bool)
}

// QuoteCache is a short-TTL cache in front of the quote provider.
// Misses for the same symbol are coalesced into a single upstream fetch,
// so the two schedulers and ad-hoc API requests never duplicate calls
// for a symbol while unrelated symbols fetch fully in parallel.
type QuoteCache struct {
	fetcher QuoteFetcher
	limiter *CallLimiter
	store   PriceStore // optional second level, may be nil
	ttl     time.Duration

	mu      sync.RWMutex
	entries map[string]*Quote

	group singleflight.Group
	now   func() time.Time
}

// NewQuoteCache creates a quote cache with the given freshness TTL
func NewQuoteCache(fetcher QuoteFetcher, limiter *CallLimiter, store PriceStore, ttl time.Duration) *QuoteCache {
	return &QuoteCache{
		fetcher: fetcher,
		limiter: limiter,
		store:   store,
		ttl:     ttl,
		entries: make(map[string]*Quote),
		now:     time.Now,
	}
}

// GetQuote returns a quote no older than the TTL, fetching upstream at
// most once per symbol regardless of how many callers are waiting.
func (qc *QuoteCache) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("get quote: %w", ErrSymbolNotFound)
	}

	if q, ok := qc.cached(symbol); ok {
		return q, nil
	}

	v, err, _ := qc.group.Do(symbol, func() (interface{}, error) {
		// A concurrent flight may have filled the cache while this
		// caller was queueing on the flight group.
		if q, ok := qc.cached(symbol); ok {
			return q, nil
		}

		if qc.store != nil {
			if q, err := qc.store.GetQuote(ctx, symbol); err != nil {
				log.Printf("Redis quote lookup failed for %s: %v", symbol, err)
			} else if q != nil && qc.fresh(q) {
				qc.put(q)
				return q, nil
			}
		}

		if !qc.limiter.Allow() {
			return nil, fmt.Errorf("fetching quote for %s: %w", symbol, ErrRateLimited)
		}

		q, err := qc.fetcher.FetchQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if q.FetchedAt.IsZero() {
			q.FetchedAt = qc.now()
		}
		qc.fillPercentChange(ctx, q)

		qc.put(q)
		if qc.store != nil {
			if err := qc.store.CacheQuote(ctx, q, qc.ttl); err != nil {
				log.Printf("Redis quote write failed for %s: %v", symbol, err)
			}
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Quote), nil
}

// fillPercentChange falls back to the warmed previous close when the
// provider gave no usable change figure for the day.
func (qc *QuoteCache) fillPercentChange(ctx context.Context, q *Quote) {
	if q.PercentChange != 0 || q.CurrentPrice <= 0 || qc.store == nil {
		return
	}
	prev, ok := qc.store.GetPreviousClose(ctx, q.Symbol)
	if !ok || prev <= 0 {
		return
	}
	if q.PreviousClose == 0 {
		q.PreviousClose = prev
	}
	q.PercentChange = (q.CurrentPrice - prev) / prev * 100
}

// cached returns the in-memory entry if it is still fresh
func (qc *QuoteCache) cached(symbol string) (*Quote, bool) {
	qc.mu.RLock()
	defer qc.mu.RUnlock()

	q, ok := qc.entries[symbol]
	if !ok || !qc.fresh(q) {
		return nil, false
	}
	return q, true
}

func (qc *QuoteCache) fresh(q *Quote) bool {
	return qc.now().Sub(q.FetchedAt) < qc.ttl
}

func (qc *QuoteCache) put(q *Quote) {
	qc.mu.Lock()
	qc.entries[q.Symbol] = q
	qc.mu.Unlock()
}
