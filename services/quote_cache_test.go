package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingFetcher hands out canned quotes and counts upstream calls
type countingFetcher struct {
	calls int64
	delay time.Duration
	err   error
	price float64
}

func (f *countingFetcher) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Quote{
		Symbol:       symbol,
		CurrentPrice: f.price,
	}, nil
}

// stubPriceStore is an in-memory PriceStore for tests
type stubPriceStore struct {
	mu        sync.Mutex
	quotes    map[string]*Quote
	prevClose map[string]float64
	cached    []string
}

func newStubPriceStore() *stubPriceStore {
	return &stubPriceStore{
		quotes:    make(map[string]*Quote),
		prevClose: make(map[string]float64),
	}
}

func (s *stubPriceStore) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes[symbol]
	if !ok {
		return nil, nil
	}
	copied := *q
	return &copied, nil
}

func (s *stubPriceStore) CacheQuote(ctx context.Context, q *Quote, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *q
	s.quotes[q.Symbol] = &stored
	s.cached = append(s.cached, q.Symbol)
	return nil
}

func (s *stubPriceStore) GetPreviousClose(ctx context.Context, symbol string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.prevClose[symbol]
	return prev, ok
}

func TestQuoteCacheCoalescesConcurrentFetches(t *testing.T) {
	fetcher := &countingFetcher{price: 150, delay: 20 * time.Millisecond}
	limiter := NewCallLimiter(60, time.Minute)
	qc := NewQuoteCache(fetcher, limiter, nil, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := qc.GetQuote(context.Background(), "AAPL")
			if err != nil {
				t.Errorf("GetQuote() error = %v", err)
				return
			}
			if q.CurrentPrice != 150 {
				t.Errorf("CurrentPrice = %v, want 150", q.CurrentPrice)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&fetcher.calls); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}
}

func TestQuoteCacheServesCachedWithinTTL(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	current := base

	fetcher := &countingFetcher{price: 99}
	limiter := NewCallLimiter(60, time.Minute)
	qc := NewQuoteCache(fetcher, limiter, nil, 5*time.Second)
	qc.now = func() time.Time { return current }

	if _, err := qc.GetQuote(context.Background(), "MSFT"); err != nil {
		t.Fatalf("first GetQuote() error = %v", err)
	}

	// Inside the TTL: no second upstream call
	current = base.Add(4 * time.Second)
	if _, err := qc.GetQuote(context.Background(), "MSFT"); err != nil {
		t.Fatalf("second GetQuote() error = %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", fetcher.calls)
	}

	// Past the TTL: refetch
	current = base.Add(6 * time.Second)
	if _, err := qc.GetQuote(context.Background(), "MSFT"); err != nil {
		t.Fatalf("third GetQuote() error = %v", err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("upstream calls = %d, want 2", fetcher.calls)
	}
}

func TestQuoteCacheDistinctSymbolsFetchIndependently(t *testing.T) {
	fetcher := &countingFetcher{price: 10}
	limiter := NewCallLimiter(60, time.Minute)
	qc := NewQuoteCache(fetcher, limiter, nil, 5*time.Second)

	for _, symbol := range []string{"AAPL", "MSFT", "NVDA"} {
		if _, err := qc.GetQuote(context.Background(), symbol); err != nil {
			t.Fatalf("GetQuote(%s) error = %v", symbol, err)
		}
	}
	if fetcher.calls != 3 {
		t.Fatalf("upstream calls = %d, want 3", fetcher.calls)
	}
}

func TestQuoteCacheNormalizesSymbol(t *testing.T) {
	fetcher := &countingFetcher{price: 10}
	limiter := NewCallLimiter(60, time.Minute)
	qc := NewQuoteCache(fetcher, limiter, nil, 5*time.Second)

	q, err := qc.GetQuote(context.Background(), "  aapl ")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if q.Symbol != "AAPL" {
		t.Fatalf("Symbol = %q, want AAPL", q.Symbol)
	}

	// Same symbol in another spelling hits the cache
	if _, err := qc.GetQuote(context.Background(), "AAPL"); err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", fetcher.calls)
	}
}

func TestQuoteCacheRateLimited(t *testing.T) {
	fetcher := &countingFetcher{price: 10}
	limiter := NewCallLimiter(0, time.Minute)
	qc := NewQuoteCache(fetcher, limiter, nil, 5*time.Second)

	_, err := qc.GetQuote(context.Background(), "AAPL")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("GetQuote() error = %v, want ErrRateLimited", err)
	}
	if fetcher.calls != 0 {
		t.Fatalf("upstream calls = %d, want 0 when rate limited", fetcher.calls)
	}
}

func TestQuoteCacheServesFreshStoreEntry(t *testing.T) {
	fetcher := &countingFetcher{price: 10}
	limiter := NewCallLimiter(60, time.Minute)
	store := newStubPriceStore()
	store.quotes["AAPL"] = &Quote{Symbol: "AAPL", CurrentPrice: 149, FetchedAt: time.Now()}
	qc := NewQuoteCache(fetcher, limiter, store, 5*time.Second)

	q, err := qc.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if q.CurrentPrice != 149 {
		t.Fatalf("CurrentPrice = %v, want the stored 149", q.CurrentPrice)
	}
	if fetcher.calls != 0 {
		t.Fatalf("upstream calls = %d, want 0 on a store hit", fetcher.calls)
	}
}

func TestQuoteCacheFillsPercentChangeFromWarmedPrevClose(t *testing.T) {
	// The fetcher reports no daily change; the warmed previous close
	// supplies the baseline.
	fetcher := &countingFetcher{price: 110}
	limiter := NewCallLimiter(60, time.Minute)
	store := newStubPriceStore()
	store.prevClose["AAPL"] = 100
	qc := NewQuoteCache(fetcher, limiter, store, 5*time.Second)

	q, err := qc.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if q.PercentChange != 10 {
		t.Fatalf("PercentChange = %v, want 10 derived from warmed prev close", q.PercentChange)
	}
	if q.PreviousClose != 100 {
		t.Fatalf("PreviousClose = %v, want 100", q.PreviousClose)
	}
	if len(store.cached) != 1 {
		t.Fatalf("store writes = %d, want the fetched quote written back", len(store.cached))
	}
}

func TestQuoteCacheEmptySymbol(t *testing.T) {
	fetcher := &countingFetcher{price: 10}
	limiter := NewCallLimiter(60, time.Minute)
	qc := NewQuoteCache(fetcher, limiter, nil, 5*time.Second)

	_, err := qc.GetQuote(context.Background(), "   ")
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("GetQuote() error = %v, want ErrSymbolNotFound", err)
	}
}
