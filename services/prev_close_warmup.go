package services

import (
	"context"
	"errors"
	"log"
	"time"
)

// SymbolSource lists every symbol referenced by an active alert or a
// sector basket.
type SymbolSource interface {
	LoadTrackedSymbols() ([]string, error)
}

// PrevCloseWarmup runs once a day, before market open, and caches the
// previous close for every tracked symbol. Calls are paced through the
// shared limiter so the warm-up can never blow the provider quota out
// from under the evaluators.
type PrevCloseWarmup struct {
	symbols SymbolSource
	fetcher QuoteFetcher
	limiter *CallLimiter
	store   *LivePriceStore
	pause   time.Duration
}

// NewPrevCloseWarmup creates the daily warm-up job
func NewPrevCloseWarmup(symbols SymbolSource, fetcher QuoteFetcher, limiter *CallLimiter, store *LivePriceStore) *PrevCloseWarmup {
	return &PrevCloseWarmup{
		symbols: symbols,
		fetcher: fetcher,
		limiter: limiter,
		store:   store,
		pause:   1100 * time.Millisecond,
	}
}

// Run fetches and caches the previous close for all tracked symbols
func (w *PrevCloseWarmup) Run(ctx context.Context) error {
	symbols, err := w.symbols.LoadTrackedSymbols()
	if err != nil {
		return err
	}
	log.Printf("Previous-close warm-up starting for %d symbols", len(symbols))

	for _, symbol := range symbols {
		// Wait out the limiter rather than skipping: the warm-up has
		// all morning, the quota does not.
		for !w.limiter.Allow() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.pause):
			}
		}

		quote, err := w.fetcher.FetchQuote(ctx, symbol)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Printf("Warm-up skipping %s: %v", symbol, err)
			continue
		}
		if quote.PreviousClose > 0 {
			if err := w.store.CachePreviousClose(ctx, symbol, quote.PreviousClose); err != nil {
				log.Printf("Warm-up failed to cache prev close for %s: %v", symbol, err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pause):
		}
	}

	log.Println("Previous-close warm-up completed")
	return nil
}
