package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// MarketPoller periodically fetches every symbol with at least one live
// subscriber and broadcasts the result through the hub. Going through
// the quote cache means the poller, the schedulers and ad-hoc API
// requests all share the same single-flighted fetches.
type MarketPoller struct {
	hub      *Hub
	quotes   QuoteGetter
	interval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewMarketPoller creates a poller broadcasting on the given interval
func NewMarketPoller(hub *Hub, quotes QuoteGetter, interval time.Duration) *MarketPoller {
	return &MarketPoller{
		hub:      hub,
		quotes:   quotes,
		interval: interval,
	}
}

// Start launches the polling loop
func (p *MarketPoller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})
	stop := p.stopChan
	p.mu.Unlock()

	go p.run(stop)
	log.Printf("Market poller started, interval: %v", p.interval)
}

// Stop halts the polling loop
func (p *MarketPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stopChan)
	p.running = false
	log.Println("Market poller stopped")
}

func (p *MarketPoller) run(stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.pollOnce(stop)
		}
	}
}

// pollOnce pushes one round of updates for all watched symbols
func (p *MarketPoller) pollOnce(stop chan struct{}) {
	symbols := p.hub.SubscribedSymbols()
	if len(symbols) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	for _, symbol := range symbols {
		select {
		case <-stop:
			return
		default:
		}

		quote, err := p.quotes.GetQuote(ctx, symbol)
		if err != nil {
			log.Printf("Poller skipping %s: %v", symbol, err)
			continue
		}
		p.hub.BroadcastQuote(symbol, quote)
	}
}
