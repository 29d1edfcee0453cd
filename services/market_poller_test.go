package services

import (
	"testing"
	"time"
)

func TestPollerBroadcastsWatchedSymbols(t *testing.T) {
	h := NewHub()
	c := testClient(t, h, 8, 1)
	h.Subscribe(c, []string{"AAPL"})

	quotes := newStubQuotes()
	quotes.set("AAPL", 150, 1.0, 0)

	p := NewMarketPoller(h, quotes, time.Second)
	p.pollOnce(make(chan struct{}))

	msg := receive(t, c)
	if msg.Type != "quote_update" {
		t.Fatalf("Type = %q, want quote_update", msg.Type)
	}
}

func TestPollerIdleWithoutSubscribers(t *testing.T) {
	h := NewHub()
	quotes := newStubQuotes()
	// No quotes configured: a fetch would error, but none must happen
	p := NewMarketPoller(h, quotes, time.Second)
	p.pollOnce(make(chan struct{}))
}

func TestPollerStartStopIdempotent(t *testing.T) {
	h := NewHub()
	p := NewMarketPoller(h, newStubQuotes(), 10*time.Millisecond)

	p.Start()
	p.Start()
	p.Stop()
	p.Stop()
}

func TestPollerSkipsFailingSymbol(t *testing.T) {
	h := NewHub()
	appleClient := subscribedClient(t, h, "AAPL")
	teslaClient := subscribedClient(t, h, "TSLA")

	quotes := newStubQuotes()
	quotes.fail("AAPL", ErrRateLimited)
	quotes.set("TSLA", 250, -1.0, 0)

	p := NewMarketPoller(h, quotes, time.Second)
	p.pollOnce(make(chan struct{}))

	if len(appleClient.send) != 0 {
		t.Fatal("failed symbol should not be broadcast")
	}
	if len(teslaClient.send) != 1 {
		t.Fatalf("TSLA client queued %d messages, want 1", len(teslaClient.send))
	}
}

func subscribedClient(t *testing.T, h *Hub, symbol string) *HubClient {
	t.Helper()
	c := testClient(t, h, 8, 1)
	h.Subscribe(c, []string{symbol})
	return c
}
