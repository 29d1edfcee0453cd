package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock_alert_backend/models"
)

// memoryAlertStore is an in-memory AlertStore for tests
type memoryAlertStore struct {
	mu        sync.Mutex
	alerts    map[uint]*models.Alert
	failSaves int
}

func newMemoryAlertStore(alerts ...models.Alert) *memoryAlertStore {
	s := &memoryAlertStore{alerts: make(map[uint]*models.Alert)}
	for i := range alerts {
		a := alerts[i]
		s.alerts[a.ID] = &a
	}
	return s
}

func (s *memoryAlertStore) LoadActiveAlerts() ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Alert
	for _, a := range s.alerts {
		if a.Status == models.AlertStatusActive ||
			(a.Status == models.AlertStatusTriggered && a.IsRepeating) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *memoryAlertStore) SaveAlert(a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSaves > 0 {
		s.failSaves--
		return errors.New("connection reset")
	}
	stored := *a
	s.alerts[a.ID] = &stored
	return nil
}

func (s *memoryAlertStore) get(id uint) models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.alerts[id]
}

// stubQuotes serves fixed quotes without touching any provider
type stubQuotes struct {
	mu     sync.Mutex
	quotes map[string]*Quote
	errs   map[string]error
}

func newStubQuotes() *stubQuotes {
	return &stubQuotes{quotes: make(map[string]*Quote), errs: make(map[string]error)}
}

func (s *stubQuotes) set(symbol string, price, percentChange float64, volume int64) {
	s.mu.Lock()
	s.quotes[symbol] = &Quote{
		Symbol:        symbol,
		CurrentPrice:  price,
		PercentChange: percentChange,
		Volume:        volume,
	}
	s.mu.Unlock()
}

func (s *stubQuotes) fail(symbol string, err error) {
	s.mu.Lock()
	s.errs[symbol] = err
	s.mu.Unlock()
}

func (s *stubQuotes) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errs[symbol]; err != nil {
		return nil, err
	}
	q, ok := s.quotes[symbol]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	copied := *q
	return &copied, nil
}

// testEngine wires an engine to in-memory stores with a stepping clock
func testEngine(store *memoryAlertStore, quotes *stubQuotes) (*AlertEngine, *memoryNotificationStore, func(time.Duration)) {
	notifStore := newMemoryNotificationStore()
	dispatcher := NewDispatcher(notifStore)
	engine := NewAlertEngine(store, quotes, dispatcher)

	current := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	engine.now = func() time.Time { return current }
	notifStore.now = engine.now

	advance := func(d time.Duration) { current = current.Add(d) }
	return engine, notifStore, advance
}

func TestAlertTriggersOnceAtThresholdCrossing(t *testing.T) {
	store := newMemoryAlertStore(models.Alert{
		ID:             1,
		UserID:         10,
		Symbol:         "AAPL",
		AlertType:      models.AlertPriceAbove,
		ThresholdValue: decimal.NewFromInt(150),
		Status:         models.AlertStatusActive,
	})
	quotes := newStubQuotes()
	engine, notifStore, advance := testEngine(store, quotes)

	quotes.set("AAPL", 148, 0.5, 0)
	triggered, err := engine.RunTick(context.Background())
	if err != nil || triggered != 0 {
		t.Fatalf("tick below threshold: triggered=%d err=%v, want 0 nil", triggered, err)
	}
	if got := store.get(1); got.Status != models.AlertStatusActive {
		t.Fatalf("Status = %q, want active", got.Status)
	}
	if got := store.get(1); got.LastCheckedAt == nil {
		t.Fatal("LastCheckedAt not updated on a quiet tick")
	}

	advance(time.Minute)
	quotes.set("AAPL", 151, 1.2, 0)
	triggered, err = engine.RunTick(context.Background())
	if err != nil || triggered != 1 {
		t.Fatalf("tick above threshold: triggered=%d err=%v, want 1 nil", triggered, err)
	}

	got := store.get(1)
	if got.Status != models.AlertStatusTriggered {
		t.Fatalf("Status = %q, want triggered", got.Status)
	}
	if !got.TriggerPrice.Valid || !got.TriggerPrice.Decimal.Equal(decimal.NewFromInt(151)) {
		t.Fatalf("TriggerPrice = %v, want 151", got.TriggerPrice)
	}
	if got.TriggeredAt == nil {
		t.Fatal("TriggeredAt not set")
	}
	if notifStore.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifStore.count())
	}

	// Non-repeating: still past the threshold next tick, no re-fire
	advance(time.Minute)
	quotes.set("AAPL", 152, 1.5, 0)
	triggered, err = engine.RunTick(context.Background())
	if err != nil || triggered != 0 {
		t.Fatalf("tick after trigger: triggered=%d err=%v, want 0 nil", triggered, err)
	}
	if notifStore.count() != 1 {
		t.Fatalf("notifications = %d, want still 1", notifStore.count())
	}
}

func TestRepeatingAlertRearmsWhenConditionClears(t *testing.T) {
	store := newMemoryAlertStore(models.Alert{
		ID:             2,
		UserID:         10,
		Symbol:         "AAPL",
		AlertType:      models.AlertPriceAbove,
		ThresholdValue: decimal.NewFromInt(150),
		IsRepeating:    true,
		Status:         models.AlertStatusActive,
	})
	quotes := newStubQuotes()
	engine, notifStore, advance := testEngine(store, quotes)

	// Crossing fires
	quotes.set("AAPL", 151, 1.0, 0)
	if n, _ := engine.RunTick(context.Background()); n != 1 {
		t.Fatalf("first crossing: triggered=%d, want 1", n)
	}

	// Drop back below: rearm, no notification
	advance(time.Minute)
	quotes.set("AAPL", 149, -0.5, 0)
	if n, _ := engine.RunTick(context.Background()); n != 0 {
		t.Fatalf("rearm tick: triggered=%d, want 0", n)
	}
	if got := store.get(2); got.Status != models.AlertStatusActive {
		t.Fatalf("Status after rearm = %q, want active", got.Status)
	}

	// Second crossing fires again
	advance(time.Minute)
	quotes.set("AAPL", 152, 1.3, 0)
	if n, _ := engine.RunTick(context.Background()); n != 1 {
		t.Fatalf("second crossing: triggered=%d, want 1", n)
	}
	if notifStore.count() != 2 {
		t.Fatalf("notifications = %d, want 2", notifStore.count())
	}
}

func TestRepeatingAlertStaysLatchedWhileConditionHolds(t *testing.T) {
	store := newMemoryAlertStore(models.Alert{
		ID:             3,
		UserID:         10,
		Symbol:         "AAPL",
		AlertType:      models.AlertPriceAbove,
		ThresholdValue: decimal.NewFromInt(150),
		IsRepeating:    true,
		Status:         models.AlertStatusActive,
	})
	quotes := newStubQuotes()
	engine, notifStore, advance := testEngine(store, quotes)

	quotes.set("AAPL", 151, 1.0, 0)
	engine.RunTick(context.Background())

	// Price hovers above the threshold for three more ticks
	for i := 0; i < 3; i++ {
		advance(time.Minute)
		quotes.set("AAPL", 153, 1.4, 0)
		if n, _ := engine.RunTick(context.Background()); n != 0 {
			t.Fatalf("latched tick %d: triggered=%d, want 0", i, n)
		}
	}
	if notifStore.count() != 1 {
		t.Fatalf("notifications = %d, want 1 while latched", notifStore.count())
	}
}

func TestVolumeSpikeWaitsForBaselineWarmup(t *testing.T) {
	store := newMemoryAlertStore(models.Alert{
		ID:             4,
		UserID:         10,
		Symbol:         "NVDA",
		AlertType:      models.AlertVolumeSpike,
		ThresholdValue: decimal.NewFromInt(3),
		Status:         models.AlertStatusActive,
	})
	quotes := newStubQuotes()
	engine, notifStore, advance := testEngine(store, quotes)

	// Five warm-up ticks. Even a huge volume cannot fire before the
	// baseline has its minimum samples.
	for i := 0; i < 5; i++ {
		quotes.set("NVDA", 100, 0.1, 1000)
		if n, _ := engine.RunTick(context.Background()); n != 0 {
			t.Fatalf("warm-up tick %d: triggered=%d, want 0", i, n)
		}
		advance(time.Minute)
	}

	// Baseline is 1000; a 5x spike crosses the 3x threshold
	quotes.set("NVDA", 100, 0.1, 5000)
	if n, _ := engine.RunTick(context.Background()); n != 1 {
		t.Fatal("spike after warm-up did not trigger")
	}
	if notifStore.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifStore.count())
	}
}

func TestFailedStateWriteRetriesWithoutDuplicateNotification(t *testing.T) {
	store := newMemoryAlertStore(models.Alert{
		ID:             8,
		UserID:         10,
		Symbol:         "AAPL",
		AlertType:      models.AlertPriceAbove,
		ThresholdValue: decimal.NewFromInt(150),
		Status:         models.AlertStatusActive,
	})
	quotes := newStubQuotes()
	engine, notifStore, advance := testEngine(store, quotes)

	// Dispatch succeeds but the state write fails: the alert stays
	// active and must be retried on the next tick.
	store.failSaves = 1
	quotes.set("AAPL", 151, 1.0, 0)
	if n, _ := engine.RunTick(context.Background()); n != 0 {
		t.Fatalf("tick with failed save: triggered=%d, want 0", n)
	}
	if got := store.get(8); got.Status != models.AlertStatusActive {
		t.Fatalf("Status = %q, want active after failed write", got.Status)
	}

	// The retry completes the transition without a second notification
	// for the same crossing.
	advance(time.Minute)
	if n, _ := engine.RunTick(context.Background()); n != 1 {
		t.Fatal("retry tick did not complete the trigger")
	}
	if got := store.get(8); got.Status != models.AlertStatusTriggered {
		t.Fatalf("Status = %q, want triggered after retry", got.Status)
	}
	if notifStore.count() != 1 {
		t.Fatalf("notifications for one crossing = %d, want 1", notifStore.count())
	}
}

func TestQuoteErrorSkipsSymbolNotTick(t *testing.T) {
	store := newMemoryAlertStore(
		models.Alert{
			ID: 5, UserID: 10, Symbol: "AAPL",
			AlertType:      models.AlertPriceAbove,
			ThresholdValue: decimal.NewFromInt(150),
			Status:         models.AlertStatusActive,
		},
		models.Alert{
			ID: 6, UserID: 10, Symbol: "MSFT",
			AlertType:      models.AlertPriceAbove,
			ThresholdValue: decimal.NewFromInt(300),
			Status:         models.AlertStatusActive,
		},
	)
	quotes := newStubQuotes()
	engine, _, _ := testEngine(store, quotes)

	quotes.fail("AAPL", ErrRateLimited)
	quotes.set("MSFT", 305, 1.0, 0)

	triggered, err := engine.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick() error = %v", err)
	}
	if triggered != 1 {
		t.Fatalf("triggered = %d, want 1 (MSFT only)", triggered)
	}
	if got := store.get(5); got.Status != models.AlertStatusActive {
		t.Fatalf("AAPL alert Status = %q, want untouched active", got.Status)
	}
	if got := store.get(5); got.LastCheckedAt != nil {
		t.Fatal("AAPL alert LastCheckedAt set despite skipped symbol")
	}
}

func TestTickCancelledMidway(t *testing.T) {
	store := newMemoryAlertStore(models.Alert{
		ID: 7, UserID: 10, Symbol: "AAPL",
		AlertType:      models.AlertPriceAbove,
		ThresholdValue: decimal.NewFromInt(150),
		Status:         models.AlertStatusActive,
	})
	quotes := newStubQuotes()
	engine, _, _ := testEngine(store, quotes)
	quotes.set("AAPL", 151, 1.0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.RunTick(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunTick() error = %v, want context.Canceled", err)
	}
}
