package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock_alert_backend/models"
)

const (
	// Trailing volume baseline for volume_spike alerts: mean of the
	// last volumeBaselineWindow observations, evaluated only once at
	// least volumeBaselineMinSamples have been seen.
	volumeBaselineWindow     = 20
	volumeBaselineMinSamples = 5

	alertDedupeWindow = 24 * time.Hour
)

// AlertStore is the persistence boundary of the alert engine. Loading
// returns every alert the engine must look at: active ones, plus
// triggered repeating ones waiting to rearm.
type AlertStore interface {
	LoadActiveAlerts() ([]models.Alert, error)
	SaveAlert(a *models.Alert) error
}

// AlertEngine periodically evaluates active alerts against cached
// quotes and drives their state transitions:
//
//	active --(condition met)--> triggered
//	triggered --(condition cleared)--> active   (repeating alerts only)
//
// Disabling is a user action owned by the API layer; the engine never
// touches disabled alerts.
type AlertEngine struct {
	store      AlertStore
	quotes     QuoteGetter
	dispatcher *Dispatcher

	tickMu sync.Mutex

	baselineMu sync.Mutex
	baselines  map[string]*volumeBaseline

	now func() time.Time
}

// NewAlertEngine creates an alert engine
func NewAlertEngine(store AlertStore, quotes QuoteGetter, dispatcher *Dispatcher) *AlertEngine {
	return &AlertEngine{
		store:      store,
		quotes:     quotes,
		dispatcher: dispatcher,
		baselines:  make(map[string]*volumeBaseline),
		now:        time.Now,
	}
}

// RunTick evaluates all alerts once. A tick that is still running when
// the next is due makes the new one return immediately, so two ticks
// never mutate the same alert concurrently.
func (e *AlertEngine) RunTick(ctx context.Context) (int, error) {
	if !e.tickMu.TryLock() {
		log.Println("Alert tick skipped: previous tick still running")
		return 0, nil
	}
	defer e.tickMu.Unlock()

	alerts, err := e.store.LoadActiveAlerts()
	if err != nil {
		return 0, fmt.Errorf("loading alerts: %w", err)
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	// Group by symbol so each symbol costs at most one cache lookup
	bySymbol := make(map[string][]*models.Alert)
	for i := range alerts {
		a := &alerts[i]
		bySymbol[a.Symbol] = append(bySymbol[a.Symbol], a)
	}

	triggered := 0
	for symbol, group := range bySymbol {
		select {
		case <-ctx.Done():
			log.Println("Alert tick cancelled, draining")
			return triggered, ctx.Err()
		default:
		}

		quote, err := e.quotes.GetQuote(ctx, symbol)
		if err != nil {
			log.Printf("Skipping %s this tick: %v", symbol, err)
			continue
		}

		spike := e.volumeSpikeRatio(symbol, quote.Volume)

		for _, alert := range group {
			if e.evaluateAlert(alert, quote, spike) {
				triggered++
			}
		}
	}

	return triggered, nil
}

// evaluateAlert applies one quote to one alert and returns true if the
// alert fired.
func (e *AlertEngine) evaluateAlert(alert *models.Alert, quote *Quote, spikeRatio float64) bool {
	met := e.conditionMet(alert, quote, spikeRatio)
	now := e.now()
	alert.LastCheckedAt = &now

	switch {
	case alert.Status == models.AlertStatusTriggered && alert.IsRepeating:
		if met {
			// Still past the threshold: stay latched, no re-trigger
			break
		}
		alert.Status = models.AlertStatusActive
		if err := e.store.SaveAlert(alert); err != nil {
			log.Printf("Failed to rearm alert %d (%s): %v", alert.ID, alert.Symbol, err)
			return false
		}
		log.Printf("Alert %d rearmed: %s %s", alert.ID, alert.Symbol, alert.AlertType)
		return false

	case alert.Status == models.AlertStatusActive && met:
		return e.triggerAlert(alert, quote)
	}

	if err := e.store.SaveAlert(alert); err != nil {
		log.Printf("Failed to update alert %d (%s): %v", alert.ID, alert.Symbol, err)
	}
	return false
}

// triggerAlert dispatches the notification first and persists the state
// transition second. If dispatch fails the alert stays in its
// pre-dispatch state and the next tick retries; the dedupe key makes the
// retry's observable effect at-most-once.
func (e *AlertEngine) triggerAlert(alert *models.Alert, quote *Quote) bool {
	now := e.now()
	alertID := alert.ID

	// The dedupe key identifies the crossing, not the attempt: it is
	// derived from the previous trigger time, which only advances once
	// the state write below succeeds. A retry after a failed write
	// reuses the key and is suppressed; a rearmed re-crossing carries
	// the new trigger time and gets a fresh key.
	prevTrigger := int64(0)
	if alert.TriggeredAt != nil {
		prevTrigger = alert.TriggeredAt.Unix()
	}

	ev := TriggerEvent{
		UserID:         alert.UserID,
		AlertID:        &alertID,
		Symbol:         alert.Symbol,
		AlertType:      alert.AlertType.String(),
		ThresholdValue: decimal.NewNullDecimal(alert.ThresholdValue),
		TriggerPrice:   decimal.NewNullDecimal(decimal.NewFromFloat(quote.CurrentPrice)),
		Title:          FormatAlertTitle(alert),
		Message:        FormatAlertMessage(alert, quote.CurrentPrice, now),
		DedupeKey:      fmt.Sprintf("alert:%d:%d", alert.ID, prevTrigger),
		DedupeWindow:   alertDedupeWindow,
	}

	if _, err := e.dispatcher.Dispatch(ev); err != nil && !errors.Is(err, ErrDuplicateSuppressed) {
		log.Printf("Dispatch failed for alert %d (%s), will retry next tick: %v", alert.ID, alert.Symbol, err)
		return false
	}

	alert.Status = models.AlertStatusTriggered
	alert.TriggerPrice = decimal.NewNullDecimal(decimal.NewFromFloat(quote.CurrentPrice))
	alert.TriggeredAt = &now

	if err := e.store.SaveAlert(alert); err != nil {
		log.Printf("Failed to persist trigger for alert %d (%s): %v", alert.ID, alert.Symbol, err)
		return false
	}

	log.Printf("Alert triggered: %s %s at $%.2f", alert.Symbol, alert.AlertType, quote.CurrentPrice)
	return true
}

// conditionMet evaluates the alert's condition against the quote
func (e *AlertEngine) conditionMet(alert *models.Alert, quote *Quote, spikeRatio float64) bool {
	if alert.AlertType == models.AlertVolumeSpike {
		if spikeRatio <= 0 {
			// Baseline not warm yet; never fire on a cold baseline
			return false
		}
		return decimal.NewFromFloat(spikeRatio).GreaterThanOrEqual(alert.ThresholdValue)
	}
	return alert.CheckCondition(quote.CurrentPrice, quote.PercentChange)
}

// volumeSpikeRatio returns current volume over the trailing baseline for
// the symbol, or 0 while the baseline is still warming up. The current
// observation is recorded after the ratio is taken so a spike does not
// dilute its own baseline.
func (e *AlertEngine) volumeSpikeRatio(symbol string, volume int64) float64 {
	e.baselineMu.Lock()
	defer e.baselineMu.Unlock()

	b, ok := e.baselines[symbol]
	if !ok {
		b = &volumeBaseline{}
		e.baselines[symbol] = b
	}

	ratio := 0.0
	if avg := b.average(); avg > 0 && b.count >= volumeBaselineMinSamples {
		ratio = float64(volume) / avg
	}
	b.observe(volume)
	return ratio
}

// volumeBaseline is a ring buffer of recent volume observations
type volumeBaseline struct {
	samples [volumeBaselineWindow]int64
	next    int
	count   int
}

func (b *volumeBaseline) observe(v int64) {
	b.samples[b.next] = v
	b.next = (b.next + 1) % volumeBaselineWindow
	if b.count < volumeBaselineWindow {
		b.count++
	}
}

func (b *volumeBaseline) average() float64 {
	if b.count == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < b.count; i++ {
		sum += b.samples[i]
	}
	return float64(sum) / float64(b.count)
}
