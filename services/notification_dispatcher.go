package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock_alert_backend/models"
)

// DefaultDedupeWindow bounds the duplicate lookup when an event does
// not specify its own window.
const DefaultDedupeWindow = time.Hour

// NotificationStore is the persistence boundary for dispatch
type NotificationStore interface {
	CreateNotification(n *models.Notification) error
	FindRecentNotification(dedupeKey string, window time.Duration) (*models.Notification, error)
}

// NotificationSubscriber receives created notifications. The in-app feed
// (realtime hub) is the mandatory subscriber; email/SMS senders can hook
// in the same way.
type NotificationSubscriber interface {
	NotificationCreated(n *models.Notification)
}

// TriggerEvent describes one condition crossing to be turned into a
// persisted notification.
type TriggerEvent struct {
	UserID         uint
	AlertID        *uint // nil for sector events
	Symbol         string
	AlertType      string
	ThresholdValue decimal.NullDecimal
	TriggerPrice   decimal.NullDecimal
	Title          string
	Message        string

	// DedupeKey identifies the crossing; the same key within the window
	// is dispatched at most once.
	DedupeKey    string
	DedupeWindow time.Duration
}

// Dispatcher turns trigger events into deduplicated notification records
// and fans them out to subscribers.
type Dispatcher struct {
	store NotificationStore

	mu          sync.RWMutex
	subscribers []NotificationSubscriber
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(store NotificationStore) *Dispatcher {
	return &Dispatcher{store: store}
}

// Subscribe registers a downstream channel for created notifications
func (d *Dispatcher) Subscribe(s NotificationSubscriber) {
	d.mu.Lock()
	d.subscribers = append(d.subscribers, s)
	d.mu.Unlock()
}

// Dispatch persists a notification for the event unless its dedupe key
// was already seen within the window. Duplicates return the existing
// record together with ErrDuplicateSuppressed.
func (d *Dispatcher) Dispatch(ev TriggerEvent) (*models.Notification, error) {
	if ev.DedupeKey != "" {
		window := ev.DedupeWindow
		if window <= 0 {
			window = DefaultDedupeWindow
		}

		existing, err := d.store.FindRecentNotification(ev.DedupeKey, window)
		if err != nil {
			// Lookup failure must not block delivery; the key keeps a
			// crash-recovery replay from persisting twice later.
			log.Printf("Duplicate lookup failed for key %s: %v", ev.DedupeKey, err)
		} else if existing != nil {
			log.Printf("Suppressed duplicate notification for key %s", ev.DedupeKey)
			return existing, ErrDuplicateSuppressed
		}
	}

	n := &models.Notification{
		UserID:         ev.UserID,
		AlertID:        ev.AlertID,
		Channel:        models.ChannelInApp,
		Title:          ev.Title,
		Message:        ev.Message,
		Symbol:         ev.Symbol,
		TriggerPrice:   ev.TriggerPrice,
		AlertType:      ev.AlertType,
		ThresholdValue: ev.ThresholdValue,
		DedupeKey:      ev.DedupeKey,
	}

	if err := d.store.CreateNotification(n); err != nil {
		return nil, fmt.Errorf("persisting notification for %s: %w", ev.Symbol, err)
	}

	d.mu.RLock()
	subs := make([]NotificationSubscriber, len(d.subscribers))
	copy(subs, d.subscribers)
	d.mu.RUnlock()

	for _, s := range subs {
		s.NotificationCreated(n)
	}

	return n, nil
}

// FormatAlertTitle builds the human-readable one-liner for an alert
// trigger, e.g. "AAPL rose above $150.00".
func FormatAlertTitle(a *models.Alert) string {
	switch a.AlertType {
	case models.AlertPriceAbove:
		return fmt.Sprintf("%s rose above $%s", a.Symbol, a.ThresholdValue.StringFixed(2))
	case models.AlertPriceBelow:
		return fmt.Sprintf("%s fell below $%s", a.Symbol, a.ThresholdValue.StringFixed(2))
	case models.AlertPercentChange:
		return fmt.Sprintf("%s moved more than %s%%", a.Symbol, a.ThresholdValue.StringFixed(2))
	case models.AlertVolumeSpike:
		return fmt.Sprintf("%s volume spiked %sx above average", a.Symbol, a.ThresholdValue.StringFixed(1))
	}
	return fmt.Sprintf("%s alert triggered", a.Symbol)
}

// FormatAlertMessage builds the full notification body for an alert trigger
func FormatAlertMessage(a *models.Alert, currentPrice float64, triggeredAt time.Time) string {
	msg := fmt.Sprintf("%s\nCurrent price: $%.2f\nTriggered at: %s",
		FormatAlertTitle(a),
		currentPrice,
		triggeredAt.UTC().Format("2006-01-02 15:04:05 UTC"),
	)
	if a.StockName != "" {
		msg = a.StockName + "\n" + msg
	}
	if a.Message != "" {
		msg += "\n\n" + a.Message
	}
	return msg
}
