package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"stock_alert_backend/models"
)

// LaggardCooldown suppresses repeat laggard notifications for the same
// sector+symbol pair within this window.
const LaggardCooldown = time.Hour

// SectorStore is the persistence boundary of the divergence detector
type SectorStore interface {
	LoadSectorsWithActiveStrategy() ([]models.Sector, error)
	SaveSectorStrategy(s *models.SectorStrategy) error
}

// SectorDetector periodically classifies each monitored sector's stocks
// by percent change. When a configured majority trends past the trend
// threshold in one direction, stocks diverging the other way past the
// laggard threshold are flagged with a sector-level notification.
type SectorDetector struct {
	store      SectorStore
	quotes     QuoteGetter
	dispatcher *Dispatcher

	tickMu   sync.Mutex
	cooldown time.Duration
	now      func() time.Time
}

// NewSectorDetector creates a sector divergence detector
func NewSectorDetector(store SectorStore, quotes QuoteGetter, dispatcher *Dispatcher) *SectorDetector {
	return &SectorDetector{
		store:      store,
		quotes:     quotes,
		dispatcher: dispatcher,
		cooldown:   LaggardCooldown,
		now:        time.Now,
	}
}

// RunTick evaluates every sector with an active strategy once.
// Overlapping ticks are skipped, mirroring the alert engine.
func (d *SectorDetector) RunTick(ctx context.Context) (int, error) {
	if !d.tickMu.TryLock() {
		log.Println("Sector tick skipped: previous tick still running")
		return 0, nil
	}
	defer d.tickMu.Unlock()

	sectors, err := d.store.LoadSectorsWithActiveStrategy()
	if err != nil {
		return 0, fmt.Errorf("loading sectors: %w", err)
	}

	flagged := 0
	for i := range sectors {
		select {
		case <-ctx.Done():
			log.Println("Sector tick cancelled, draining")
			return flagged, ctx.Err()
		default:
		}
		flagged += d.checkSector(ctx, &sectors[i])
	}
	return flagged, nil
}

// checkSector evaluates one sector and returns the number of laggard
// notifications created.
func (d *SectorDetector) checkSector(ctx context.Context, sector *models.Sector) int {
	strategy := sector.Strategy
	if strategy == nil || !strategy.IsActive {
		return 0
	}
	if len(sector.Stocks) < 2 {
		return 0
	}

	changes := make(map[string]float64, len(sector.Stocks))
	for _, stock := range sector.Stocks {
		quote, err := d.quotes.GetQuote(ctx, stock.Symbol)
		if err != nil {
			log.Printf("Sector %q: skipping %s this tick: %v", sector.Name, stock.Symbol, err)
			continue
		}
		changes[stock.Symbol] = quote.PercentChange
	}
	if len(changes) < 2 {
		return 0
	}

	up, down := 0, 0
	for _, change := range changes {
		switch {
		case change >= strategy.TrendThreshold:
			up++
		case change <= -strategy.TrendThreshold:
			down++
		}
	}

	// Majority direction; a tie means no established trend
	trendUp := up > down
	majority := up
	if !trendUp {
		majority = down
	}
	if majority == 0 || up == down {
		return 0
	}
	if float64(majority)/float64(len(changes))*100 < strategy.PercentMajority {
		return 0
	}

	flagged := 0
	for symbol, change := range changes {
		if !d.isLaggard(strategy, trendUp, change) {
			continue
		}
		if d.notifyLaggard(sector, strategy, symbol, change, trendUp) {
			flagged++
		}
	}

	if flagged > 0 {
		now := d.now()
		strategy.LastTriggeredAt = &now
		if err := d.store.SaveSectorStrategy(strategy); err != nil {
			log.Printf("Failed to update strategy for sector %q: %v", sector.Name, err)
		}
	}
	return flagged
}

// isLaggard reports whether a stock diverges from the established trend
// past the laggard threshold (a negative number: "at least this far the
// other way").
func (d *SectorDetector) isLaggard(strategy *models.SectorStrategy, trendUp bool, change float64) bool {
	if trendUp {
		return change <= strategy.LaggardThreshold
	}
	return change >= -strategy.LaggardThreshold
}

// notifyLaggard dispatches one deduplicated laggard notification
func (d *SectorDetector) notifyLaggard(sector *models.Sector, strategy *models.SectorStrategy, symbol string, change float64, trendUp bool) bool {
	direction := "up"
	if !trendUp {
		direction = "down"
	}

	ev := TriggerEvent{
		UserID:       sector.UserID,
		Symbol:       symbol,
		AlertType:    "sector_laggard",
		Title:        fmt.Sprintf("%s is lagging the %s sector", symbol, sector.Name),
		Message:      fmt.Sprintf("The %s sector is trending %s, but %s has moved %.2f%% against it (laggard threshold %.2f%%).", sector.Name, direction, symbol, change, strategy.LaggardThreshold),
		DedupeKey:    fmt.Sprintf("sector:%d:laggard:%s", sector.ID, symbol),
		DedupeWindow: d.cooldown,
	}

	_, err := d.dispatcher.Dispatch(ev)
	if errors.Is(err, ErrDuplicateSuppressed) {
		return false
	}
	if err != nil {
		log.Printf("Laggard dispatch failed for %s in sector %q: %v", symbol, sector.Name, err)
		return false
	}
	log.Printf("Laggard flagged: %s in sector %q (%.2f%% against %s trend)", symbol, sector.Name, change, direction)
	return true
}
