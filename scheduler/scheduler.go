package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"stock_alert_backend/config"
	"stock_alert_backend/services"
)

// Scheduler manages the recurring background jobs: the alert tick, the
// sector divergence tick and the daily previous-close warm-up. The two
// ticks run in SingletonMode so a run that overruns its interval is
// skipped rather than overlapped; the two jobs are independent and may
// run concurrently with each other.
type Scheduler struct {
	cron     *gocron.Scheduler
	engine   *services.AlertEngine
	detector *services.SectorDetector
	warmup   *services.PrevCloseWarmup
	cfg      *config.Config

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler for the background evaluation jobs
func NewScheduler(cfg *config.Config, engine *services.AlertEngine, detector *services.SectorDetector, warmup *services.PrevCloseWarmup) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		engine:   engine,
		detector: detector,
		warmup:   warmup,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers and launches all jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Evaluate alerts on a fixed interval, skipping overlapping runs
	_, err := s.cron.Every(s.cfg.AlertCheckInterval).SingletonMode().Do(func() {
		triggered, err := s.engine.RunTick(s.ctx)
		if err != nil {
			log.Printf("Alert tick error: %v", err)
			return
		}
		if triggered > 0 {
			log.Printf("Alert tick triggered %d alerts", triggered)
		}
	})
	if err != nil {
		log.Printf("Failed to schedule alert tick: %v", err)
	}

	// Check sector divergence on its own interval
	_, err = s.cron.Every(s.cfg.SectorCheckInterval).SingletonMode().Do(func() {
		flagged, err := s.detector.RunTick(s.ctx)
		if err != nil {
			log.Printf("Sector tick error: %v", err)
			return
		}
		if flagged > 0 {
			log.Printf("Sector tick flagged %d laggards", flagged)
		}
	})
	if err != nil {
		log.Printf("Failed to schedule sector tick: %v", err)
	}

	// Warm the previous-close cache daily before market open
	_, err = s.cron.Every(1).Day().At(s.cfg.PrevCloseWarmupTime).Do(func() {
		if err := s.warmup.Run(s.ctx); err != nil {
			log.Printf("Previous-close warm-up error: %v", err)
		}
	})
	if err != nil {
		log.Printf("Failed to schedule previous-close warm-up: %v", err)
	}

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop cancels running ticks and halts the scheduler. In-flight quote
// fetches are abandoned, not awaited.
func (s *Scheduler) Stop() {
	s.cancel()
	s.cron.Stop()
	log.Println("Scheduler stopped")
}
