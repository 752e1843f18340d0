/*
scheduler.go - Automated overdue sweep

PURPOSE:
  Periodically moves unsettled bills whose due date has passed to
  overdue. A bill due on the 10th is still current on the 10th and
  becomes overdue on the 11th.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Sweeps once immediately on start
  - Each sweep is one store transaction; a failed sweep is logged and
    retried on the next tick

USAGE:
  scheduler := NewOverdueScheduler(handler, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: SweepOverdue endpoint (manual sweep)
  - store/sqlite/bills.go: MarkOverdue
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/billing-engine/generic"
)

// OverdueScheduler runs the overdue sweep on a ticker.
type OverdueScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	// Clock returns the sweep date. Defaults to generic.Today.
	Clock func() generic.TimePoint

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOverdueScheduler creates a new scheduler. A non-positive interval
// means one hour.
func NewOverdueScheduler(handler *Handler, interval time.Duration) *OverdueScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &OverdueScheduler{
		Handler:       handler,
		CheckInterval: interval,
		Enabled:       true,
		Clock:         generic.Today,
	}
}

// Start begins the scheduler.
func (s *OverdueScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.Handler.logger
	if !s.Enabled {
		log.Info("overdue scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	log.Info("overdue scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *OverdueScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Handler.logger.Info("overdue scheduler stopped")
}

func (s *OverdueScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.RunNow()

	for {
		select {
		case <-ticker.C:
			s.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep as of the scheduler's clock.
func (s *OverdueScheduler) RunNow() []string {
	at := s.Clock()
	log := s.Handler.logger

	changed, err := s.Handler.sweepOverdue(context.Background(), at)
	if err != nil {
		log.Error("overdue sweep failed", zap.String("as_of", at.String()), zap.Error(err))
		return nil
	}
	if len(changed) > 0 {
		log.Info("overdue sweep completed",
			zap.String("as_of", at.String()),
			zap.Int("overdue", len(changed)),
			zap.Strings("bills", changed),
		)
	}
	return changed
}

// NextRunTime returns when the next scheduled check will occur.
func (s *OverdueScheduler) NextRunTime() time.Time {
	return time.Now().Add(s.CheckInterval)
}
