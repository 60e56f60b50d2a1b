package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trungvu/tripflow/internal/application/service"
)

// ExpirySweeper periodically expires approval requests whose token window
// has lapsed without a manager decision.
type ExpirySweeper struct {
	sweeper  service.SweeperService
	interval time.Duration
	logger   *zap.Logger

	stopCh chan struct{}
	doneWg sync.WaitGroup
}

// NewExpirySweeper creates the sweeper worker. interval controls how often a
// sweep runs.
func NewExpirySweeper(sweeper service.SweeperService, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ExpirySweeper{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (w *ExpirySweeper) Name() string { return "expiry-sweeper" }

// Start launches the sweep loop. It returns immediately; sweeping happens in
// a background goroutine until Stop is called or ctx is cancelled.
func (w *ExpirySweeper) Start(ctx context.Context) error {
	if w.sweeper == nil {
		return fmt.Errorf("expiry sweeper: sweeper service is nil")
	}

	w.doneWg.Add(1)
	go w.run(ctx)
	w.logger.Info("Expiry sweeper started", zap.Duration("interval", w.interval))
	return nil
}

// Stop signals the loop to exit and waits for the in-flight sweep to finish.
func (w *ExpirySweeper) Stop() error {
	close(w.stopCh)
	w.doneWg.Wait()
	return nil
}

func (w *ExpirySweeper) run(ctx context.Context) {
	defer w.doneWg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Sweep once at startup so a restart does not delay overdue expirations
	// by a full interval.
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	expired, err := w.sweeper.ExpireStale(ctx)
	if err != nil {
		w.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		w.logger.Info("Expiry sweep completed", zap.Int("expired", expired))
	}
}
