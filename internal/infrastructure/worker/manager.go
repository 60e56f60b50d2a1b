package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker is a long-running background task with a managed lifecycle.
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Manager owns a set of workers and starts/stops them together.
type Manager struct {
	workers []Worker
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewManager creates an empty worker manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a worker. Must be called before StartAll.
func (m *Manager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, w)
	m.logger.Info("Worker registered", zap.String("worker", w.Name()))
}

// StartAll starts every registered worker. A worker that fails to start is
// logged and skipped; the rest still run.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("workers already running")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	for _, w := range m.workers {
		if err := w.Start(ctx); err != nil {
			m.logger.Error("Worker failed to start",
				zap.String("worker", w.Name()), zap.Error(err))
			continue
		}
		m.logger.Info("Worker started", zap.String("worker", w.Name()))
	}
	return nil
}

// StopAll signals every worker to stop and waits for each to finish.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	m.cancel()

	var failed int
	for _, w := range m.workers {
		if err := w.Stop(); err != nil {
			m.logger.Error("Worker failed to stop",
				zap.String("worker", w.Name()), zap.Error(err))
			failed++
			continue
		}
		m.logger.Info("Worker stopped", zap.String("worker", w.Name()))
	}
	if failed > 0 {
		return fmt.Errorf("failed to stop %d workers", failed)
	}
	return nil
}
