package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Worker is a long-running background job with its own schedule,
// such as the SLA sweeper.
type Worker interface {
	Start(ctx context.Context) error
	Stop()
	Name() string
}

// Manager owns the start/stop lifecycle of registered workers so the
// server entrypoint only deals with one handle.
type Manager struct {
	mu      sync.Mutex
	workers []Worker
	running int // workers started so far; StopAll unwinds exactly these
	logger  *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a worker. Workers registered after StartAll are not
// started retroactively.
func (m *Manager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, w)
}

// StartAll starts workers in registration order. If one fails, the
// workers already running are stopped before the error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.workers {
		if err := w.Start(ctx); err != nil {
			m.logger.Error("Worker failed to start",
				zap.String("worker", w.Name()),
				zap.Error(err))
			m.stopRunning()
			return err
		}
		m.running++
		m.logger.Info("Worker started", zap.String("worker", w.Name()))
	}
	return nil
}

// StopAll stops every running worker in reverse start order. Safe to
// call more than once.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopRunning()
}

func (m *Manager) stopRunning() {
	for i := m.running - 1; i >= 0; i-- {
		w := m.workers[i]
		w.Stop()
		m.logger.Info("Worker stopped", zap.String("worker", w.Name()))
	}
	m.running = 0
}

// Count reports how many workers are registered.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}
