package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor periodically inspects the manager's active runs, logging
// long-running ones and keeping the active-run gauge fresh even when no run
// starts or finishes for a while.
type HealthMonitor struct {
	manager  *Manager
	logger   *zap.Logger
	interval time.Duration

	// A run older than this is logged as stalled.
	stallThreshold time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewHealthMonitor creates a monitor over the manager's active runs.
func NewHealthMonitor(manager *Manager, logger *zap.Logger, interval, stallThreshold time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if stallThreshold <= 0 {
		stallThreshold = 10 * time.Minute
	}
	return &HealthMonitor{
		manager:        manager,
		logger:         logger,
		interval:       interval,
		stallThreshold: stallThreshold,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start launches the monitor loop. It runs until Stop is called or the
// context is cancelled.
func (h *HealthMonitor) Start(ctx context.Context) {
	go func() {
		defer close(h.done)

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		h.logger.Info("health monitor started",
			zap.Duration("interval", h.interval))

		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case <-ticker.C:
				h.check()
			}
		}
	}()
}

// Stop terminates the monitor loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	close(h.stop)
	<-h.done
}

func (h *HealthMonitor) check() {
	statuses := h.manager.ActiveRuns()
	h.manager.observeActive()

	stalled := 0
	for _, status := range statuses {
		if status.Elapsed < h.stallThreshold {
			continue
		}
		stalled++
		h.logger.Warn("run exceeds stall threshold",
			zap.String("run_id", status.RunID),
			zap.String("graph", status.GraphName),
			zap.String("status", string(status.Status)),
			zap.Duration("elapsed", status.Elapsed))
	}

	h.logger.Debug("health check complete",
		zap.Int("active_runs", len(statuses)),
		zap.Int("stalled_runs", stalled))
}
