package entitlement

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ExpiryWorker periodically disables trials past their expiry so expired
// entitlements do not linger until the next access check.
type ExpiryWorker struct {
	manager  *Manager
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
}

// NewExpiryWorker creates the sweep worker
func NewExpiryWorker(manager *Manager, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ExpiryWorker{
		manager:  manager,
		interval: interval,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep
func (w *ExpiryWorker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	log.Info().Dur("interval", w.interval).Msg("Starting entitlement expiry worker...")
	go w.loop()
}

// Stop stops the sweep and waits for an in-flight run to finish
func (w *ExpiryWorker) Stop() {
	w.stopOnce.Do(func() {
		log.Info().Msg("Stopping entitlement expiry worker...")
		close(w.stopCh)
	})
	if w.started.Load() {
		<-w.done
	}
}

func (w *ExpiryWorker) loop() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	w.RunOnce()

	for {
		select {
		case <-ticker.C:
			w.RunOnce()
		case <-w.stopCh:
			return
		}
	}
}

// RunOnce performs a single sweep and returns how many entitlements it expired.
func (w *ExpiryWorker) RunOnce() int {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	count, err := w.manager.ExpireDue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to expire due trial features")
		return 0
	}
	if count > 0 {
		log.Info().Int("count", count).Msg("Expired due trial features")
	}
	return count
}
