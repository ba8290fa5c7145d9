// Package workers provides background job processors for the cart service.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cart-service/internal/repository"
)

const (
	// DefaultExpirationCheckInterval is the default interval for cart expiration checks
	DefaultExpirationCheckInterval = 1 * time.Hour

	// DefaultIdleLedgerAge is how long a cart may sit untouched in memory before
	// its ledger is dropped from the registry
	DefaultIdleLedgerAge = 30 * time.Minute
)

// IdleEvictor drops in-memory cart ledgers not used since cutoff
type IdleEvictor interface {
	EvictIdle(cutoff time.Time) int
}

// CartExpirationWorker handles periodic cleanup of expired carts and idle
// in-memory ledgers.
type CartExpirationWorker struct {
	store     repository.ExpiringStore
	evictor   IdleEvictor
	interval  time.Duration
	idleAge   time.Duration
	now       func() time.Time
	logger    *logrus.Entry
	stopChan  chan struct{}
	doneChan  chan struct{}
	mu        sync.Mutex
	running   bool
	lastRun   time.Time
	lastError error
	stats     ExpirationStats
}

// ExpirationStats tracks cleanup statistics.
type ExpirationStats struct {
	CartsDeleted      int64     `json:"cartsDeleted"`
	LedgersEvicted    int       `json:"ledgersEvicted"`
	TotalCartsDeleted int64     `json:"totalCartsDeleted"`
	LastRunAt         time.Time `json:"lastRunAt,omitempty"`
	LastRunDuration   string    `json:"lastRunDuration,omitempty"`
}

// NewCartExpirationWorker creates a new cart expiration worker. store or
// evictor may be nil, in which case that half of the cleanup is skipped.
func NewCartExpirationWorker(store repository.ExpiringStore, evictor IdleEvictor, interval time.Duration, logger *logrus.Logger) *CartExpirationWorker {
	if interval == 0 {
		interval = DefaultExpirationCheckInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &CartExpirationWorker{
		store:    store,
		evictor:  evictor,
		interval: interval,
		idleAge:  DefaultIdleLedgerAge,
		now:      time.Now,
		logger:   logger.WithField("component", "cart-expiration-worker"),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// SetIdleAge changes how long a ledger may stay unused in memory
func (w *CartExpirationWorker) SetIdleAge(age time.Duration) {
	if age > 0 {
		w.idleAge = age
	}
}

// Start begins the cart expiration check loop.
func (w *CartExpirationWorker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run()
	w.logger.WithField("interval", w.interval.String()).Info("Cart expiration worker started")
}

// Stop stops the cart expiration check loop.
func (w *CartExpirationWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	<-w.doneChan
	w.logger.Info("Cart expiration worker stopped")
}

// ForceRun triggers an immediate expiration check.
func (w *CartExpirationWorker) ForceRun(ctx context.Context) error {
	return w.processExpiredCarts(ctx)
}

// IsRunning returns whether the worker is running.
func (w *CartExpirationWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stats returns the current expiration statistics.
func (w *CartExpirationWorker) Stats() ExpirationStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// run is the main expiration check loop.
func (w *CartExpirationWorker) run() {
	defer close(w.doneChan)

	// Run initial cleanup on startup
	if err := w.processExpiredCarts(context.Background()); err != nil {
		w.logger.WithError(err).Warn("Initial cart expiration check failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			if err := w.processExpiredCarts(context.Background()); err != nil {
				w.logger.WithError(err).Error("Cart expiration check failed")
			}
		}
	}
}

// processExpiredCarts evicts idle ledgers, then deletes stored carts whose
// expiry has passed. Eviction runs first so a ledger is never left holding a
// cart the store no longer has.
func (w *CartExpirationWorker) processExpiredCarts(ctx context.Context) error {
	startTime := w.now()

	evicted := 0
	if w.evictor != nil {
		evicted = w.evictor.EvictIdle(startTime.Add(-w.idleAge))
	}

	var deleted int64
	var err error
	if w.store != nil {
		deleted, err = w.store.DeleteExpired(ctx, startTime)
	}

	duration := time.Since(startTime)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRun = startTime
	w.lastError = err
	w.stats.LedgersEvicted = evicted
	w.stats.LastRunAt = startTime
	w.stats.LastRunDuration = duration.String()
	if err != nil {
		w.stats.CartsDeleted = 0
		return err
	}
	w.stats.CartsDeleted = deleted
	w.stats.TotalCartsDeleted += deleted

	if deleted > 0 || evicted > 0 {
		w.logger.WithFields(logrus.Fields{
			"cartsDeleted":   deleted,
			"ledgersEvicted": evicted,
			"duration":       duration.String(),
		}).Info("Cart expiration check completed")
	}
	return nil
}

// WorkerStatus contains the current status of the worker.
type WorkerStatus struct {
	Running   bool            `json:"running"`
	Interval  string          `json:"interval"`
	LastRun   time.Time       `json:"lastRun,omitempty"`
	LastError string          `json:"lastError,omitempty"`
	Stats     ExpirationStats `json:"stats"`
}

// Status returns the current status of the worker.
func (w *CartExpirationWorker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := WorkerStatus{
		Running:  w.running,
		Interval: w.interval.String(),
		Stats:    w.stats,
	}

	if !w.lastRun.IsZero() {
		status.LastRun = w.lastRun
	}

	if w.lastError != nil {
		status.LastError = w.lastError.Error()
	}

	return status
}
