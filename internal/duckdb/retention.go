package duckdb

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRetentionInterval is the period between retention sweeps.
const DefaultRetentionInterval = time.Hour

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	// MaxAge is how long a run is kept after it started. Zero disables retention.
	MaxAge   time.Duration
	Interval time.Duration
	Logger   *zap.Logger
}

// RetentionCleaner periodically deletes runs that started before the
// retention window together with everything they own.
type RetentionCleaner struct {
	store    *Store
	maxAge   time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRetentionCleaner starts a cleaner. It returns nil when MaxAge is
// not positive.
func NewRetentionCleaner(store *Store, conf RetentionConfig) *RetentionCleaner {
	if conf.MaxAge <= 0 {
		return nil
	}
	rc := &RetentionCleaner{
		store:    store,
		maxAge:   conf.MaxAge,
		interval: conf.Interval,
		logger:   conf.Logger,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if rc.interval <= 0 {
		rc.interval = DefaultRetentionInterval
	}
	if rc.logger == nil {
		rc.logger = zap.NewNop()
	}

	// Catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()
	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := rc.now().Add(-rc.maxAge)
	n, err := rc.store.DeleteRunsBefore(cutoff)
	if err != nil {
		rc.logger.Error("retention cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		rc.logger.Info("retention cleanup", zap.Int64("runs_deleted", n), zap.Duration("max_age", rc.maxAge))
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
