package cache

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/telcprep/sprachcache/internal/metrics"
)

// Retention defaults.
const (
	DefaultRetentionDays   = 30
	DefaultCleanupInterval = 24 * time.Hour
)

// MaintenanceConfig configures periodic eviction.
type MaintenanceConfig struct {
	RetentionDays int
	Interval      time.Duration
}

// Maintenance evicts entries that have not been accessed within the
// retention horizon, on demand and on a ticker.
type Maintenance struct {
	store  *Store
	config MaintenanceConfig
	logger *log.Logger

	// Cleanup goroutine control
	mu          sync.Mutex
	cleanupStop chan struct{}
	cleanupWg   sync.WaitGroup

	lastRun   time.Time
	lastCount int64
}

// NewMaintenance creates a maintenance runner over store.
func NewMaintenance(store *Store, config MaintenanceConfig, logger *log.Logger) *Maintenance {
	if config.RetentionDays <= 0 {
		config.RetentionDays = DefaultRetentionDays
	}
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = log.Default().WithPrefix("maintenance")
	}
	return &Maintenance{store: store, config: config, logger: logger}
}

// EvictOlderThan deletes the owner's entries last accessed more than days
// ago. An empty owner sweeps every owner; days <= 0 uses the configured
// retention. Failures are logged and returned; a failed sweep leaves stale
// entries for the next cycle.
func (m *Maintenance) EvictOlderThan(ctx context.Context, ownerID string, days int) (int64, error) {
	if days <= 0 {
		days = m.config.RetentionDays
	}
	cutoff := m.store.now().AddDate(0, 0, -days)

	n, err := m.store.deleteOlderThan(ctx, ownerID, cutoff)
	if err != nil {
		m.logger.Warn("Cache eviction failed", "owner", ownerID, "days", days, "error", err)
		return 0, err
	}

	metrics.CacheEvictedTotal.Add(float64(n))
	m.mu.Lock()
	m.lastRun = m.store.now()
	m.lastCount = n
	m.mu.Unlock()

	m.logger.Info("Evicted stale cache entries", "owner", ownerID, "days", days, "count", n)
	return n, nil
}

// LastRun returns when the last successful sweep finished and how many
// entries it removed.
func (m *Maintenance) LastRun() (time.Time, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun, m.lastCount
}

// Start runs a sweep immediately and then once per interval until ctx is
// done or Stop is called.
func (m *Maintenance) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cleanupStop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.cleanupStop = stop
	m.mu.Unlock()

	m.cleanupWg.Add(1)
	go func() {
		defer m.cleanupWg.Done()

		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		_, _ = m.EvictOlderThan(ctx, "", 0)
		for {
			select {
			case <-ticker.C:
				_, _ = m.EvictOlderThan(ctx, "", 0)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the background sweep and waits for it to exit.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	stop := m.cleanupStop
	m.cleanupStop = nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	m.cleanupWg.Wait()
}
