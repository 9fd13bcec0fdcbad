package cache

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/telcprep/sprachcache/internal/metrics"
	"github.com/telcprep/sprachcache/internal/tts"
)

// DefaultBackgroundTimeout bounds detached cache writes and touches.
const DefaultBackgroundTimeout = 10 * time.Second

// StoreOptions configures a Store.
type StoreOptions struct {
	Logger            *log.Logger
	BackgroundTimeout time.Duration
	Now               func() time.Time
}

// Store is the fail-open cache facade used by every caller. Storage errors
// never escape Get; they are logged and reported as misses.
type Store struct {
	backend Backend
	logger  *log.Logger
	timeout time.Duration
	now     func() time.Time

	// Detached tasks (touches, async puts)
	wg sync.WaitGroup
}

// NewStore wraps a backend.
func NewStore(backend Backend, opts StoreOptions) *Store {
	s := &Store{
		backend: backend,
		logger:  opts.Logger,
		timeout: opts.BackgroundTimeout,
		now:     opts.Now,
	}
	if s.logger == nil {
		s.logger = log.Default().WithPrefix("cache")
	}
	if s.timeout <= 0 {
		s.timeout = DefaultBackgroundTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Get looks up an entry. On a hit the access bookkeeping is scheduled in the
// background and the entry is returned immediately.
func (s *Store) Get(ctx context.Context, ownerID string, ct ContentType, key string) (*Entry, bool) {
	e, err := s.backend.Get(ctx, ownerID, ct, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrCacheMiss):
		metrics.CacheLookupsTotal.WithLabelValues(ct.String(), metrics.ResultMiss).Inc()
		return nil, false
	default:
		metrics.CacheLookupsTotal.WithLabelValues(ct.String(), metrics.ResultError).Inc()
		s.logger.Warn("Cache lookup failed, treating as miss",
			"owner", ownerID, "type", ct, "error", unavailable("lookup", err))
		return nil, false
	}

	metrics.CacheLookupsTotal.WithLabelValues(ct.String(), metrics.ResultHit).Inc()
	s.logger.Debug("Cache hit", "owner", ownerID, "type", ct, "key", key)

	at := s.now()
	s.detach(ctx, "touch", func(bg context.Context) error {
		err := s.backend.Touch(bg, ownerID, ct, key, at)
		if errors.Is(err, ErrCacheMiss) {
			// Evicted between read and touch.
			return nil
		}
		return err
	})
	return e, true
}

// Put stores an entry, overwriting the one under the same key and owner.
// Missing timestamps default to now and a zero access count to 1.
func (s *Store) Put(ctx context.Context, e *Entry) error {
	if err := e.validate(); err != nil {
		return tts.NewTTSError(tts.ErrorCodeInvalidInput, "invalid cache entry", err)
	}

	stored := *e
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.AccessedAt.IsZero() {
		stored.AccessedAt = now
	}
	if stored.AccessCount <= 0 {
		stored.AccessCount = 1
	}

	if err := s.backend.Upsert(ctx, &stored); err != nil {
		metrics.CacheWritesTotal.WithLabelValues(e.ContentType.String(), metrics.StatusError).Inc()
		werr := unavailable("write", err)
		s.logger.Warn("Cache write failed", "owner", e.OwnerID, "type", e.ContentType, "error", werr)
		return werr
	}

	metrics.CacheWritesTotal.WithLabelValues(e.ContentType.String(), metrics.StatusOK).Inc()
	s.logger.Debug("Cached entry", "owner", e.OwnerID, "type", e.ContentType,
		"key", e.Key, "bytes", e.Payload.Size())
	return nil
}

// PutAsync stores an entry in the background. The write outlives ctx's
// cancellation but not its values; failures are logged.
func (s *Store) PutAsync(ctx context.Context, e *Entry) {
	s.detach(ctx, "put", func(bg context.Context) error {
		// Put already logs failures.
		_ = s.Put(bg, e)
		return nil
	})
}

// Statistics summarizes one owner's entries. An empty content type covers
// all types. On storage failure zero stats are returned with the error.
func (s *Store) Statistics(ctx context.Context, ownerID string, ct ContentType) (Stats, error) {
	c, err := s.backend.Counts(ctx, ownerID, ct)
	if err != nil {
		werr := unavailable("statistics", err)
		s.logger.Warn("Cache statistics unavailable", "owner", ownerID, "type", ct, "error", werr)
		return Stats{}, werr
	}
	st := ComputeStats(c.Entries, c.Accesses)
	st.TotalBytes = c.Bytes
	return st, nil
}

// ComputeStats derives the savings estimate from raw counts: every access
// beyond the first generation of an entry is one saved billed call.
func ComputeStats(totalCached, totalAccesses int64) Stats {
	saved := totalAccesses - totalCached
	if saved < 0 {
		saved = 0
	}
	var percent int64
	if totalAccesses > 0 {
		percent = int64(math.Round(100 * float64(saved) / float64(totalAccesses)))
	}
	return Stats{
		TotalCached:             totalCached,
		TotalAccesses:           totalAccesses,
		EstimatedSavedCalls:     saved,
		EstimatedSavingsPercent: percent,
	}
}

// Purge deletes all entries of an owner, optionally only of one type.
func (s *Store) Purge(ctx context.Context, ownerID string, ct ContentType) (int64, error) {
	n, err := s.backend.Purge(ctx, ownerID, ct)
	if err != nil {
		werr := unavailable("purge", err)
		s.logger.Error("Cache purge failed", "owner", ownerID, "type", ct, "error", werr)
		return 0, werr
	}
	s.logger.Info("Purged cache entries", "owner", ownerID, "type", ct, "count", n)
	return n, nil
}

// deleteOlderThan is used by Maintenance.
func (s *Store) deleteOlderThan(ctx context.Context, ownerID string, cutoff time.Time) (int64, error) {
	n, err := s.backend.DeleteOlderThan(ctx, ownerID, cutoff)
	if err != nil {
		return 0, unavailable("eviction", err)
	}
	return n, nil
}

// Wait blocks until all detached tasks have finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close waits for detached tasks and closes the backend.
func (s *Store) Close() error {
	s.wg.Wait()
	return s.backend.Close()
}

func (s *Store) detach(ctx context.Context, op string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if err := fn(bg); err != nil {
			s.logger.Warn("Background cache task failed", "op", op, "error", unavailable(op, err))
		}
	}()
}

func unavailable(op string, err error) error {
	return tts.NewTTSError(tts.ErrorCodeCacheUnavailable, "cache "+op+" failed", err)
}
