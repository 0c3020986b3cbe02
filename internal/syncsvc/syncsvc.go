// Package syncsvc implements the Sync Service (component H): the policy
// layer deciding when to trust the on-disk cache versus fetching fresh
// annotations from the remote store, grounded in
// original_source/src/tagscout/mod.rs.
package syncsvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"logscout/internal/annotation"
	"logscout/internal/cache"
	"logscout/internal/cachefile"
	"logscout/internal/pattern"
	"logscout/internal/remote"
)

// Mode selects the sync policy.
type Mode int

const (
	OfflineOnly Mode = iota
	OnlineFirst
	CacheFirst
	AlwaysOnline
)

func (m Mode) String() string {
	switch m {
	case OfflineOnly:
		return "OfflineOnly"
	case OnlineFirst:
		return "OnlineFirst"
	case CacheFirst:
		return "CacheFirst"
	case AlwaysOnline:
		return "AlwaysOnline"
	default:
		return "Unknown"
	}
}

// Result reports what one Sync call did.
type Result struct {
	PatternsFetched int
	PatternsCached  int
	FromCache       bool
	DurationMS      int64
	Warnings        []string
}

// Service owns a remote client, a cache manager, and the current in-memory
// cache snapshot, and serializes sync operations via singleflight so at
// most one remote fetch is in flight at a time.
type Service struct {
	mode       Mode
	client     *remote.Client
	manager    *cachefile.Manager
	converter  *pattern.Converter
	logger     *zap.Logger
	ttlSeconds int64

	group singleflight.Group

	mu       sync.RWMutex
	current  *cache.PatternCache
	lastSync time.Time

	cronMu      sync.Mutex
	cronEngine  *cron.Cron
	cronEntries map[string]cron.EntryID
}

// New builds a Service. client may be nil when mode is OfflineOnly. A nil
// logger is replaced with zap.NewNop(). ttlSeconds stamps every cache this
// Service creates or refreshes (<= 0 means the cache never expires, per
// cache.PatternCache.IsExpired).
func New(mode Mode, client *remote.Client, manager *cachefile.Manager, converter *pattern.Converter, logger *zap.Logger, ttlSeconds int64) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{mode: mode, client: client, manager: manager, converter: converter, logger: logger, ttlSeconds: ttlSeconds}
}

// Initialize attempts a remote connectivity check (unless OfflineOnly) and
// then runs an initial Sync. In AlwaysOnline/OnlineFirst a failed
// connection is fatal; in CacheFirst it is only a warning; OfflineOnly
// skips the check entirely.
func (s *Service) Initialize(ctx context.Context) (*Result, error) {
	if s.mode != OfflineOnly {
		if s.client == nil {
			if s.mode == AlwaysOnline || s.mode == OnlineFirst {
				return nil, fmt.Errorf("syncsvc: mode %s requires a remote client", s.mode)
			}
			s.logger.Warn("no remote client configured, continuing with cache only", zap.String("mode", s.mode.String()))
		} else if err := s.client.TestConnection(ctx); err != nil {
			if s.mode == AlwaysOnline || s.mode == OnlineFirst {
				return nil, fmt.Errorf("syncsvc: initial connection check failed: %w", err)
			}
			s.logger.Warn("initial connection check failed, continuing with cache", zap.Error(err))
		}
	}
	return s.Sync(ctx)
}

// Sync runs the policy dispatch for the service's configured Mode,
// measuring total duration once around the whole dispatch (the inner
// syncFromRemote/syncFromCache helpers report DurationMS: 0 and let this
// call overwrite it).
func (s *Service) Sync(ctx context.Context) (*Result, error) {
	start := time.Now()
	v, err, _ := s.group.Do("sync", func() (any, error) {
		return s.dispatch(ctx)
	})
	if err != nil {
		return nil, err
	}
	result := v.(*Result)
	result.DurationMS = time.Since(start).Milliseconds()

	s.mu.Lock()
	s.lastSync = time.Now()
	s.mu.Unlock()

	return result, nil
}

func (s *Service) dispatch(ctx context.Context) (*Result, error) {
	switch s.mode {
	case OfflineOnly:
		return s.syncFromCache()
	case AlwaysOnline:
		return s.syncFromRemote(ctx)
	case OnlineFirst:
		result, err := s.syncFromRemote(ctx)
		if err != nil {
			s.logger.Warn("online-first remote sync failed, falling back to cache", zap.Error(err))
			cacheResult, cacheErr := s.syncFromCache()
			if cacheErr != nil {
				return nil, fmt.Errorf("syncsvc: remote sync failed (%v) and cache fallback failed: %w", err, cacheErr)
			}
			cacheResult.Warnings = append(cacheResult.Warnings, fmt.Sprintf("remote sync failed: %v", err))
			return cacheResult, nil
		}
		return result, nil
	case CacheFirst:
		if s.manager.IsCacheValid() {
			return s.syncFromCache()
		}
		result, err := s.syncFromRemote(ctx)
		if err != nil {
			s.logger.Warn("cache-first remote sync failed, serving stale cache", zap.Error(err))
			cacheResult, cacheErr := s.syncFromCache()
			if cacheErr != nil {
				return nil, fmt.Errorf("syncsvc: remote sync failed (%v) and no cache available: %w", err, cacheErr)
			}
			cacheResult.Warnings = append(cacheResult.Warnings, fmt.Sprintf("remote sync failed, serving stale cache: %v", err))
			return cacheResult, nil
		}
		return result, nil
	default:
		return nil, fmt.Errorf("syncsvc: unknown mode %d", s.mode)
	}
}

func (s *Service) syncFromCache() (*Result, error) {
	pc, err := s.manager.Load()
	if err != nil {
		return nil, fmt.Errorf("syncsvc: load cache: %w", err)
	}
	s.mu.Lock()
	s.current = pc
	s.mu.Unlock()
	return &Result{PatternsFetched: len(pc.Patterns), PatternsCached: len(pc.Patterns), FromCache: true, DurationMS: 0}, nil
}

func (s *Service) syncFromRemote(ctx context.Context) (*Result, error) {
	if s.client == nil {
		return nil, fmt.Errorf("syncsvc: no remote client configured")
	}
	productAnnotations, err := s.client.FetchAllAnnotations(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncsvc: fetch annotations: %w", err)
	}

	items := make([]pattern.AnnotatedProduct, 0)
	annotationsByID := make(map[string]annotation.Annotation)
	for _, pa := range productAnnotations {
		for _, a := range pa.Annotations {
			items = append(items, pattern.AnnotatedProduct{Product: pa.Product, Annotation: a})
			annotationsByID[a.ID] = a
		}
	}
	converted := s.converter.ConvertBatchWithProducts(items)

	source := cache.Source{Database: "", Collection: ""}
	pc, err := s.manager.LoadOrCreate(source, s.ttlSeconds)
	if err != nil {
		return nil, fmt.Errorf("syncsvc: load or create cache: %w", err)
	}
	// LoadOrCreate only stamps the TTL when it creates a fresh cache; a
	// cache loaded from an earlier run keeps whatever TTL it was last
	// stamped with, so a config change never takes effect without this.
	pc.Metadata.TTLSeconds = s.ttlSeconds

	for _, p := range converted.Patterns {
		pc.AddPattern(annotationsByID[p.ID], *p)
	}

	if err := s.manager.Save(pc); err != nil {
		return nil, fmt.Errorf("syncsvc: save cache: %w", err)
	}

	s.mu.Lock()
	s.current = pc
	s.mu.Unlock()

	var warnings []string
	for _, e := range converted.Errors {
		warnings = append(warnings, fmt.Sprintf("annotation %s: %v", e.AnnotationID, e.Err))
	}

	return &Result{
		PatternsFetched: len(converted.Patterns),
		PatternsCached:  len(pc.Patterns),
		FromCache:       false,
		DurationMS:      0,
		Warnings:        warnings,
	}, nil
}

// ForceRefresh bypasses the configured Mode and always performs a remote
// sync.
func (s *Service) ForceRefresh(ctx context.Context) (*Result, error) {
	start := time.Now()
	v, err, _ := s.group.Do("sync", func() (any, error) {
		return s.syncFromRemote(ctx)
	})
	if err != nil {
		return nil, err
	}
	result := v.(*Result)
	result.DurationMS = time.Since(start).Milliseconds()
	s.mu.Lock()
	s.lastSync = time.Now()
	s.mu.Unlock()
	return result, nil
}

// StartAutoRefresh schedules a periodic Sync at the given interval until
// ctx is cancelled, letting any in-flight sync finish before returning.
// Sync failures are logged and never stop the schedule.
func (s *Service) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil {
				s.logger.Warn("auto-refresh sync failed", zap.Error(err))
			}
		}
	}
}

// ScheduleSync registers a standard 5-field cron expression (e.g. "0 */6 *
// * *") that triggers a Sync on its own schedule, independent of
// StartAutoRefresh's fixed interval. It lazily starts an internal
// cron.Cron engine on first use and returns a schedule id that
// StopSchedule accepts. Sync failures are logged and never unregister the
// schedule.
func (s *Service) ScheduleSync(ctx context.Context, cronExpr string) (string, error) {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()

	if s.cronEngine == nil {
		s.cronEngine = cron.New()
		s.cronEntries = make(map[string]cron.EntryID)
		s.cronEngine.Start()
	}

	id := uuid.NewString()
	entryID, err := s.cronEngine.AddFunc(cronExpr, func() {
		if _, err := s.Sync(ctx); err != nil {
			s.logger.Warn("scheduled sync failed", zap.String("schedule_id", id), zap.Error(err))
		}
	})
	if err != nil {
		return "", fmt.Errorf("syncsvc: invalid cron expression %q: %w", cronExpr, err)
	}
	s.cronEntries[id] = entryID
	return id, nil
}

// StopSchedule removes a previously registered ScheduleSync entry.
func (s *Service) StopSchedule(id string) error {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()

	entryID, ok := s.cronEntries[id]
	if !ok {
		return fmt.Errorf("syncsvc: no schedule with id %q", id)
	}
	s.cronEngine.Remove(entryID)
	delete(s.cronEntries, id)
	return nil
}

// StopAllSchedules stops the internal cron engine and clears every
// registered schedule. Safe to call even if ScheduleSync was never used.
func (s *Service) StopAllSchedules() {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cronEngine == nil {
		return
	}
	s.cronEngine.Stop()
	s.cronEngine = nil
	s.cronEntries = nil
}

// GetPatterns returns every pattern in the current cache snapshot.
func (s *Service) GetPatterns() []*pattern.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	return s.current.GetAllPatterns()
}

// GetPatternsByCategory filters the current snapshot by category.
func (s *Service) GetPatternsByCategory(category string) []*pattern.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	return s.current.GetPatternsByCategory(category)
}

// GetCacheStats returns the current snapshot's metadata.
func (s *Service) GetCacheStats() (cache.Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return cache.Metadata{}, false
	}
	return s.current.Metadata, true
}

// HasPatterns reports whether the current snapshot holds any patterns.
func (s *Service) HasPatterns() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && len(s.current.Patterns) > 0
}

// LastSyncTime returns the time of the most recently completed Sync call.
func (s *Service) LastSyncTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync, !s.lastSync.IsZero()
}
