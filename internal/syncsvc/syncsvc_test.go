package syncsvc

import (
	"context"
	"testing"

	"logscout/internal/annotation"
	"logscout/internal/cache"
	"logscout/internal/cachefile"
	"logscout/internal/pattern"
)

func newOfflineService(t *testing.T) (*Service, *cachefile.Manager) {
	t.Helper()
	manager := cachefile.NewManager(t.TempDir(), nil)
	converter := pattern.NewConverter(pattern.DefaultConverterConfig(), nil)
	svc := New(OfflineOnly, nil, manager, converter, nil, 3600)
	return svc, manager
}

func TestModeString(t *testing.T) {
	cases := map[Mode]string{
		OfflineOnly:  "OfflineOnly",
		OnlineFirst:  "OnlineFirst",
		CacheFirst:   "CacheFirst",
		AlwaysOnline: "AlwaysOnline",
		Mode(99):     "Unknown",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}

func TestSyncOfflineOnlyFailsWithoutCache(t *testing.T) {
	svc, _ := newOfflineService(t)
	if _, err := svc.Sync(context.Background()); err == nil {
		t.Fatal("expected OfflineOnly Sync to fail when no cache file exists")
	}
}

func TestSyncOfflineOnlyServesExistingCache(t *testing.T) {
	svc, manager := newOfflineService(t)
	pc := cache.New(0, cache.Source{})
	pc.AddPattern(annotation.Annotation{ID: "a1"}, pattern.Pattern{ID: "p1", Regex: "foo"})
	if err := manager.Save(pc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	result, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.FromCache || result.PatternsCached != 1 {
		t.Errorf("result = %+v, want FromCache=true PatternsCached=1", result)
	}
	if !svc.HasPatterns() {
		t.Error("HasPatterns() should be true after a successful cache sync")
	}
	if _, ok := svc.LastSyncTime(); !ok {
		t.Error("LastSyncTime should report a sync happened")
	}
}

func TestInitializeOfflineOnlySkipsConnectivityCheck(t *testing.T) {
	svc, manager := newOfflineService(t)
	pc := cache.New(0, cache.Source{})
	pc.AddPattern(annotation.Annotation{ID: "a1"}, pattern.Pattern{ID: "p1", Regex: "foo"})
	if err := manager.Save(pc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
}

func TestAlwaysOnlineRequiresClient(t *testing.T) {
	manager := cachefile.NewManager(t.TempDir(), nil)
	converter := pattern.NewConverter(pattern.DefaultConverterConfig(), nil)
	svc := New(AlwaysOnline, nil, manager, converter, nil, 3600)
	if _, err := svc.Initialize(context.Background()); err == nil {
		t.Fatal("expected Initialize to fail: AlwaysOnline with no remote client")
	}
}

func TestScheduleSyncAndStopSchedule(t *testing.T) {
	svc, _ := newOfflineService(t)
	id, err := svc.ScheduleSync(context.Background(), "@every 1h")
	if err != nil {
		t.Fatalf("ScheduleSync: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty schedule id")
	}
	if err := svc.StopSchedule(id); err != nil {
		t.Fatalf("StopSchedule: %v", err)
	}
	if err := svc.StopSchedule(id); err == nil {
		t.Fatal("expected an error removing an already-stopped schedule")
	}
	svc.StopAllSchedules()
}

func TestScheduleSyncRejectsInvalidCronExpression(t *testing.T) {
	svc, _ := newOfflineService(t)
	if _, err := svc.ScheduleSync(context.Background(), "not a cron expression"); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestStopAllSchedulesIsSafeWithoutScheduleSync(t *testing.T) {
	svc, _ := newOfflineService(t)
	svc.StopAllSchedules()
}

func TestNewStoresConfiguredTTLForRemoteSyncs(t *testing.T) {
	manager := cachefile.NewManager(t.TempDir(), nil)
	converter := pattern.NewConverter(pattern.DefaultConverterConfig(), nil)
	svc := New(CacheFirst, nil, manager, converter, nil, 7200)
	if svc.ttlSeconds != 7200 {
		t.Errorf("ttlSeconds = %d, want 7200 (the value passed to New, not a hardcoded 0)", svc.ttlSeconds)
	}
}

func TestGetPatternsByCategoryBeforeAnySyncReturnsNil(t *testing.T) {
	svc, _ := newOfflineService(t)
	if got := svc.GetPatterns(); got != nil {
		t.Errorf("GetPatterns() before any sync = %v, want nil", got)
	}
	if got := svc.GetPatternsByCategory("network"); got != nil {
		t.Errorf("GetPatternsByCategory() before any sync = %v, want nil", got)
	}
	if _, ok := svc.GetCacheStats(); ok {
		t.Error("GetCacheStats() before any sync should report ok=false")
	}
}
