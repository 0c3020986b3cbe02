// Package cachefile layers atomic on-disk persistence on top of an
// internal/cache.PatternCache: the Cache Manager (component F).
package cachefile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"logscout/internal/cache"
)

// ErrCacheNotFound is returned by Load when the cache file does not exist.
var ErrCacheNotFound = errors.New("cachefile: cache not found")

const (
	defaultCacheFile  = "tagscout_patterns.json"
	defaultBackupFile = "tagscout_patterns.backup.json"
)

// Manager owns a cache directory and the primary/backup file pair within it.
type Manager struct {
	dir        string
	cacheFile  string
	backupFile string
	logger     *zap.Logger
}

// NewManager builds a Manager rooted at dir. A nil logger is replaced with
// zap.NewNop().
func NewManager(dir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dir:        dir,
		cacheFile:  filepath.Join(dir, defaultCacheFile),
		backupFile: filepath.Join(dir, defaultBackupFile),
		logger:     logger,
	}
}

// Load reads the cache file from disk. It returns ErrCacheNotFound if the
// file does not exist.
func (m *Manager) Load() (*cache.PatternCache, error) {
	raw, err := os.ReadFile(m.cacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("cachefile: read %s: %w", m.cacheFile, err)
	}
	var pc cache.PatternCache
	if err := json.Unmarshal(raw, &pc); err != nil {
		return nil, fmt.Errorf("cachefile: decode %s: %w", m.cacheFile, err)
	}
	return &pc, nil
}

// IsCacheValid reports whether a cache file exists, decodes, and is not
// expired. It never returns an error; any failure is reported as invalid.
func (m *Manager) IsCacheValid() bool {
	pc, err := m.Load()
	if err != nil {
		return false
	}
	return !pc.IsExpired()
}

// LoadOrCreate loads the existing cache file, or creates and saves a fresh
// empty cache (stamped with source) if none exists.
func (m *Manager) LoadOrCreate(source cache.Source, ttlSeconds int64) (*cache.PatternCache, error) {
	pc, err := m.Load()
	if err == nil {
		return pc, nil
	}
	if !errors.Is(err, ErrCacheNotFound) {
		return nil, err
	}
	pc = cache.New(ttlSeconds, source)
	if err := m.Save(pc); err != nil {
		return nil, err
	}
	return pc, nil
}

// Save writes pc to the cache file atomically: encode to a temp file in the
// same directory, back up any existing cache file, then rename the temp
// file over the primary path. A failure partway through never leaves the
// primary cache file truncated or half-written.
func (m *Manager) Save(pc *cache.PatternCache) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("cachefile: mkdir %s: %w", m.dir, err)
	}

	encoded, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		return fmt.Errorf("cachefile: encode: %w", err)
	}

	if _, err := os.Stat(m.cacheFile); err == nil {
		if err := copyFile(m.cacheFile, m.backupFile); err != nil {
			m.logger.Warn("failed to write cache backup", zap.Error(err))
		}
	}

	tmp := filepath.Join(m.dir, "tagscout_patterns.tmp")
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("cachefile: write temp file: %w", err)
	}
	if err := os.Rename(tmp, m.cacheFile); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("cachefile: rename temp file into place: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, raw, 0o644)
}

// Update applies a batch of annotation/pattern pairs to a freshly loaded (or
// created) cache and, if autoSave is true, persists the result.
func (m *Manager) Update(pc *cache.PatternCache, entries []cache.CachedPattern, autoSave bool) error {
	for _, e := range entries {
		pc.AddPattern(e.Annotation, e.Pattern)
	}
	if autoSave {
		return m.Save(pc)
	}
	return nil
}

// Export writes pc to path in either JSON or MessagePack encoding, chosen
// by the path's extension (".msgpack"/".mp" select MessagePack; anything
// else selects JSON). This supplements the primary cache file format for
// operators moving a cache between machines (SPEC_FULL.md §6).
func Export(pc *cache.PatternCache, path string) error {
	var encoded []byte
	var err error
	if useMsgpack(path) {
		encoded, err = msgpack.Marshal(pc)
	} else {
		encoded, err = json.MarshalIndent(pc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cachefile: encode export: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("cachefile: write export %s: %w", path, err)
	}
	return nil
}

// Import reads a cache previously written by Export.
func Import(path string) (*cache.PatternCache, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cachefile: read import %s: %w", path, err)
	}
	var pc cache.PatternCache
	if useMsgpack(path) {
		err = msgpack.Unmarshal(raw, &pc)
	} else {
		err = json.Unmarshal(bytes.TrimSpace(raw), &pc)
	}
	if err != nil {
		return nil, fmt.Errorf("cachefile: decode import %s: %w", path, err)
	}
	return &pc, nil
}

func useMsgpack(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".msgpack" || ext == ".mp"
}
