package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"logscout/internal/cachefile"
	"logscout/internal/localconfig"
	"logscout/internal/pattern"
	"logscout/internal/remote"
	"logscout/internal/syncsvc"
)

// resolvedConfig carries the CLI > env > TOML > default precedence chain
// described in SPEC_FULL.md §4.M, fully resolved for one command
// invocation.
type resolvedConfig struct {
	mongoURI        string
	database        string
	syncMode        syncsvc.Mode
	cacheDir        string
	localFile       *localconfig.Config
	maxPoolSize     int
	cacheTTLSeconds int64
}

func resolveConfig(cmd *cobra.Command) (*resolvedConfig, error) {
	remoteDefaults := remote.DefaultConfig()

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = "./logscout.toml"
	}
	var localFile *localconfig.Config
	if _, err := os.Stat(configPath); err == nil {
		parsed, err := localconfig.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading local config: %w", err)
		}
		if violations := localconfig.ValidateConfig(parsed); len(violations) > 0 {
			msgs := make([]string, 0, len(violations))
			for _, v := range violations {
				msgs = append(msgs, v.Error())
			}
			return nil, fmt.Errorf("invalid local config %s: %s", configPath, strings.Join(msgs, "; "))
		}
		localFile = parsed
	}

	cfg := &resolvedConfig{
		mongoURI:        remoteDefaults.URI,
		database:        remoteDefaults.Database,
		syncMode:        syncsvc.CacheFirst,
		cacheDir:        defaultCacheDir(),
		localFile:       localFile,
		cacheTTLSeconds: localconfig.DefaultSettings().CacheTTLSeconds,
	}
	if localFile != nil {
		cfg.cacheTTLSeconds = localFile.Settings.CacheTTLSeconds
	}

	if v := os.Getenv("LOGSCOUT_MONGODB_URI"); v != "" {
		cfg.mongoURI = v
	}
	if v := os.Getenv("LOGSCOUT_DATABASE"); v != "" {
		cfg.database = v
	}
	if v := os.Getenv("LOGSCOUT_SYNC_MODE"); v != "" {
		mode, err := parseSyncMode(v)
		if err != nil {
			return nil, err
		}
		cfg.syncMode = mode
	}
	if v := os.Getenv("LOGSCOUT_CACHE_DIR"); v != "" {
		cfg.cacheDir = v
	}
	if v := os.Getenv("LOGSCOUT_CACHE_TTL_SECONDS"); v != "" {
		ttl, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid LOGSCOUT_CACHE_TTL_SECONDS %q: %w", v, err)
		}
		cfg.cacheTTLSeconds = ttl
	}

	if v, _ := cmd.Flags().GetString("sync-mode"); v != "" {
		mode, err := parseSyncMode(v)
		if err != nil {
			return nil, err
		}
		cfg.syncMode = mode
	}
	if v, _ := cmd.Flags().GetString("cache-dir"); v != "" {
		cfg.cacheDir = v
	}
	if v, _ := cmd.Flags().GetInt("max-pool-size"); v != 0 {
		cfg.maxPoolSize = v
	}
	if v, _ := cmd.Flags().GetInt64("cache-ttl"); v != 0 {
		cfg.cacheTTLSeconds = v
	}

	return cfg, nil
}

func parseSyncMode(s string) (syncsvc.Mode, error) {
	switch strings.ToLower(s) {
	case "offlineonly", "offline-only", "offline":
		return syncsvc.OfflineOnly, nil
	case "onlinefirst", "online-first":
		return syncsvc.OnlineFirst, nil
	case "cachefirst", "cache-first":
		return syncsvc.CacheFirst, nil
	case "alwaysonline", "always-online", "online":
		return syncsvc.AlwaysOnline, nil
	default:
		return 0, fmt.Errorf("unknown sync mode %q", s)
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "logscout")
	}
	return ".logscout-cache"
}

// buildSyncService wires a remote client (unless OfflineOnly), a cache
// manager, and a converter into a syncsvc.Service.
func buildSyncService(ctx context.Context, cfg *resolvedConfig, logger *zap.Logger) (*syncsvc.Service, error) {
	manager := cachefile.NewManager(cfg.cacheDir, logger)
	converter := pattern.NewConverter(pattern.DefaultConverterConfig(), logger)

	var client *remote.Client
	if cfg.syncMode != syncsvc.OfflineOnly {
		remoteCfg := remote.DefaultConfig()
		remoteCfg.URI = cfg.mongoURI
		remoteCfg.Database = cfg.database
		if cfg.maxPoolSize > 0 {
			// CLI flags arrive as platform int; the mongo driver wants
			// uint64, and a negative value here would otherwise wrap
			// around silently.
			poolSize, err := safecast.Conv[uint64](cfg.maxPoolSize)
			if err != nil {
				return nil, fmt.Errorf("invalid max pool size: %w", err)
			}
			remoteCfg.MaxPoolSize = poolSize
		}
		c, err := remote.Connect(ctx, remoteCfg, logger)
		if err != nil {
			if cfg.syncMode == syncsvc.AlwaysOnline || cfg.syncMode == syncsvc.OnlineFirst {
				return nil, fmt.Errorf("connecting to remote annotation store: %w", err)
			}
			logger.Warn("could not connect to remote annotation store, continuing with cache", zap.Error(err))
		} else {
			client = c
		}
	}

	return syncsvc.New(cfg.syncMode, client, manager, converter, logger, cfg.cacheTTLSeconds), nil
}

func newCacheManager(cfg *resolvedConfig, logger *zap.Logger) *cachefile.Manager {
	return cachefile.NewManager(cfg.cacheDir, logger)
}
