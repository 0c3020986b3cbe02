package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"logscout/internal/engine"
	"logscout/internal/localconfig"
	"logscout/internal/lsp"
	"logscout/internal/pattern"
	"logscout/internal/syncsvc"
)

var (
	lspDebounce time.Duration
	lspSyncCron string
)

func init() {
	lspCmd.Flags().DurationVar(&lspDebounce, "debounce", 300*time.Millisecond, "delay before re-analyzing a changed document")
	lspCmd.Flags().StringVar(&lspSyncCron, "sync-cron", "", "cron expression for scheduled background syncs (default: refresh every 5m on a fixed interval)")
}

var lspCmd = &cobra.Command{
	Use:          "lsp",
	Short:        "Run the log-scout language server over stdio",
	SilenceUsage: true,
	RunE:         runLSP,
}

func runLSP(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(cmd)
	defer logger.Sync()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return fmt.Errorf("resolving configuration: %w", err)
	}

	svc, err := buildSyncService(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	if _, err := svc.Initialize(cmd.Context()); err != nil {
		return fmt.Errorf("initializing pattern sync: %w", err)
	}

	eng, err := buildEngine(svc, cfg, logger)
	if err != nil {
		return fmt.Errorf("compiling patterns: %w", err)
	}

	if lspSyncCron != "" {
		if _, err := svc.ScheduleSync(cmd.Context(), lspSyncCron); err != nil {
			return fmt.Errorf("scheduling background sync: %w", err)
		}
		defer svc.StopAllSchedules()
	} else {
		go svc.StartAutoRefresh(cmd.Context(), 5*time.Minute)
	}

	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Debounce: lspDebounce,
		Engine:   eng,
		Sync:     svc,
		Logger:   logger,
	})
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}

// buildEngine compiles the sync service's current pattern set, merged with
// any patterns declared in the local TOML config, into an analysis engine.
func buildEngine(svc *syncsvc.Service, cfg *resolvedConfig, logger *zap.Logger) (*engine.Engine, error) {
	remotePatterns := svc.GetPatterns()

	settings := localconfig.DefaultSettings()
	var localPatterns []*pattern.Pattern
	if cfg.localFile != nil {
		settings = cfg.localFile.Settings
		localPatterns = localconfig.LoadPatterns(cfg.localFile)
	}

	merged := localconfig.MergePatterns(remotePatterns, localPatterns)
	return engine.New(merged, settings.DetectionThreshold, settings.MultilineContextWindow, logger)
}
