package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"logscout/internal/syncsvc"
)

var syncForce bool

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "ignore TTL and always pull from the remote annotation store")
}

var syncCmd = &cobra.Command{
	Use:          "sync",
	Short:        "Synchronize the local pattern cache with the annotation library",
	SilenceUsage: true,
	RunE:         runSync,
}

func runSync(cmd *cobra.Command, _ []string) error {
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

	var result *syncsvc.Result
	if syncForce {
		result, err = svc.ForceRefresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("forcing refresh: %w", err)
		}
	} else {
		result, err = svc.Sync(cmd.Context())
		if err != nil {
			return fmt.Errorf("syncing patterns: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
