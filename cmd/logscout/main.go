package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"golang.org/x/term"

	"logscout/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "logscout",
	Short: "log-scout language server and annotation toolchain",
	Long:  `log-scout analyzes log files against a remote annotation library and surfaces the results as LSP diagnostics.`,
}

var (
	timeoutCancel   context.CancelFunc
	timeoutDuration time.Duration
)

func main() {
	rootCmd.Version = version.VersionString()
	rootCmd.PersistentPreRunE = applyPersistentSetup
	rootCmd.PersistentPostRun = cleanupTimeout

	rootCmd.AddCommand(lspCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(timelineCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().String("config", "", "path to a local logscout.toml config (default ./logscout.toml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "override the pattern cache directory")
	rootCmd.PersistentFlags().String("sync-mode", "", "override the annotation sync mode (offline|online-first|cache-first|always-online)")
	rootCmd.PersistentFlags().Int("max-pool-size", 0, "override the remote MongoDB client's max connection pool size (0 keeps the driver default)")
	rootCmd.PersistentFlags().Int64("cache-ttl", 0, "override the pattern cache's soft-expiry TTL in seconds (0 falls through to the env var/config/default chain)")
	rootCmd.PersistentFlags().Int("timeout", 30, "command timeout in seconds")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// applyPersistentSetup resolves --color into fatih/color's global switch
// before applyTimeout arms the command's deadline.
func applyPersistentSetup(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Root().PersistentFlags().GetString("color")
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		color.NoColor = !isTerminal(os.Stdout)
	}
	return applyTimeout(cmd, args)
}

// buildLogger returns a zap logger honoring the --quiet flag. It serves the
// CLI's own diagnostics and is also handed to the LSP server, which logs
// its transport and publish errors through it.
func buildLogger(cmd *cobra.Command) *zap.Logger {
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	if quiet {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// applyTimeout wraps the command context with a deadline, except for the
// lsp command, which runs for the lifetime of the editor session.
func applyTimeout(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "lsp" {
		return nil
	}

	secs, err := cmd.Root().PersistentFlags().GetInt("timeout")
	if err != nil {
		return fmt.Errorf("failed to read timeout flag: %w", err)
	}
	if secs <= 0 {
		return fmt.Errorf("timeout must be greater than zero")
	}

	timeoutDuration = time.Duration(secs) * time.Second
	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutDuration)
	timeoutCancel = cancel

	cmd.SetContext(ctx)
	cmd.Root().SetContext(ctx)

	go func() {
		<-ctx.Done()
		if ctx.Err() == context.DeadlineExceeded {
			fmt.Fprintf(os.Stderr, "logscout: command timed out after %s\n", timeoutDuration)
			os.Exit(1)
		}
	}()

	return nil
}

func cleanupTimeout(*cobra.Command, []string) {
	if timeoutCancel != nil {
		timeoutCancel()
		timeoutCancel = nil
	}
}
