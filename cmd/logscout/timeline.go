package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"logscout/internal/pipeline"
	"logscout/internal/ui"
)

var timelineCmd = &cobra.Command{
	Use:          "timeline <file>",
	Short:        "Analyze a log file once and render the detections as a scrollable timeline",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runTimeline,
}

func runTimeline(cmd *cobra.Command, args []string) error {
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

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	result := pipeline.Analyze(string(data), eng, nil)

	model := ui.NewTimelineModel(args[0], result)
	program := tea.NewProgram(model, tea.WithOutput(cmd.OutOrStdout()))
	_, err = program.Run()
	return err
}
