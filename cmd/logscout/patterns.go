package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"logscout/internal/cache"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect the local pattern cache without starting the server",
}

var patternsListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List cached patterns",
	SilenceUsage: true,
	RunE:         runPatternsList,
}

var patternsInspectCmd = &cobra.Command{
	Use:          "inspect <pattern-id>",
	Short:        "Show full detail for one cached pattern",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runPatternsInspect,
}

func init() {
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsInspectCmd)
}

type patternListEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Service  string `json:"service"`
	Severity string `json:"severity"`
}

func runPatternsList(cmd *cobra.Command, _ []string) error {
	pc, err := loadLocalCache(cmd)
	if err != nil {
		return err
	}

	entries := make([]patternListEntry, 0, len(pc.Patterns))
	for id, cp := range pc.Patterns {
		entries = append(entries, patternListEntry{
			ID:       id,
			Name:     cp.Pattern.Name,
			Category: cp.Pattern.Category,
			Service:  cp.Pattern.Service,
			Severity: cp.Pattern.Severity.String(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func runPatternsInspect(cmd *cobra.Command, args []string) error {
	pc, err := loadLocalCache(cmd)
	if err != nil {
		return err
	}

	cp, ok := pc.Patterns[args[0]]
	if !ok {
		return fmt.Errorf("no cached pattern with id %q", args[0])
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(cp)
}

func loadLocalCache(cmd *cobra.Command) (*cache.PatternCache, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration: %w", err)
	}
	logger := buildLogger(cmd)
	defer logger.Sync()

	manager := newCacheManager(cfg, logger)
	pc, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("loading pattern cache: %w", err)
	}
	return pc, nil
}
