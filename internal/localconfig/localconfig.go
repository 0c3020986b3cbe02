// Package localconfig implements the Local Pattern Config (component J): a
// TOML file letting an operator run the LSP offline or layer site-specific
// patterns on top of the remote corpus, grounded in
// original_source/src/config.rs.
package localconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"logscout/internal/annotation"
	"logscout/internal/pattern"
)

// Settings holds the analysis-tuning knobs an operator can override
// locally.
type Settings struct {
	DetectionThreshold     float64 `toml:"detection_threshold"`
	MultilinePatterns      bool    `toml:"multiline_patterns"`
	MultilineContextWindow int     `toml:"multiline_context_window"`
	MaxFileSizeMB          int     `toml:"max_file_size_mb"`
	CacheTTLSeconds        int64   `toml:"cache_ttl_seconds"`
}

// DefaultSettings mirrors config.rs's defaults. CacheTTLSeconds follows
// mod.rs's SyncServiceConfig::default, which stamps every fresh cache with
// a one-hour TTL.
func DefaultSettings() Settings {
	return Settings{
		DetectionThreshold:     0.85,
		MultilinePatterns:      true,
		MultilineContextWindow: 10,
		MaxFileSizeMB:          100,
		CacheTTLSeconds:        3600,
	}
}

// LocalPattern is one [[patterns]] table entry: a Pattern-shaped record
// that needs no Annotation round-trip, since the local file already speaks
// Pattern fields directly.
type LocalPattern struct {
	ID       string `toml:"id"`
	Regex    string `toml:"regex"`
	Severity string `toml:"severity"`
	Category string `toml:"category"`
	Template string `toml:"template"`
}

// Config is the parsed shape of a local TOML pattern file.
type Config struct {
	Settings Settings       `toml:"settings"`
	Patterns []LocalPattern `toml:"patterns"`
}

// LoadConfig parses path into a Config.
func LoadConfig(path string) (*Config, error) {
	cfg := Config{Settings: DefaultSettings()}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("localconfig: decode %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadPatterns converts every LocalPattern in cfg into a pattern.Pattern.
func LoadPatterns(cfg *Config) []*pattern.Pattern {
	out := make([]*pattern.Pattern, 0, len(cfg.Patterns))
	for _, lp := range cfg.Patterns {
		sev, _ := annotation.ParseSeverity(lp.Severity)
		out = append(out, &pattern.Pattern{
			ID:             lp.ID,
			Name:           lp.ID,
			AnnotationText: lp.Template,
			Regex:          lp.Regex,
			ModeInfo:       pattern.PatternMode{Mode: pattern.SingleLine},
			Severity:       sev,
			Category:       lp.Category,
			Enabled:        true,
		})
	}
	return out
}

// MergePatterns combines remote and local pattern sets, deduplicating by
// id. Local entries take priority over a remote pattern sharing the same
// id, matching the original's merge rule: patterns loaded from the local
// file before a remote sync win outright.
func MergePatterns(remote, local []*pattern.Pattern) []*pattern.Pattern {
	byID := make(map[string]*pattern.Pattern, len(remote)+len(local))
	var order []string

	for _, p := range remote {
		if _, exists := byID[p.ID]; !exists {
			order = append(order, p.ID)
		}
		byID[p.ID] = p
	}
	for _, p := range local {
		if _, exists := byID[p.ID]; !exists {
			order = append(order, p.ID)
		}
		byID[p.ID] = p
	}

	out := make([]*pattern.Pattern, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// ValidationError is one accumulated ValidateConfig violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig checks cfg for duplicate pattern ids, an out-of-range
// detection threshold, and a non-positive context window, accumulating
// every violation rather than stopping at the first.
func ValidateConfig(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Settings.DetectionThreshold < 0 || cfg.Settings.DetectionThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "settings.detection_threshold",
			Message: fmt.Sprintf("must be within [0,1], got %v", cfg.Settings.DetectionThreshold),
		})
	}
	if cfg.Settings.MultilineContextWindow <= 0 {
		errs = append(errs, ValidationError{
			Field:   "settings.multiline_context_window",
			Message: fmt.Sprintf("must be > 0, got %d", cfg.Settings.MultilineContextWindow),
		})
	}
	if cfg.Settings.CacheTTLSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "settings.cache_ttl_seconds",
			Message: fmt.Sprintf("must be >= 0 (0 means never expires), got %d", cfg.Settings.CacheTTLSeconds),
		})
	}

	seen := make(map[string]bool)
	for _, p := range cfg.Patterns {
		if seen[p.ID] {
			errs = append(errs, ValidationError{
				Field:   "patterns",
				Message: fmt.Sprintf("duplicate pattern id %q", p.ID),
			})
			continue
		}
		seen[p.ID] = true
	}

	return errs
}
