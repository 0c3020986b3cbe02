package pattern

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"logscout/internal/annotation"
)

// ConversionError is returned by Convert when an annotation cannot be
// turned into a Pattern. The Reason distinguishes the taxonomy entries from
// SPEC_FULL.md §7 (InvalidRegex / InvalidAnnotation) without requiring
// callers to string-match Error().
type ConversionError struct {
	Reason  string
	Message string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func newConversionError(reason, format string, args ...any) *ConversionError {
	return &ConversionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ConverterConfig tunes Converter behavior; the defaults match
// original_source/src/tagscout/converter.rs's ConverterConfig::default().
type ConverterConfig struct {
	ConvertMultiline      bool
	DefaultContextWindow  int
	ValidateRegex         bool
	IncludeInactive       bool
	SeverityMapping       map[string]annotation.Severity
	ProductServiceMapping map[string]string
}

// DefaultConverterConfig returns the conversion policy used when the server
// is not given an explicit local override.
func DefaultConverterConfig() ConverterConfig {
	return ConverterConfig{
		ConvertMultiline:     true,
		DefaultContextWindow: 10,
		ValidateRegex:        true,
		IncludeInactive:      false,
	}
}

// Converter turns remote Annotations into internal Patterns.
type Converter struct {
	config ConverterConfig
	logger *zap.Logger
}

// NewConverter builds a Converter. A nil logger is replaced with zap.NewNop().
func NewConverter(config ConverterConfig, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{config: config, logger: logger}
}

var namedGroupPattern = regexp.MustCompile(`\(\?P<([^>]+)>`)

// extractCaptureFields returns the named capture group names present in a
// regex source string, in order of appearance.
func extractCaptureFields(pattern string) []string {
	matches := namedGroupPattern.FindAllStringSubmatch(pattern, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// Convert turns one Annotation, with its owning product label, into a
// Pattern. product may be empty when the annotation's origin is not
// product-scoped (e.g. a locally loaded pattern passing through the same
// path).
func (c *Converter) Convert(a *annotation.Annotation, product string) (*Pattern, error) {
	if !a.Production && !c.config.IncludeInactive {
		return nil, newConversionError("InvalidAnnotation", "annotation is not production-ready")
	}
	if a.Content {
		return nil, newConversionError("InvalidAnnotation", "content annotation, not a pattern")
	}
	if len(a.Regexes) == 0 {
		return nil, newConversionError("InvalidAnnotation", "missing required field: regexes")
	}

	primary := a.Regexes[0]
	if c.config.ValidateRegex {
		if _, err := regexp.Compile(primary); err != nil {
			return nil, newConversionError("InvalidRegex", "%s: %v", primary, err)
		}
	}

	severity := c.convertSeverity(a.Severity)
	mode := c.determineMode(primary)
	name := buildName(a)

	annotationText := a.Template
	if annotationText == "" {
		if a.RawData != "" {
			annotationText = "Pattern matching: " + truncateRunes(a.RawData, 100)
		} else {
			annotationText = "log-scout pattern"
		}
	}

	var category string
	if len(a.Category) > 0 {
		category = a.Category[0]
	}
	tags := append([]string(nil), a.Category...)

	var action string
	if a.Documentation != "" {
		action = a.Documentation
	}

	extractors := make([]ParameterExtractor, 0, len(a.Parameters))
	for _, p := range a.Parameters {
		extractors = append(extractors, ParameterExtractor{Name: p.Name, Regex: p.Regex})
	}

	meta := cloneAnnotation(a)

	return &Pattern{
		ID:                  a.ID,
		Name:                name,
		AnnotationText:      annotationText,
		Regex:               primary,
		ModeInfo:            mode,
		Severity:            severity,
		Category:            category,
		Service:             product,
		Tags:                tags,
		Action:              action,
		Enabled:             a.Production,
		LogLevelTriggers:    map[annotation.LogLevel]annotation.Severity{},
		ConditionTriggers:   nil,
		CaptureFields:       extractCaptureFields(primary),
		ParameterExtractors: extractors,
		SourceMetadata:      meta,
		MultilineHint:       a.Multiline,
	}, nil
}

func cloneAnnotation(a *annotation.Annotation) *annotation.Annotation {
	// Round-trip through JSON to get an independent deep copy without
	// hand-writing a field-by-field clone; the annotation shape is small and
	// this happens once per conversion, not per match.
	raw, err := json.Marshal(a)
	if err != nil {
		return a
	}
	var out annotation.Annotation
	if err := json.Unmarshal(raw, &out); err != nil {
		return a
	}
	return &out
}

func (c *Converter) convertSeverity(label string) annotation.Severity {
	if c.config.SeverityMapping != nil {
		if sev, ok := c.config.SeverityMapping[label]; ok {
			return sev
		}
	}
	sev, ok := annotation.ParseSeverity(label)
	if !ok {
		c.logger.Warn("unknown severity, defaulting to Info", zap.String("severity", label))
	}
	return sev
}

func (c *Converter) determineMode(regex string) PatternMode {
	if !c.config.ConvertMultiline {
		return PatternMode{Mode: SingleLine}
	}
	if strings.Contains(regex, `\n`) || strings.Contains(regex, "(?s)") || strings.Contains(regex, "(?m)") {
		return PatternMode{Mode: MultiLine, ContextLines: c.config.DefaultContextWindow}
	}
	return PatternMode{Mode: SingleLine}
}

func buildName(a *annotation.Annotation) string {
	if a.RawData != "" {
		parts := strings.Fields(a.RawData)
		var namePart string
		if len(parts) > 3 {
			take := parts[3:]
			if len(take) > 5 {
				take = take[:5]
			}
			namePart = strings.Join(take, " ")
		} else {
			namePart = truncateRunes(a.RawData, 50)
		}
		if len([]rune(namePart)) > 50 {
			return truncateRunes(namePart, 50) + "..."
		}
		return namePart
	}
	if a.Template != "" {
		return truncateRunes(a.Template, 50)
	}
	if len(a.Regexes) > 0 {
		return truncateRunes(a.Regexes[0], 50)
	}
	return "Pattern " + a.ID
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ConversionResult summarizes a batch conversion.
type ConversionResult struct {
	Patterns    []*Pattern
	Errors      []BatchError
	Total       int
	SuccessRate float64
}

// BatchError pairs a source annotation id with the conversion failure it hit.
type BatchError struct {
	AnnotationID string
	Err          error
}

// AnnotatedProduct pairs a product label with the annotation it was fetched
// from; syncsvc builds these by flattening the per-product annotation
// lists that remote.Client.FetchAllAnnotations returns.
type AnnotatedProduct struct {
	Product    string
	Annotation annotation.Annotation
}

// ConvertBatchWithProducts converts a batch of (product, annotation) pairs,
// never aborting on a single failure: it accumulates errors and returns
// every pattern that did convert.
func (c *Converter) ConvertBatchWithProducts(items []AnnotatedProduct) *ConversionResult {
	result := &ConversionResult{Total: len(items)}
	for _, item := range items {
		p, err := c.Convert(&item.Annotation, item.Product)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{AnnotationID: item.Annotation.ID, Err: err})
			continue
		}
		result.Patterns = append(result.Patterns, p)
	}
	if result.Total > 0 {
		result.SuccessRate = float64(len(result.Patterns)) / float64(result.Total)
	}
	if len(result.Errors) > 0 {
		c.logger.Warn("conversion errors",
			zap.Int("failed", len(result.Errors)),
			zap.Int("succeeded", len(result.Patterns)))
	}
	return result
}

// Summary returns a human-readable one-line summary of the conversion.
func (r *ConversionResult) Summary() string {
	return fmt.Sprintf("Converted %d/%d patterns (%.1f%% success rate, %d errors)",
		len(r.Patterns), r.Total, r.SuccessRate*100, len(r.Errors))
}
