// Package pattern holds the internal Pattern/CompiledPattern model: the
// product of converting a remote Annotation, and the regex-backed matcher
// the engine runs per line.
package pattern

import "logscout/internal/annotation"

// Mode selects how a Pattern is matched against document text.
type Mode int

const (
	// SingleLine patterns are matched independently against each line.
	SingleLine Mode = iota
	// MultiLine patterns are matched against the last ContextLines lines
	// joined with "\n", via the Context Processor.
	MultiLine
	// Sequence patterns are modeled but not exercised by this pipeline; see
	// SPEC_FULL.md §9 Open Questions. Reserved for a future
	// signature-detection stage.
	Sequence
)

// PatternMode carries a Mode plus whichever of its parameters apply.
type PatternMode struct {
	Mode Mode
	// ContextLines applies when Mode == MultiLine.
	ContextLines int
	// MaxGapLines applies when Mode == Sequence.
	MaxGapLines int
}

// ConditionOperator is the comparison applied by a SeverityTrigger.
type ConditionOperator int

const (
	OpEquals ConditionOperator = iota
	OpContains
	OpRegex
	OpGreaterThan
	OpLessThan
)

// SeverityTrigger promotes or demotes a pattern's default severity based on
// an extracted field value.
type SeverityTrigger struct {
	Field       string
	Operator    ConditionOperator
	Value       string
	Severity    annotation.Severity
	Description string
}

// ParameterExtractor is a named regex applied to the full line (or full
// joined multi-line context) to produce one field value.
type ParameterExtractor struct {
	Name  string
	Regex string
}

// Pattern is the internal, engine-ready representation of a converted
// Annotation.
type Pattern struct {
	ID             string
	Name           string
	AnnotationText string
	Regex          string
	ModeInfo       PatternMode
	Severity       annotation.Severity
	Category       string
	Service        string
	Tags           []string
	Action         string
	Enabled        bool

	LogLevelTriggers   map[annotation.LogLevel]annotation.Severity
	ConditionTriggers  []SeverityTrigger
	CaptureFields      []string
	ParameterExtractors []ParameterExtractor

	// SourceMetadata preserves the originating Annotation for downstream
	// carriage into diagnostic Data payloads (SPEC_FULL.md §4.I).
	SourceMetadata *annotation.Annotation
	// MultilineHint carries the annotation's advisory multiline flag through
	// for observability; it is never consulted to pick ModeInfo.Mode (see
	// SPEC_FULL.md §9 Open Questions, resolved).
	MultilineHint *bool
}
