// Package detect defines Detection, the shared per-match record produced by
// both the Pattern Engine's single-line path and the Context Processor's
// multi-line path, and consumed by the Detection Pipeline.
package detect

import (
	"logscout/internal/annotation"
	"logscout/internal/pattern"
)

// ColumnRange is a half-open [Start, End) byte range within one line.
type ColumnRange struct {
	Start int
	End   int
}

// Detection is one occurrence of a pattern match in a document. Pattern is
// a shared reference into the owning engine's compiled pattern set — it is
// never copied or mutated, so a Detection remains valid for as long as its
// engine does.
type Detection struct {
	Pattern     *pattern.CompiledPattern
	LineNumber  int
	Column      ColumnRange
	MatchedText string
	Captures    []string
	Context     []string
	LogLevel    annotation.LogLevel
	HasLogLevel bool
	Severity    annotation.Severity
	FieldValues map[string]string
}
