// Package pipeline implements the Detection Pipeline (component I):
// full-document analysis over an engine.Engine snapshot, deduplication,
// template substitution, and diagnostic materialization.
package pipeline

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"logscout/internal/annotation"
	"logscout/internal/detect"
	"logscout/internal/engine"
)

// Source is the fixed diagnostic source identifier.
const Source = "log-scout"

// Position is a zero-based (line, column) location.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range is a half-open [Start, End) span across one line.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Parameter is one extracted field, carried in Diagnostic.Data for display.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Data is the structured payload attached to every materialized
// Diagnostic, carrying everything a client needs to render it without
// re-running analysis.
type Data struct {
	Template            string      `json:"template"`
	MergedTemplate      string      `json:"merged_template"`
	LogLine             string      `json:"log_line"`
	ExtractedParameters []Parameter `json:"extracted_parameters"`
	PatternID           string      `json:"pattern_id"`
	PatternName         string      `json:"pattern_name"`
	Action              string      `json:"action,omitempty"`
	Category            string      `json:"category"`
	MatchedText         string      `json:"matched_text"`
	PatternRegex        string      `json:"pattern_regex"`
	Timestamp           string      `json:"timestamp,omitempty"`
	LogLevel            string      `json:"log_level,omitempty"`

	// AnnotationFields holds every field of the originating annotation
	// document, used as the baseline that the fields above are merged
	// over (winning on key collision) when Data is marshaled, per
	// SPEC_FULL.md §4.I.
	AnnotationFields map[string]any `json:"-"`
}

// MarshalJSON flattens AnnotationFields and Data's own fields into a single
// JSON object, mirroring the original implementation's data_map
// construction (server.rs's detection_to_diagnostic): every annotation key
// is copied in first, then the fields below overwrite the ones they name.
func (d Data) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.AnnotationFields)+12)
	for k, v := range d.AnnotationFields {
		out[k] = v
	}
	out["template"] = d.Template
	out["merged_template"] = d.MergedTemplate
	out["log_line"] = d.LogLine
	out["extracted_parameters"] = d.ExtractedParameters
	out["pattern_id"] = d.PatternID
	out["pattern_name"] = d.PatternName
	if d.Action != "" {
		out["action"] = d.Action
	}
	out["category"] = d.Category
	out["matched_text"] = d.MatchedText
	out["pattern_regex"] = d.PatternRegex
	if d.Timestamp != "" {
		out["timestamp"] = d.Timestamp
	}
	if d.LogLevel != "" {
		out["log_level"] = d.LogLevel
	}
	return json.Marshal(out)
}

// Diagnostic is one materialized, document-ready detection.
type Diagnostic struct {
	Range            Range               `json:"range"`
	Severity         annotation.Severity `json:"severity"`
	Code             string              `json:"code"`
	Source           string              `json:"source"`
	CategoryRendered string              `json:"category_rendered"`
	Template         string              `json:"template"`
	Data             Data                `json:"data"`
}

// Result is the outcome of one Analyze call.
type Result struct {
	Diagnostics []Diagnostic
	LinesCount  int
}

// ProgressFunc is invoked periodically during Analyze so a long-running
// caller (the LSP Adapter, the CLI) can report progress. linesProcessed is
// the count of lines analyzed so far.
type ProgressFunc func(linesProcessed, totalLines int)

const progressInterval = 1000

// Analyze runs every line of document through eng, accumulates detections
// from both the single-line and multi-line paths, deduplicates, and
// materializes diagnostics. progress may be nil.
func Analyze(document string, eng *engine.Engine, progress ProgressFunc) *Result {
	lines := strings.Split(document, "\n")
	ctx := eng.NewContextProcessor()
	multi := eng.MultiLinePatterns()

	var detections []detect.Detection
	for i, line := range lines {
		// Normalize to NFC so visually identical log text using different
		// combining-character sequences still matches the same regex.
		line = norm.NFC.String(line)
		detections = append(detections, eng.ProcessLine(line, i)...)

		ctx.PushLine(line)
		if len(multi) > 0 {
			detections = append(detections, ctx.CheckMultilinePatterns(multi)...)
		}

		if progress != nil && (i+1)%progressInterval == 0 {
			progress(i+1, len(lines))
		}
	}
	if progress != nil {
		progress(len(lines), len(lines))
	}

	survivors := dedup(detections)

	diagnostics := make([]Diagnostic, 0, len(survivors))
	for _, d := range survivors {
		diagnostics = append(diagnostics, materialize(d))
	}

	return &Result{Diagnostics: diagnostics, LinesCount: len(lines)}
}

type dedupKey struct {
	line  int
	start int
	end   int
}

// dedup groups detections by (line_number, column_range), keeping the
// highest-severity (lowest rank) survivor per group with insertion-order
// tiebreak, then re-sorts survivors by line number.
func dedup(detections []detect.Detection) []detect.Detection {
	if len(detections) == 0 {
		return nil
	}

	bestIdx := make(map[dedupKey]int)
	order := make([]dedupKey, 0, len(detections))

	for i, d := range detections {
		key := dedupKey{line: d.LineNumber, start: d.Column.Start, end: d.Column.End}
		if existingIdx, ok := bestIdx[key]; ok {
			if detections[i].Severity.Rank() < detections[existingIdx].Severity.Rank() {
				bestIdx[key] = i
			}
			continue
		}
		bestIdx[key] = i
		order = append(order, key)
	}

	survivors := make([]detect.Detection, 0, len(order))
	for _, key := range order {
		survivors = append(survivors, detections[bestIdx[key]])
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].LineNumber < survivors[j].LineNumber
	})
	return survivors
}

func materialize(d detect.Detection) Diagnostic {
	p := d.Pattern.Pattern

	logLine := ""
	if len(d.Context) > 0 {
		logLine = d.Context[0]
	}

	template := p.AnnotationText
	if template == "" {
		template = "(missing)"
	}

	params := make([]Parameter, 0, len(d.FieldValues))
	names := make([]string, 0, len(d.FieldValues))
	for name := range d.FieldValues {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		params = append(params, Parameter{Name: name, Value: d.FieldValues[name]})
	}

	data := Data{
		Template:            template,
		MergedTemplate:      Substitute(template, d.FieldValues),
		LogLine:             logLine,
		ExtractedParameters: params,
		PatternID:           p.ID,
		PatternName:         p.Name,
		Action:              p.Action,
		Category:            p.Category,
		MatchedText:         d.MatchedText,
		PatternRegex:        p.Regex,
		AnnotationFields:    flattenAnnotation(p.SourceMetadata),
	}
	if d.HasLogLevel {
		data.LogLevel = d.LogLevel.String()
	}
	if ts, ok := d.FieldValues["timestamp"]; ok {
		data.Timestamp = ts
	}

	return Diagnostic{
		Range: Range{
			Start: Position{Line: d.LineNumber, Column: d.Column.Start},
			End:   Position{Line: d.LineNumber, Column: d.Column.End},
		},
		Severity:         d.Severity,
		Code:             p.ID,
		Source:           Source,
		CategoryRendered: Substitute(p.Category, d.FieldValues),
		Template:         template,
		Data:             data,
	}
}

// flattenAnnotation round-trips a through JSON to produce a plain
// map[string]any of every field it carries (id, regexes, severity,
// category, template, production, content, documentation,
// internal_notes, multiline, external, parameters), the baseline
// materialize merges Data's own fields over.
func flattenAnnotation(a *annotation.Annotation) map[string]any {
	if a == nil {
		return nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Substitute replaces every {{ NAME }} occurrence (robust to the spacing
// variants {{NAME}}, {{ NAME}}, {{NAME }}) in template with the
// corresponding value from fields. Matching is case-sensitive; a
// placeholder whose name has no entry in fields is left verbatim.
func Substitute(template string, fields map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		name := sub[1]
		if value, ok := fields[name]; ok {
			return value
		}
		return match
	})
}
