package pipeline

import (
	"encoding/json"
	"testing"

	"logscout/internal/annotation"
	"logscout/internal/engine"
	"logscout/internal/pattern"
)

func TestSubstituteReplacesKnownFieldsAndLeavesUnknownVerbatim(t *testing.T) {
	out := Substitute("Connection problem: {{ reason }} on {{host}}", map[string]string{"reason": "refused"})
	want := "Connection problem: refused on {{host}}"
	if out != want {
		t.Errorf("Substitute = %q, want %q", out, want)
	}
}

func TestAnalyzeDeduplicatesOverlappingDetections(t *testing.T) {
	patterns := []*pattern.Pattern{
		{
			ID:       "conn-error",
			Regex:    `connection refused`,
			Severity: annotation.SeverityError,
			Enabled:  true,
			ModeInfo: pattern.PatternMode{Mode: pattern.SingleLine},
		},
		{
			ID:       "conn-warn",
			Regex:    `connection refused`,
			Severity: annotation.SeverityWarning,
			Enabled:  true,
			ModeInfo: pattern.PatternMode{Mode: pattern.SingleLine},
		},
	}
	eng, err := engine.New(patterns, 0.85, 10, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	result := Analyze("2024-01-01 ERROR connection refused by peer", eng, nil)
	if len(result.Diagnostics) != 1 {
		t.Fatalf("len(Diagnostics) = %d, want 1 (overlapping matches should dedupe)", len(result.Diagnostics))
	}
	if result.Diagnostics[0].Severity != annotation.SeverityError {
		t.Errorf("surviving severity = %s, want Error (lowest rank wins)", result.Diagnostics[0].Severity)
	}
	if result.LinesCount != 1 {
		t.Errorf("LinesCount = %d, want 1", result.LinesCount)
	}
}

func TestAnalyzeMaterializesTemplateAndParameters(t *testing.T) {
	patterns := []*pattern.Pattern{
		{
			ID:             "timeout",
			Regex:          `timeout after (?P<ms>\d+)ms`,
			Severity:       annotation.SeverityWarning,
			Enabled:        true,
			AnnotationText: "Request timed out after {{ ms }}ms",
			Category:       "network",
			ModeInfo:       pattern.PatternMode{Mode: pattern.SingleLine},
		},
	}
	eng, err := engine.New(patterns, 0.85, 10, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	result := Analyze("request timeout after 500ms", eng, nil)
	if len(result.Diagnostics) != 1 {
		t.Fatalf("len(Diagnostics) = %d, want 1", len(result.Diagnostics))
	}
	d := result.Diagnostics[0]
	if d.Data.MergedTemplate != "Request timed out after 500ms" {
		t.Errorf("MergedTemplate = %q, want substituted ms value", d.Data.MergedTemplate)
	}
	if len(d.Data.ExtractedParameters) != 1 || d.Data.ExtractedParameters[0].Name != "ms" {
		t.Errorf("ExtractedParameters = %v, want one ms parameter", d.Data.ExtractedParameters)
	}
	if d.Code != "timeout" {
		t.Errorf("Code = %q, want timeout", d.Code)
	}
	if d.Source != Source {
		t.Errorf("Source = %q, want %q", d.Source, Source)
	}
}

func TestMaterializedDataFlattensFullAnnotationWithOverridesWinning(t *testing.T) {
	patterns := []*pattern.Pattern{
		{
			ID:             "timeout",
			Regex:          `timeout`,
			Severity:       annotation.SeverityWarning,
			Enabled:        true,
			Category:       "network",
			AnnotationText: "Request timed out",
			ModeInfo:       pattern.PatternMode{Mode: pattern.SingleLine},
			SourceMetadata: &annotation.Annotation{
				ID:            "timeout",
				RawData:       "raw timeout data",
				Regexes:       []string{"timeout"},
				Severity:      "warning",
				Category:      []string{"network"},
				Template:      "stale template",
				Documentation: "see runbook",
				InternalNotes: "internal only",
				External:      true,
			},
		},
	}
	eng, err := engine.New(patterns, 0.85, 10, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	result := Analyze("request timeout", eng, nil)
	if len(result.Diagnostics) != 1 {
		t.Fatalf("len(Diagnostics) = %d, want 1", len(result.Diagnostics))
	}

	encoded, err := json.Marshal(result.Diagnostics[0].Data)
	if err != nil {
		t.Fatalf("json.Marshal(Data): %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(encoded, &flat); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}

	// Baseline annotation fields not named by any override field survive.
	if flat["raw_data"] != "raw timeout data" {
		t.Errorf("raw_data = %v, want the baseline annotation field to survive", flat["raw_data"])
	}
	if flat["internal_notes"] != "internal only" {
		t.Errorf("internal_notes = %v, want the baseline annotation field to survive", flat["internal_notes"])
	}
	if flat["external"] != true {
		t.Errorf("external = %v, want the baseline annotation field to survive", flat["external"])
	}

	// An override field (template) wins over the annotation's own field of
	// the same name.
	if flat["template"] != "Request timed out" {
		t.Errorf("template = %v, want the materialized override to win over the annotation's own template", flat["template"])
	}
}

func TestAnalyzeProgressCallback(t *testing.T) {
	eng, err := engine.New(nil, 0.85, 10, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	var lastProcessed, lastTotal int
	Analyze("line one\nline two\nline three", eng, func(processed, total int) {
		lastProcessed, lastTotal = processed, total
	})
	if lastProcessed != 3 || lastTotal != 3 {
		t.Errorf("final progress callback = (%d, %d), want (3, 3)", lastProcessed, lastTotal)
	}
}
