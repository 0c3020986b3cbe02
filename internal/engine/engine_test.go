package engine

import (
	"testing"

	"logscout/internal/annotation"
	"logscout/internal/pattern"
)

func TestNewSkipsDisabledPatterns(t *testing.T) {
	patterns := []*pattern.Pattern{
		{ID: "on", Regex: "foo", Enabled: true, ModeInfo: pattern.PatternMode{Mode: pattern.SingleLine}},
		{ID: "off", Regex: "bar", Enabled: false, ModeInfo: pattern.PatternMode{Mode: pattern.SingleLine}},
	}
	eng, err := New(patterns, 0.85, 10, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if eng.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", eng.Len())
	}
	if _, ok := eng.GetPattern("off"); ok {
		t.Error("disabled pattern should not be retained")
	}
}

func TestNewFailsOnInvalidRegex(t *testing.T) {
	patterns := []*pattern.Pattern{{ID: "bad", Regex: "(", Enabled: true}}
	if _, err := New(patterns, 0.85, 10, nil); err == nil {
		t.Fatal("expected an error compiling an invalid regex pattern")
	}
}

func TestNewFailsOnDuplicateID(t *testing.T) {
	patterns := []*pattern.Pattern{
		{ID: "dup", Regex: "foo", Enabled: true},
		{ID: "dup", Regex: "bar", Enabled: true},
	}
	if _, err := New(patterns, 0.85, 10, nil); err == nil {
		t.Fatal("expected an error for a duplicate pattern id")
	}
}

func TestSequencePatternsAreQueryableButProduceNoDetections(t *testing.T) {
	patterns := []*pattern.Pattern{
		{ID: "seq", Regex: "start", Enabled: true, ModeInfo: pattern.PatternMode{Mode: pattern.Sequence}},
	}
	eng, err := New(patterns, 0.85, 10, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := eng.GetPattern("seq"); !ok {
		t.Error("Sequence-mode pattern should still be queryable via GetPattern")
	}
	if detections := eng.ProcessLine("start of something", 0); len(detections) != 0 {
		t.Errorf("Sequence-mode pattern should produce no detections, got %d", len(detections))
	}
}

func TestProcessLineProducesDetectionWithSeverity(t *testing.T) {
	patterns := []*pattern.Pattern{
		{
			ID:       "conn",
			Regex:    `connection (refused|reset)`,
			Enabled:  true,
			Severity: annotation.SeverityWarning,
			ModeInfo: pattern.PatternMode{Mode: pattern.SingleLine},
		},
	}
	eng, err := New(patterns, 0.85, 10, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	detections := eng.ProcessLine("ERROR: connection refused by peer", 5)
	if len(detections) != 1 {
		t.Fatalf("len(detections) = %d, want 1", len(detections))
	}
	d := detections[0]
	if d.LineNumber != 5 {
		t.Errorf("LineNumber = %d, want 5", d.LineNumber)
	}
	if !d.HasLogLevel || d.LogLevel != annotation.LevelError {
		t.Errorf("LogLevel = %s (hasLevel=%v), want ERROR", d.LogLevel, d.HasLogLevel)
	}
	if d.Severity != annotation.SeverityWarning {
		t.Errorf("Severity = %s, want WARNING", d.Severity)
	}
}

func TestGetPatternsByServiceAndCategory(t *testing.T) {
	patterns := []*pattern.Pattern{
		{ID: "a", Regex: "x", Enabled: true, Service: "billing", Category: "network"},
		{ID: "b", Regex: "y", Enabled: true, Service: "billing", Category: "storage"},
		{ID: "c", Regex: "z", Enabled: true, Service: "auth", Category: "network"},
	}
	eng, err := New(patterns, 0.85, 10, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := eng.GetPatternsByService("billing"); len(got) != 2 {
		t.Errorf("GetPatternsByService(billing) = %d patterns, want 2", len(got))
	}
	if got := eng.GetPatternsByCategory("network"); len(got) != 2 {
		t.Errorf("GetPatternsByCategory(network) = %d patterns, want 2", len(got))
	}
}

func TestProcessLineAssignsEachMatchItsOwnNamedCaptures(t *testing.T) {
	patterns := []*pattern.Pattern{
		{
			ID:       "user",
			Regex:    `user=(?P<user>\w+)`,
			Enabled:  true,
			Severity: annotation.SeverityInfo,
			ModeInfo: pattern.PatternMode{Mode: pattern.SingleLine},
		},
	}
	eng, err := New(patterns, 0.85, 10, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	detections := eng.ProcessLine("user=alice then user=bob", 0)
	if len(detections) != 2 {
		t.Fatalf("len(detections) = %d, want 2", len(detections))
	}
	if detections[0].FieldValues["user"] != "alice" {
		t.Errorf("detections[0] user = %q, want alice", detections[0].FieldValues["user"])
	}
	if detections[1].FieldValues["user"] != "bob" {
		t.Errorf("detections[1] user = %q, want bob", detections[1].FieldValues["user"])
	}
}

func TestContextWindowClampsNonPositive(t *testing.T) {
	eng, err := New(nil, 0.85, 0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if eng.ContextWindow() != 1 {
		t.Errorf("ContextWindow() = %d, want 1 for a non-positive configured window", eng.ContextWindow())
	}
}
