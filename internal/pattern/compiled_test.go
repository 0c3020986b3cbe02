package pattern

import (
	"testing"

	"logscout/internal/annotation"
)

func mustCompile(t *testing.T, p *Pattern) *CompiledPattern {
	t.Helper()
	cp, dropped, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(dropped) != 0 {
		t.Fatalf("unexpected dropped parameter extractors: %v", dropped)
	}
	return cp
}

func TestCompileInvalidRegexIsFatal(t *testing.T) {
	_, _, err := Compile(&Pattern{ID: "bad", Regex: "("})
	if err == nil {
		t.Fatal("expected an error compiling an unbalanced regex")
	}
}

func TestCompileDropsInvalidParameterExtractors(t *testing.T) {
	p := &Pattern{
		ID:    "p1",
		Regex: "connection (refused|reset)",
		ParameterExtractors: []ParameterExtractor{
			{Name: "good", Regex: `host=(\S+)`},
			{Name: "bad", Regex: "("},
		},
	}
	cp, dropped, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(dropped) != 1 || dropped[0] != "bad" {
		t.Fatalf("dropped = %v, want [bad]", dropped)
	}
	line := "connection refused host=10.0.0.1"
	matches := cp.FindMatches(line)
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	fields := cp.ExtractFields(matches[0].NamedCaptures, line)
	if fields["good"] != "10.0.0.1" {
		t.Errorf("good = %q, want 10.0.0.1", fields["good"])
	}
	if _, ok := fields["bad"]; ok {
		t.Error("dropped extractor should not appear in extracted fields")
	}
}

func TestMatchesAndFindMatches(t *testing.T) {
	cp := mustCompile(t, &Pattern{ID: "p1", Regex: `timeout after (\d+)ms`})

	if !cp.Matches("request timeout after 500ms") {
		t.Error("expected a match")
	}
	if cp.Matches("nothing to see here") {
		t.Error("expected no match")
	}

	matches := cp.FindMatches("timeout after 10ms and timeout after 20ms")
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}
	if matches[0].Captures[0] != "10" || matches[1].Captures[0] != "20" {
		t.Errorf("captures = %v, %v, want 10, 20", matches[0].Captures, matches[1].Captures)
	}
}

func TestDetectLogLevelPicksEarliestToken(t *testing.T) {
	level, ok := DetectLogLevel("a WARN followed by an ERROR later")
	if !ok {
		t.Fatal("expected a level to be detected")
	}
	if level != annotation.LevelWarn {
		t.Errorf("level = %s, want %s (earliest byte index wins)", level, annotation.LevelWarn)
	}
}

func TestDetectLogLevelNoToken(t *testing.T) {
	if _, ok := DetectLogLevel("just a plain message"); ok {
		t.Error("expected no level to be detected")
	}
}

func TestExtractFieldsNamedGroups(t *testing.T) {
	cp := mustCompile(t, &Pattern{ID: "p1", Regex: `user=(?P<user>\w+) code=(?P<code>\d+)`})
	line := "user=alice code=500"
	matches := cp.FindMatches(line)
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	fields := cp.ExtractFields(matches[0].NamedCaptures, line)
	if fields["user"] != "alice" || fields["code"] != "500" {
		t.Errorf("fields = %v, want user=alice code=500", fields)
	}
}

func TestExtractFieldsUsesEachMatchsOwnCaptures(t *testing.T) {
	cp := mustCompile(t, &Pattern{ID: "p1", Regex: `user=(?P<user>\w+)`})
	line := "user=alice then user=bob"
	matches := cp.FindMatches(line)
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}
	first := cp.ExtractFields(matches[0].NamedCaptures, line)
	second := cp.ExtractFields(matches[1].NamedCaptures, line)
	if first["user"] != "alice" {
		t.Errorf("first match user = %q, want alice", first["user"])
	}
	if second["user"] != "bob" {
		t.Errorf("second match user = %q, want bob", second["user"])
	}
}

func TestEvaluateSeverityResolutionOrder(t *testing.T) {
	p := &Pattern{
		ID:       "p1",
		Regex:    `status=(\d+)`,
		Severity: annotation.SeverityInfo,
		LogLevelTriggers: map[annotation.LogLevel]annotation.Severity{
			annotation.LevelError: annotation.SeverityError,
		},
		ConditionTriggers: []SeverityTrigger{
			{Field: "status", Operator: OpGreaterThan, Value: "499", Severity: annotation.SeverityWarning},
		},
	}
	cp := mustCompile(t, p)

	// A log-level trigger wins outright, even if a condition would also match.
	sev := cp.EvaluateSeverity(annotation.LevelError, true, map[string]string{"status": "503"})
	if sev != annotation.SeverityError {
		t.Errorf("log-level trigger: sev = %s, want %s", sev, annotation.SeverityError)
	}

	// No matching log level: the condition trigger applies.
	sev = cp.EvaluateSeverity(annotation.LevelInfo, true, map[string]string{"status": "503"})
	if sev != annotation.SeverityWarning {
		t.Errorf("condition trigger: sev = %s, want %s", sev, annotation.SeverityWarning)
	}

	// Neither applies: falls back to the pattern's default.
	sev = cp.EvaluateSeverity(annotation.LevelInfo, true, map[string]string{"status": "200"})
	if sev != annotation.SeverityInfo {
		t.Errorf("default: sev = %s, want %s", sev, annotation.SeverityInfo)
	}
}
