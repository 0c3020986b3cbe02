package annotation

import "testing"

func TestSeverityRankOrdering(t *testing.T) {
	if SeverityError.Rank() >= SeverityWarning.Rank() {
		t.Errorf("Error rank %d should be lower than Warning rank %d", SeverityError.Rank(), SeverityWarning.Rank())
	}
	if SeverityWarning.Rank() >= SeverityInfo.Rank() {
		t.Errorf("Warning rank %d should be lower than Info rank %d", SeverityWarning.Rank(), SeverityInfo.Rank())
	}
	if SeverityInfo.Rank() >= SeverityHint.Rank() {
		t.Errorf("Info rank %d should be lower than Hint rank %d", SeverityInfo.Rank(), SeverityHint.Rank())
	}
}

func TestSeverityLSPSeverity(t *testing.T) {
	cases := []struct {
		sev  Severity
		want int
	}{
		{SeverityError, 1},
		{SeverityWarning, 2},
		{SeverityInfo, 3},
		{SeverityHint, 4},
	}
	for _, c := range cases {
		if got := c.sev.LSPSeverity(); got != c.want {
			t.Errorf("%s.LSPSeverity() = %d, want %d", c.sev, got, c.want)
		}
	}
}

func TestParseSeverity(t *testing.T) {
	cases := []struct {
		label  string
		want   Severity
		wantOK bool
	}{
		{"error", SeverityError, true},
		{"CRITICAL", SeverityError, true},
		{"  fatal  ", SeverityError, true},
		{"warning", SeverityWarning, true},
		{"warn", SeverityWarning, true},
		{"info", SeverityInfo, true},
		{"notice", SeverityInfo, true},
		{"debug", SeverityHint, true},
		{"trace", SeverityHint, true},
		{"gibberish", SeverityInfo, false},
		{"", SeverityInfo, false},
	}
	for _, c := range cases {
		got, ok := ParseSeverity(c.label)
		if got != c.want || ok != c.wantOK {
			t.Errorf("ParseSeverity(%q) = (%s, %v), want (%s, %v)", c.label, got, ok, c.want, c.wantOK)
		}
	}
}

func TestLogLevelDefaultSeverity(t *testing.T) {
	cases := []struct {
		level LogLevel
		want  Severity
	}{
		{LevelFatal, SeverityError},
		{LevelError, SeverityError},
		{LevelWarn, SeverityWarning},
		{LevelInfo, SeverityInfo},
		{LevelDebug, SeverityHint},
		{LevelTrace, SeverityHint},
		{LevelVerbose, SeverityHint},
	}
	for _, c := range cases {
		if got := c.level.DefaultSeverity(); got != c.want {
			t.Errorf("%s.DefaultSeverity() = %s, want %s", c.level, got, c.want)
		}
	}
}

func TestLevelTokensPriorityOrder(t *testing.T) {
	// CRITICAL must be scanned before ERROR's substring match could claim
	// something downstream, and must resolve to LevelFatal, not LevelError.
	found := false
	for _, alias := range LevelTokens {
		if alias.Token == "CRITICAL" {
			found = true
			if alias.Level != LevelFatal {
				t.Errorf("CRITICAL maps to %s, want %s", alias.Level, LevelFatal)
			}
			break
		}
	}
	if !found {
		t.Fatal("CRITICAL not present in LevelTokens")
	}
}
