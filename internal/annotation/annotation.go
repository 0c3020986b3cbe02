// Package annotation defines the remote annotation schema ingested from the
// document store and the severity/log-level alphabets shared across the
// pattern and pipeline packages.
package annotation

import "strings"

// Annotation is the raw document shape stored in the remote library, one per
// curated log pattern. Collections holding these are named
// "{product}_annotations".
type Annotation struct {
	ID             string      `bson:"_id,omitempty" json:"id"`
	RawData        string      `bson:"raw_data" json:"raw_data"`
	Regexes        []string    `bson:"regexes" json:"regexes"`
	Severity       string      `bson:"severity" json:"severity"`
	Category       []string    `bson:"category" json:"category"`
	Template       string      `bson:"template" json:"template"`
	Production     bool        `bson:"production" json:"production"`
	Content        bool        `bson:"content" json:"content"`
	Documentation  string      `bson:"documentation" json:"documentation"`
	InternalNotes  string      `bson:"internal_notes" json:"internal_notes"`
	Multiline      *bool       `bson:"multiline,omitempty" json:"multiline,omitempty"`
	External       bool        `bson:"external" json:"external"`
	Parameters     []Parameter `bson:"parameters" json:"parameters"`
}

// Parameter is a named field extractor carried on an Annotation.
type Parameter struct {
	Name  string `bson:"name" json:"name"`
	Regex string `bson:"regex" json:"regex"`
	Enum  string `bson:"enum,omitempty" json:"enum,omitempty"`
}

// Severity is the four-level diagnostic severity used throughout the system.
// It intentionally does not reuse the base repo's three-level compiler
// Severity (diag.Severity): this domain needs a Hint tier below Info for
// DEBUG/TRACE/VERBOSE-derived detections, and the base type has no room for
// one without breaking its own callers.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityHint
)

// Rank gives the dedup ordering: lower rank wins. This matches SeverityError
// through SeverityHint's declaration order, but is kept explicit since
// pipeline dedup logic depends on the numeric relationship.
func (s Severity) Rank() int { return int(s) }

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "Error"
	case SeverityWarning:
		return "Warning"
	case SeverityInfo:
		return "Info"
	case SeverityHint:
		return "Hint"
	default:
		return "Unknown"
	}
}

// LSPSeverity maps to the LSP DiagnosticSeverity integer codes
// (Error=1, Warning=2, Information=3, Hint=4).
func (s Severity) LSPSeverity() int {
	switch s {
	case SeverityError:
		return 1
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 3
	case SeverityHint:
		return 4
	default:
		return 3
	}
}

// ParseSeverity maps a free-form severity label to the canonical Severity,
// per the conversion rules in SPEC_FULL.md §4.A. Unknown labels default to
// Info; ok reports whether the label was recognized.
func ParseSeverity(label string) (sev Severity, ok bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "error", "critical", "fatal", "severe":
		return SeverityError, true
	case "warning", "warn", "caution":
		return SeverityWarning, true
	case "info", "information", "notice":
		return SeverityInfo, true
	case "hint", "debug", "trace", "verbose":
		return SeverityHint, true
	default:
		return SeverityInfo, false
	}
}

// LogLevel is the lexical level alphabet scanned for in raw log lines.
type LogLevel uint8

const (
	LevelFatal LogLevel = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
	LevelVerbose
)

func (l LogLevel) String() string {
	switch l {
	case LevelFatal:
		return "FATAL"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	case LevelVerbose:
		return "VERBOSE"
	default:
		return "UNKNOWN"
	}
}

// DefaultSeverity is the canonical LogLevel -> Severity mapping used when a
// pattern has no explicit log_level_triggers entry for a detected level.
func (l LogLevel) DefaultSeverity() Severity {
	switch l {
	case LevelFatal, LevelError:
		return SeverityError
	case LevelWarn:
		return SeverityWarning
	case LevelInfo:
		return SeverityInfo
	case LevelDebug, LevelTrace, LevelVerbose:
		return SeverityHint
	default:
		return SeverityInfo
	}
}

// LevelAlias pairs a scanned-for lexical token with the LogLevel it maps to.
type LevelAlias struct {
	Token string
	Level LogLevel
}

// LevelTokens lists the lexical tokens scanned for by pattern.DetectLogLevel.
// That scan picks the token starting earliest in the line; the list order
// only breaks ties between tokens starting at the same index (e.g. "ERROR"
// is listed before "ERR", so "ERROR" claims the match).
var LevelTokens = []LevelAlias{
	{"FATAL", LevelFatal},
	{"CRITICAL", LevelFatal},
	{"ERROR", LevelError},
	{"ERR", LevelError},
	{"WARN", LevelWarn},
	{"WARNING", LevelWarn},
	{"INFO", LevelInfo},
	{"INFORMATION", LevelInfo},
	{"DEBUG", LevelDebug},
	{"DBG", LevelDebug},
	{"TRACE", LevelTrace},
	{"TRC", LevelTrace},
	{"VERBOSE", LevelVerbose},
	{"VERB", LevelVerbose},
}
