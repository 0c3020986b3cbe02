// Package engine implements the Pattern Engine: a compiled, immutable
// snapshot of the enabled pattern set, plus the per-line detection pass
// that drives it.
package engine

import (
	"fmt"

	"go.uber.org/zap"

	"logscout/internal/detect"
	"logscout/internal/logcontext"
	"logscout/internal/pattern"
)

// Engine owns a compiled, immutable snapshot of every enabled Pattern. A
// new Engine is constructed — never mutated in place — whenever the
// pattern set changes, so that analyses in flight finish on a consistent
// snapshot (SPEC_FULL.md §5).
type Engine struct {
	threshold     float64
	contextWindow int

	byID       map[string]*pattern.CompiledPattern
	singleLine []*pattern.CompiledPattern
	multiLine  []*pattern.CompiledPattern
	ordered    []*pattern.CompiledPattern
}

// New compiles every enabled pattern in patterns. Disabled patterns are
// dropped at load time. A primary-regex compile failure is fatal (returns
// an error); a parameter-regex failure is logged and the parameter is
// omitted, per SPEC_FULL.md §4.B/§7.
func New(patterns []*pattern.Pattern, threshold float64, contextWindow int, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		threshold:     threshold,
		contextWindow: contextWindow,
		byID:          make(map[string]*pattern.CompiledPattern),
	}
	for _, p := range patterns {
		if !p.Enabled {
			continue
		}
		cp, dropped, err := pattern.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("engine: compile pattern %q: %w", p.ID, err)
		}
		for _, name := range dropped {
			logger.Warn("parameter extractor regex failed to compile, omitting",
				zap.String("pattern_id", p.ID), zap.String("parameter", name))
		}
		if _, exists := e.byID[p.ID]; exists {
			return nil, fmt.Errorf("engine: duplicate pattern id %q", p.ID)
		}
		e.byID[p.ID] = cp
		e.ordered = append(e.ordered, cp)
		switch p.ModeInfo.Mode {
		case pattern.MultiLine:
			e.multiLine = append(e.multiLine, cp)
		default:
			// Sequence-mode patterns are retained (queryable via GetPattern
			// and friends) but produce no detections; see SPEC_FULL.md §9.
			if p.ModeInfo.Mode == pattern.SingleLine {
				e.singleLine = append(e.singleLine, cp)
			}
		}
	}
	return e, nil
}

// ContextWindow returns the configured multi-line context window, used by
// callers to size their logcontext.Processor.
func (e *Engine) ContextWindow() int {
	if e.contextWindow <= 0 {
		return 1
	}
	return e.contextWindow
}

// MultiLinePatterns returns the engine's MultiLine-mode compiled patterns,
// for driving a logcontext.Processor externally.
func (e *Engine) MultiLinePatterns() []*pattern.CompiledPattern {
	return e.multiLine
}

// ProcessLine runs every SingleLine pattern against line, producing zero or
// more Detections. Per SPEC_FULL.md §8, this is pure: repeated calls with
// the same line and lineNumber return equal detections, since the engine's
// compiled pattern set never changes in place.
func (e *Engine) ProcessLine(line string, lineNumber int) []detect.Detection {
	level, hasLevel := pattern.DetectLogLevel(line)

	var out []detect.Detection
	for _, cp := range e.singleLine {
		matches := cp.FindMatches(line)
		for _, m := range matches {
			fields := cp.ExtractFields(m.NamedCaptures, line)
			sev := cp.EvaluateSeverity(level, hasLevel, fields)
			out = append(out, detect.Detection{
				Pattern:     cp,
				LineNumber:  lineNumber,
				Column:      detect.ColumnRange{Start: m.Start, End: m.End},
				MatchedText: m.Text,
				Captures:    m.Captures,
				Context:     []string{line},
				LogLevel:    level,
				HasLogLevel: hasLevel,
				Severity:    sev,
				FieldValues: fields,
			})
		}
	}
	return out
}

// NewContextProcessor builds a logcontext.Processor sized to this engine's
// configured context window, for callers driving multi-line matching
// alongside ProcessLine.
func (e *Engine) NewContextProcessor() *logcontext.Processor {
	return logcontext.NewProcessor(e.ContextWindow())
}

// GetPattern looks up a compiled pattern by id.
func (e *Engine) GetPattern(id string) (*pattern.CompiledPattern, bool) {
	cp, ok := e.byID[id]
	return cp, ok
}

// GetPatternsByService returns every compiled pattern whose Service label
// matches s.
func (e *Engine) GetPatternsByService(s string) []*pattern.CompiledPattern {
	var out []*pattern.CompiledPattern
	for _, cp := range e.ordered {
		if cp.Pattern.Service == s {
			out = append(out, cp)
		}
	}
	return out
}

// GetPatternsByCategory returns every compiled pattern whose Category
// matches c.
func (e *Engine) GetPatternsByCategory(c string) []*pattern.CompiledPattern {
	var out []*pattern.CompiledPattern
	for _, cp := range e.ordered {
		if cp.Pattern.Category == c {
			out = append(out, cp)
		}
	}
	return out
}

// AllPatterns returns every compiled pattern the engine holds, in load
// order, including Sequence-mode patterns that never produce detections.
func (e *Engine) AllPatterns() []*pattern.CompiledPattern {
	return e.ordered
}

// Len returns the number of enabled patterns the engine loaded.
func (e *Engine) Len() int {
	return len(e.ordered)
}
