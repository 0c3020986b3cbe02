// Package logcontext implements the Context Processor: a bounded FIFO of
// recently seen lines used to evaluate MultiLine patterns, which match
// against a joined window of context rather than a single line.
package logcontext

import (
	"strings"

	"logscout/internal/detect"
	"logscout/internal/pattern"
)

// Processor is a bounded ring buffer of the most recently pushed lines plus
// a monotone line counter, scoped to one document analysis.
type Processor struct {
	window  int
	lines   []string
	current int
}

// NewProcessor creates a Processor that retains up to window lines. A
// window <= 0 is clamped to 1 so PushLine/GetContext never divide by zero
// or retain an unbounded history.
func NewProcessor(window int) *Processor {
	if window <= 0 {
		window = 1
	}
	return &Processor{window: window, lines: make([]string, 0, window)}
}

// PushLine records line as the most recent line seen, evicting the oldest
// line once the window is full, and advances the monotone counter.
func (p *Processor) PushLine(line string) {
	if len(p.lines) >= p.window {
		copy(p.lines, p.lines[1:])
		p.lines = p.lines[:len(p.lines)-1]
	}
	p.lines = append(p.lines, line)
	p.current++
}

// GetContext returns the last min(k, len(buffer)) lines, oldest first.
func (p *Processor) GetContext(k int) []string {
	if k <= 0 {
		return nil
	}
	if k > len(p.lines) {
		k = len(p.lines)
	}
	start := len(p.lines) - k
	out := make([]string, k)
	copy(out, p.lines[start:])
	return out
}

// CurrentLine returns the monotone line counter (the count of PushLine
// calls since construction or the last Reset).
func (p *Processor) CurrentLine() int {
	return p.current
}

// Reset clears the buffer and the monotone counter.
func (p *Processor) Reset() {
	p.lines = p.lines[:0]
	p.current = 0
}

// CheckMultilinePatterns runs every MultiLine-mode pattern's extraction and
// severity evaluation against the currently buffered context, joined with
// "\n". line_number on the returned detections is the processor's current
// counter value, per SPEC_FULL.md §4.C.
func (p *Processor) CheckMultilinePatterns(patterns []*pattern.CompiledPattern) []detect.Detection {
	var out []detect.Detection
	for _, cp := range patterns {
		if cp.Pattern.ModeInfo.Mode != pattern.MultiLine {
			continue
		}
		window := cp.Pattern.ModeInfo.ContextLines
		if window <= 0 {
			window = 1
		}
		ctx := p.GetContext(window)
		if len(ctx) == 0 {
			continue
		}
		joined := strings.Join(ctx, "\n")
		if !cp.Matches(joined) {
			continue
		}
		matches := cp.FindMatches(joined)
		if len(matches) == 0 {
			continue
		}
		level, hasLevel := pattern.DetectLogLevel(joined)
		fields := cp.ExtractFields(matches[0].NamedCaptures, joined)
		sev := cp.EvaluateSeverity(level, hasLevel, fields)
		out = append(out, detect.Detection{
			Pattern:     cp,
			LineNumber:  p.current,
			MatchedText: joined,
			Context:     ctx,
			LogLevel:    level,
			HasLogLevel: hasLevel,
			Severity:    sev,
			FieldValues: fields,
		})
	}
	return out
}
