package pattern

import (
	"regexp"
	"strconv"
	"strings"

	"logscout/internal/annotation"
)

// PatternMatch is one non-overlapping match of a CompiledPattern's primary
// regex against a line.
type PatternMatch struct {
	Start, End int
	Text       string
	// Captures holds every capture group of the primary regex, named ones
	// included, in group order (group 1 at index 0); an unmatched group is
	// stored as "".
	Captures []string
	// NamedCaptures holds this match's own named capture groups (primary
	// regex only), keyed by group name. An unmatched or empty group is
	// omitted, not stored as "".
	NamedCaptures map[string]string
}

// CompiledPattern pairs a Pattern with its compiled primary regex and
// parameter regexes. It is immutable once constructed and is shared by
// reference across concurrent readers and across every Detection it
// produces — the engine never mutates a CompiledPattern in place.
type CompiledPattern struct {
	Pattern *Pattern

	primary    *regexp.Regexp
	parameters []compiledParameter
}

type compiledParameter struct {
	name  string
	regex *regexp.Regexp
}

// Compile compiles p's primary regex (returning an error if it fails to
// compile — this is fatal at engine-construction time per SPEC_FULL.md
// §4.B) and each parameter regex (non-fatal: a parameter whose regex fails
// to compile is dropped, and its name is returned in droppedParams for the
// caller to log).
func Compile(p *Pattern) (*CompiledPattern, []string, error) {
	primary, err := regexp.Compile(p.Regex)
	if err != nil {
		return nil, nil, err
	}

	cp := &CompiledPattern{Pattern: p, primary: primary}

	var dropped []string
	for _, pe := range p.ParameterExtractors {
		re, err := regexp.Compile(pe.Regex)
		if err != nil {
			dropped = append(dropped, pe.Name)
			continue
		}
		cp.parameters = append(cp.parameters, compiledParameter{name: pe.Name, regex: re})
	}
	return cp, dropped, nil
}

// Matches reports whether the primary regex finds at least one match in
// line.
func (c *CompiledPattern) Matches(line string) bool {
	return c.primary.MatchString(line)
}

// FindMatches returns every non-overlapping match of the primary regex in
// line, in left-to-right order.
func (c *CompiledPattern) FindMatches(line string) []PatternMatch {
	idxs := c.primary.FindAllSubmatchIndex([]byte(line), -1)
	if len(idxs) == 0 {
		return nil
	}
	names := c.primary.SubexpNames()
	matches := make([]PatternMatch, 0, len(idxs))
	for _, idx := range idxs {
		m := PatternMatch{Start: idx[0], End: idx[1], Text: line[idx[0]:idx[1]]}
		for g := 1; g*2 < len(idx); g++ {
			gs, ge := idx[g*2], idx[g*2+1]
			if gs < 0 {
				m.Captures = append(m.Captures, "")
				continue
			}
			val := line[gs:ge]
			m.Captures = append(m.Captures, val)
			if g < len(names) && names[g] != "" && val != "" {
				if m.NamedCaptures == nil {
					m.NamedCaptures = make(map[string]string)
				}
				m.NamedCaptures[names[g]] = val
			}
		}
		matches = append(matches, m)
	}
	return matches
}

// DetectLogLevel scans the upper-cased line for every token in
// annotation.LevelTokens and returns the LogLevel of the token that starts
// earliest in the line; when two tokens start at the same index, the one
// listed first wins. This is lexical, not semantic: a token embedded inside a
// URL or identifier produces a false positive, by design (SPEC_FULL.md §9).
func DetectLogLevel(line string) (annotation.LogLevel, bool) {
	upper := strings.ToUpper(line)
	bestIdx := -1
	var bestLevel annotation.LogLevel
	for _, alias := range annotation.LevelTokens {
		if idx := strings.Index(upper, alias.Token); idx >= 0 {
			if bestIdx == -1 || idx < bestIdx {
				bestIdx = idx
				bestLevel = alias.Level
			}
		}
	}
	if bestIdx == -1 {
		return 0, false
	}
	return bestLevel, true
}

// ExtractFields builds the field_values map for one specific match:
// primaryCaptures are that match's own named-group captures (from
// PatternMatch.NamedCaptures), plus every parameter extractor applied
// against the full line (not the matched substring). Taking the match's
// own captures, rather than re-deriving them from fullLine, is required
// when a line carries more than one non-overlapping match with distinct
// captures.
func (c *CompiledPattern) ExtractFields(primaryCaptures map[string]string, fullLine string) map[string]string {
	fields := make(map[string]string, len(primaryCaptures)+len(c.parameters))
	for name, val := range primaryCaptures {
		fields[name] = val
	}

	for _, p := range c.parameters {
		m := p.regex.FindStringSubmatch(fullLine)
		if m == nil || len(m) < 2 {
			continue
		}
		fields[p.name] = m[1]
	}
	return fields
}

// EvaluateSeverity applies SPEC_FULL.md §4.B's three-step resolution: a
// log-level trigger wins outright; otherwise the first matching condition
// trigger wins; otherwise the pattern's configured default.
func (c *CompiledPattern) EvaluateSeverity(level annotation.LogLevel, hasLevel bool, fields map[string]string) annotation.Severity {
	p := c.Pattern
	if hasLevel {
		if sev, ok := p.LogLevelTriggers[level]; ok {
			return sev
		}
	}
	for _, trig := range p.ConditionTriggers {
		value, present := fields[trig.Field]
		if !present {
			continue
		}
		if evaluateCondition(trig.Operator, value, trig.Value) {
			return trig.Severity
		}
	}
	return p.Severity
}

func evaluateCondition(op ConditionOperator, actual, want string) bool {
	switch op {
	case OpEquals:
		return actual == want
	case OpContains:
		return strings.Contains(actual, want)
	case OpRegex:
		re, err := regexp.Compile(want)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	case OpGreaterThan, OpLessThan:
		a, aErr := strconv.ParseFloat(actual, 64)
		b, bErr := strconv.ParseFloat(want, 64)
		if aErr != nil || bErr != nil {
			return false
		}
		if op == OpGreaterThan {
			return a > b
		}
		return a < b
	default:
		return false
	}
}
