// Package cache implements the in-memory Pattern Cache (component E): a
// keyed store of (annotation, pattern) pairs with deterministic placeholder
// normalization, checksum-based change detection, and TTL-based soft
// expiry. Package cachefile layers on-disk persistence on top of it.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"time"

	"logscout/internal/annotation"
	"logscout/internal/pattern"
)

// CachedPattern is one stored entry: the original annotation (for
// provenance and downstream metadata carriage), the converted pattern, the
// time it was cached, and a stable content checksum.
type CachedPattern struct {
	Annotation annotation.Annotation `json:"annotation"`
	Pattern    pattern.Pattern       `json:"pattern"`
	CachedAt   time.Time             `json:"cached_at"`
	Checksum   string                `json:"checksum"`
}

// Metadata describes the cache as a whole.
type Metadata struct {
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
	PatternCount int       `json:"pattern_count"`
	TTLSeconds   int64     `json:"ttl_seconds"`
	Source       Source    `json:"source"`
	Products     []string  `json:"products"`
	Categories   []string  `json:"categories"`
}

// Source describes where a cache's contents came from, for diagnostics and
// cache-file metadata.
type Source struct {
	ConnectionInfo string `json:"connection_info"`
	Database       string `json:"database"`
	Collection     string `json:"collection"`
}

// PatternCache is the in-memory store. All mutation goes through
// AddPattern/Merge so normalization and metadata stay consistent; callers
// needing persistence wrap a PatternCache in a cachefile.Manager.
type PatternCache struct {
	Metadata Metadata                 `json:"metadata"`
	Patterns map[string]CachedPattern `json:"patterns"`
}

const cacheVersion = 1

// New creates an empty cache with the given TTL and source descriptor.
func New(ttlSeconds int64, source Source) *PatternCache {
	now := time.Now().UTC()
	return &PatternCache{
		Metadata: Metadata{
			Version:     cacheVersion,
			CreatedAt:   now,
			LastUpdated: now,
			TTLSeconds:  ttlSeconds,
			Source:      source,
		},
		Patterns: make(map[string]CachedPattern),
	}
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// NormalizePlaceholders rewrites every {{NAME}}, {{ NAME}}, {{NAME }}, or
// {{ NAME }} occurrence in s to the canonical "{{ NAME }}" form.
func NormalizePlaceholders(s string) string {
	return placeholderPattern.ReplaceAllString(s, "{{ $1 }}")
}

// AddPattern inserts or replaces a (annotation, pattern) pair, applying the
// normalization and metadata-update rules of SPEC_FULL.md §4.E.
func (c *PatternCache) AddPattern(a annotation.Annotation, p pattern.Pattern) {
	p.AnnotationText = NormalizePlaceholders(p.AnnotationText)
	p.Category = NormalizePlaceholders(p.Category)
	p.Regex = trimSpace(p.Regex)

	for i := range p.ParameterExtractors {
		// Trim only; case is preserved deliberately — see SPEC_FULL.md §9
		// Open Questions (case-sensitive exact matching against
		// placeholders emitted by pattern authors).
		p.ParameterExtractors[i].Name = trimSpace(p.ParameterExtractors[i].Name)
		p.ParameterExtractors[i].Regex = trimSpace(p.ParameterExtractors[i].Regex)
	}

	now := time.Now().UTC()
	entry := CachedPattern{
		Annotation: a,
		Pattern:    p,
		CachedAt:   now,
		Checksum:   Checksum(a.Regexes, p.Severity, p.AnnotationText),
	}

	if c.Patterns == nil {
		c.Patterns = make(map[string]CachedPattern)
	}
	c.Patterns[p.ID] = entry

	c.Metadata.PatternCount = len(c.Patterns)
	c.Metadata.LastUpdated = now
	c.refreshDerivedMetadata()
}

// Checksum computes a cross-run-stable digest over (regexes, severity,
// template), used for change detection across syncs. crypto/sha256 is used
// in place of the original implementation's in-process hash (Rust's
// DefaultHasher, explicitly documented as non-portable across runs/
// versions) because this checksum must be comparable across process
// invocations and machines — see SPEC_FULL.md §9.
func Checksum(regexes []string, severity annotation.Severity, template string) string {
	h := sha256.New()
	for _, r := range regexes {
		h.Write([]byte(r))
		h.Write([]byte{0})
	}
	h.Write([]byte(severity.String()))
	h.Write([]byte{0})
	h.Write([]byte(template))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *PatternCache) refreshDerivedMetadata() {
	catSet := make(map[string]struct{})
	prodSet := make(map[string]struct{})
	for _, cp := range c.Patterns {
		if cp.Pattern.Category != "" {
			catSet[cp.Pattern.Category] = struct{}{}
		}
		if cp.Pattern.Service != "" {
			prodSet[cp.Pattern.Service] = struct{}{}
		}
	}
	c.Metadata.Categories = sortedKeys(catSet)
	c.Metadata.Products = sortedKeys(prodSet)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// GetAllPatterns returns every cached Pattern.
func (c *PatternCache) GetAllPatterns() []*pattern.Pattern {
	out := make([]*pattern.Pattern, 0, len(c.Patterns))
	for _, cp := range c.Patterns {
		p := cp.Pattern
		out = append(out, &p)
	}
	return out
}

// GetPatternsByCategory filters by the cached Pattern's own normalized
// Category field. This deliberately differs from the original
// implementation, whose cache layer filtered on the source annotation's raw
// category list; since this cache only stores converted Patterns, filtering
// on the Pattern's own field is the correct, non-divergent behavior (see
// SPEC_FULL.md §4.E).
func (c *PatternCache) GetPatternsByCategory(category string) []*pattern.Pattern {
	var out []*pattern.Pattern
	for _, cp := range c.Patterns {
		if cp.Pattern.Category == category {
			p := cp.Pattern
			out = append(out, &p)
		}
	}
	return out
}

// IsExpired reports whether the cache's soft TTL has elapsed. This is
// advisory only — callers decide whether to refresh or serve stale data.
func (c *PatternCache) IsExpired() bool {
	if c.Metadata.TTLSeconds <= 0 {
		return false
	}
	return time.Since(c.Metadata.LastUpdated) > time.Duration(c.Metadata.TTLSeconds)*time.Second
}

// Merge combines other into c; for conflicting ids, the entry with the
// later CachedAt wins.
func (c *PatternCache) Merge(other *PatternCache) {
	if other == nil {
		return
	}
	if c.Patterns == nil {
		c.Patterns = make(map[string]CachedPattern)
	}
	for id, entry := range other.Patterns {
		existing, ok := c.Patterns[id]
		if !ok || entry.CachedAt.After(existing.CachedAt) {
			c.Patterns[id] = entry
		}
	}
	c.Metadata.PatternCount = len(c.Patterns)
	if other.Metadata.LastUpdated.After(c.Metadata.LastUpdated) {
		c.Metadata.LastUpdated = other.Metadata.LastUpdated
	}
	c.refreshDerivedMetadata()
}
