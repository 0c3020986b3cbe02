package lsp

import (
	"testing"

	"logscout/internal/pipeline"
)

func TestCategorySymbolsOneSymbolPerDistinctCategory(t *testing.T) {
	result := &pipeline.Result{Diagnostics: []pipeline.Diagnostic{
		{CategoryRendered: "network", Range: pipeline.Range{Start: pipeline.Position{Line: 1}}},
		{CategoryRendered: "network", Range: pipeline.Range{Start: pipeline.Position{Line: 5}}},
		{CategoryRendered: "storage", Range: pipeline.Range{Start: pipeline.Position{Line: 2}}},
		{CategoryRendered: "", Range: pipeline.Range{Start: pipeline.Position{Line: 9}}},
	}}
	symbols := categorySymbols(result)
	if len(symbols) != 3 {
		t.Fatalf("len(symbols) = %d, want 3 distinct categories", len(symbols))
	}
	names := map[string]bool{}
	for _, s := range symbols {
		names[s.Name] = true
	}
	for _, want := range []string{"network", "storage", "uncategorized"} {
		if !names[want] {
			t.Errorf("expected a symbol named %q, got %v", want, names)
		}
	}
}

func TestCategorySymbolsEmptyResult(t *testing.T) {
	if got := categorySymbols(&pipeline.Result{}); len(got) != 0 {
		t.Errorf("categorySymbols(empty) = %v, want none", got)
	}
}
