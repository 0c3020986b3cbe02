package lsp

import (
	"encoding/json"
	"sort"

	"logscout/internal/pipeline"
)

// symbolKindString is the LSP SymbolKind for a coarse, category-level
// grouping; there is no function/class structure in a log file.
const symbolKindString = 13

func (s *Server) handleDocumentSymbol(msg *rpcMessage) error {
	var params documentSymbolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, -32602, "invalid params")
	}
	uri := canonicalURI(params.TextDocument.URI)
	result, ok := s.lastResult(uri)
	if !ok {
		return s.sendResponse(msg.ID, []documentSymbol{})
	}
	return s.sendResponse(msg.ID, categorySymbols(result))
}

// categorySymbols returns one symbol per distinct category that produced at
// least one detection, named after the category, with a range spanning the
// first detection in that category (document order).
func categorySymbols(result *pipeline.Result) []documentSymbol {
	firstByCategory := make(map[string]pipeline.Diagnostic)
	var order []string
	for _, d := range result.Diagnostics {
		cat := d.CategoryRendered
		if cat == "" {
			cat = "uncategorized"
		}
		if _, seen := firstByCategory[cat]; !seen {
			firstByCategory[cat] = d
			order = append(order, cat)
		}
	}
	sort.Strings(order)

	out := make([]documentSymbol, 0, len(order))
	for _, cat := range order {
		d := firstByCategory[cat]
		r := lspRange{
			Start: position{Line: d.Range.Start.Line, Character: d.Range.Start.Column},
			End:   position{Line: d.Range.End.Line, Character: d.Range.End.Column},
		}
		out = append(out, documentSymbol{
			Name:           cat,
			Kind:           symbolKindString,
			Range:          r,
			SelectionRange: r,
		})
	}
	return out
}
