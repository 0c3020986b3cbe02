package lsp

import (
	"encoding/json"
	"fmt"

	"logscout/internal/pipeline"
)

func (s *Server) handleHover(msg *rpcMessage) error {
	var params hoverParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, -32602, "invalid params")
	}
	uri := canonicalURI(params.TextDocument.URI)
	result, ok := s.lastResult(uri)
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}

	for _, d := range result.Diagnostics {
		if !positionWithinDiagnostic(params.Position, d) {
			continue
		}
		return s.sendResponse(msg.ID, hoverResult{
			Contents: markupContent{Kind: "markdown", Value: hoverMarkdown(d)},
			Range: &lspRange{
				Start: position{Line: d.Range.Start.Line, Character: d.Range.Start.Column},
				End:   position{Line: d.Range.End.Line, Character: d.Range.End.Column},
			},
		})
	}
	return s.sendResponse(msg.ID, nil)
}

func positionWithinDiagnostic(pos position, d pipeline.Diagnostic) bool {
	if pos.Line != d.Range.Start.Line {
		return false
	}
	return pos.Character >= d.Range.Start.Column && pos.Character <= d.Range.End.Column
}

func hoverMarkdown(d pipeline.Diagnostic) string {
	md := fmt.Sprintf("**%s** — %s\n\n%s", d.Severity.String(), d.Data.PatternName, d.Data.MergedTemplate)
	if d.Data.Action != "" {
		md += "\n\n---\n" + d.Data.Action
	}
	return md
}
