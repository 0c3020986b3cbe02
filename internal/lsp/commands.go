package lsp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"logscout/internal/pipeline"
)

const (
	cmdAnalyze         = "logScout.analyze"
	cmdShowTimeline    = "logScout.showTimeline"
	cmdExportResults   = "logScout.exportResults"
	cmdRefreshPatterns = "logScout.refreshPatterns"
	cmdGetPatterns     = "logScout.getPatterns"
)

func commandNames() []string {
	return []string{cmdAnalyze, cmdShowTimeline, cmdExportResults, cmdRefreshPatterns, cmdGetPatterns}
}

// handleCodeAction offers one informational quick fix per diagnostic in
// range that carries a non-empty pattern action — remediation guidance, not
// an automatic text edit.
func (s *Server) handleCodeAction(msg *rpcMessage) error {
	var params codeActionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, -32602, "invalid params")
	}
	uri := canonicalURI(params.TextDocument.URI)
	result, ok := s.lastResult(uri)
	if !ok {
		return s.sendResponse(msg.ID, []codeAction{})
	}

	var actions []codeAction
	for _, d := range result.Diagnostics {
		if d.Data.Action == "" {
			continue
		}
		if d.Range.Start.Line < params.Range.Start.Line || d.Range.Start.Line > params.Range.End.Line {
			continue
		}
		actions = append(actions, codeAction{
			Title: d.Data.Action,
			Kind:  "info",
			Command: command{
				Title:     "Re-run log-scout analysis",
				Command:   cmdAnalyze,
				Arguments: []any{uri},
			},
		})
	}
	if actions == nil {
		actions = []codeAction{}
	}
	return s.sendResponse(msg.ID, actions)
}

func (s *Server) handleExecuteCommand(msg *rpcMessage) error {
	var params executeCommandParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, -32602, "invalid params")
	}

	arg0 := func() string {
		if len(params.Arguments) == 0 {
			return ""
		}
		s, _ := params.Arguments[0].(string)
		return s
	}

	switch params.Command {
	case cmdAnalyze:
		result, err := s.AnalyzeNow(arg0())
		if err != nil {
			return s.sendError(msg.ID, -32000, err.Error())
		}
		return s.sendResponse(msg.ID, result)

	case cmdShowTimeline:
		uri := arg0()
		result, ok := s.lastResult(uri)
		if !ok {
			return s.sendError(msg.ID, -32000, "no analysis available for "+uri)
		}
		return s.sendResponse(msg.ID, renderTimeline(result))

	case cmdExportResults:
		uri := arg0()
		format := "json"
		if len(params.Arguments) > 1 {
			if f, ok := params.Arguments[1].(string); ok {
				format = f
			}
		}
		result, ok := s.lastResult(uri)
		if !ok {
			return s.sendError(msg.ID, -32000, "no analysis available for "+uri)
		}
		encoded, err := exportResult(result, format)
		if err != nil {
			return s.sendError(msg.ID, -32000, err.Error())
		}
		return s.sendResponse(msg.ID, map[string]string{
			"format": format,
			"data":   base64.StdEncoding.EncodeToString(encoded),
		})

	case cmdRefreshPatterns:
		if s.sync == nil {
			return s.sendError(msg.ID, -32000, "no sync service configured")
		}
		ctx := s.baseCtx
		if ctx == nil {
			ctx = context.Background()
		}
		refreshResult, err := s.sync.ForceRefresh(ctx)
		if err != nil {
			return s.sendError(msg.ID, -32000, err.Error())
		}
		return s.sendResponse(msg.ID, refreshResult)

	case cmdGetPatterns:
		eng := s.currentEngine()
		if eng == nil {
			return s.sendResponse(msg.ID, []patternSummary{})
		}
		summaries := make([]patternSummary, 0, eng.Len())
		for _, cp := range eng.AllPatterns() {
			p := cp.Pattern
			summaries = append(summaries, patternSummary{
				ID:       p.ID,
				Name:     p.Name,
				Category: p.Category,
				Service:  p.Service,
				Severity: p.Severity.String(),
			})
		}
		return s.sendResponse(msg.ID, summaries)

	default:
		return s.sendError(msg.ID, -32601, "unknown command: "+params.Command)
	}
}

type patternSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Service  string `json:"service"`
	Severity string `json:"severity"`
}

func exportResult(result *pipeline.Result, format string) ([]byte, error) {
	switch format {
	case "msgpack":
		return msgpack.Marshal(result)
	case "json", "":
		return json.MarshalIndent(result, "", "  ")
	default:
		return nil, fmt.Errorf("lsp: unsupported export format %q", format)
	}
}

type timelineEntry struct {
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

func renderTimeline(result *pipeline.Result) []timelineEntry {
	entries := make([]timelineEntry, 0, len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		entries = append(entries, timelineEntry{
			Line:     d.Range.Start.Line,
			Severity: d.Severity.String(),
			Category: d.CategoryRendered,
			Message:  d.Data.MergedTemplate,
		})
	}
	return entries
}
