// Package lsp implements the LSP Adapter (component K): the stdio
// JSON-RPC server loop, document synchronization, debounced analysis
// scheduling, and the diagnostic/code-action/command/hover/symbol surface
// built on top of the Detection Pipeline. Grounded in the transport-layer
// server this project started from (server.go's debounce/sequence-gating
// idiom), generalized from workspace-wide compiler diagnostics to
// per-document log analysis.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"logscout/internal/engine"
	"logscout/internal/pipeline"
	"logscout/internal/syncsvc"
)

// ErrExit signals a graceful shutdown after receiving "exit".
var ErrExit = errors.New("lsp exit")

// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
var ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")

// ServerOptions configures Server construction.
type ServerOptions struct {
	Debounce time.Duration
	Engine   *engine.Engine
	Sync     *syncsvc.Service
	Logger   *zap.Logger
}

type openDocument struct {
	text    string
	version int
}

// Server handles stdio JSON-RPC for the log-scout LSP.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex

	mu        sync.Mutex
	docs      map[string]*openDocument
	timers    map[string]*time.Timer
	latestSeq map[string]uint64
	published map[string]struct{}

	results   map[string]*pipeline.Result
	resultsMu sync.RWMutex

	engineMu sync.RWMutex
	eng      *engine.Engine

	sync              *syncsvc.Service
	shutdownRequested bool
	debounce          time.Duration
	seqCounter        uint64
	baseCtx           context.Context
	logger            *zap.Logger
}

// NewServer constructs a Server reading requests from in and writing
// responses/notifications to out.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		in:        bufio.NewReader(in),
		out:       bufio.NewWriter(out),
		docs:      make(map[string]*openDocument),
		timers:    make(map[string]*time.Timer),
		latestSeq: make(map[string]uint64),
		published: make(map[string]struct{}),
		results:   make(map[string]*pipeline.Result),
		eng:       opts.Engine,
		sync:      opts.Sync,
		debounce:  debounce,
		logger:    logger,
	}
}

// SetEngine atomically replaces the engine snapshot driving analysis, e.g.
// after a logScout.refreshPatterns command or a background sync.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engineMu.Lock()
	s.eng = eng
	s.engineMu.Unlock()
}

func (s *Server) currentEngine() *engine.Engine {
	s.engineMu.RLock()
	defer s.engineMu.RUnlock()
	return s.eng
}

// Run serves LSP requests until shutdown or EOF.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logf("failed to parse message: %v", err)
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			if errors.Is(err, ErrExit) || errors.Is(err, ErrExitWithoutShutdown) {
				return err
			}
			return err
		}
	}
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		if s.shutdownRequested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/diagnostic":
		return s.handleDiagnosticPull(msg)
	case "textDocument/hover":
		return s.handleHover(msg)
	case "textDocument/documentSymbol":
		return s.handleDocumentSymbol(msg)
	case "textDocument/codeAction":
		return s.handleCodeAction(msg)
	case "workspace/executeCommand":
		return s.handleExecuteCommand(msg)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, -32601, "method not found")
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, -32602, "invalid params")
		}
	}
	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save:      saveOptions{IncludeText: true},
			},
			DiagnosticProvider: diagnosticOptions{
				Identifier:            "log-scout",
				InterFileDependencies: false,
				WorkspaceDiagnostics:  false,
				WorkDoneProgress:      true,
			},
			CodeActionProvider:     codeActionOptions{},
			ExecuteCommandProvider: executeCommandOptions{Commands: commandNames()},
			HoverProvider:          true,
			DocumentSymbolProvider: true,
		},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	s.docs[uri] = &openDocument{text: params.TextDocument.Text, version: params.TextDocument.Version}
	s.mu.Unlock()
	s.scheduleAnalysis(uri)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok {
		doc = &openDocument{}
		s.docs[uri] = doc
	}
	doc.text = applyChanges(doc.text, params.ContentChanges)
	doc.version = params.TextDocument.Version
	s.mu.Unlock()
	s.scheduleAnalysis(uri)
	return nil
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	if params.Text != nil {
		if doc, ok := s.docs[uri]; ok {
			doc.text = *params.Text
		} else {
			s.docs[uri] = &openDocument{text: *params.Text}
		}
	}
	s.mu.Unlock()
	s.scheduleAnalysis(uri)
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	delete(s.docs, uri)
	delete(s.timers, uri)
	delete(s.latestSeq, uri)
	delete(s.published, uri)
	s.mu.Unlock()

	s.resultsMu.Lock()
	delete(s.results, uri)
	s.resultsMu.Unlock()

	if err := s.sendPublish(uri, nil); err != nil {
		s.logf("failed to clear diagnostics: %v", err)
	}
	return nil
}

// scheduleAnalysis bumps the per-server monotonic sequence, records it as
// the latest scheduled sequence for uri, cancels any pending debounce timer
// for uri, and arms a new one. When the timer fires, runAnalysis only
// publishes if its sequence is still the latest recorded for that URI.
func (s *Server) scheduleAnalysis(uri string) {
	seq := atomic.AddUint64(&s.seqCounter, 1)

	s.mu.Lock()
	s.latestSeq[uri] = seq
	if t, ok := s.timers[uri]; ok {
		t.Stop()
	}
	s.timers[uri] = time.AfterFunc(s.debounce, func() {
		s.runAnalysis(uri, seq)
	})
	s.mu.Unlock()
}

func (s *Server) runAnalysis(uri string, seq uint64) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	latest := s.latestSeq[uri]
	s.mu.Unlock()
	if !ok || seq != latest {
		return
	}

	eng := s.currentEngine()
	if eng == nil {
		return
	}

	result := pipeline.Analyze(doc.text, eng, nil)

	s.mu.Lock()
	stillLatest := s.latestSeq[uri] == seq
	s.mu.Unlock()
	if !stillLatest {
		return
	}

	s.resultsMu.Lock()
	s.results[uri] = result
	s.resultsMu.Unlock()

	s.publishDiagnostics(uri, result)
}

// AnalyzeNow runs analysis for uri immediately, bypassing the debounce
// timer, for logScout.analyze.
func (s *Server) AnalyzeNow(uri string) (*pipeline.Result, error) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("lsp: document not open: %s", uri)
	}
	eng := s.currentEngine()
	if eng == nil {
		return nil, fmt.Errorf("lsp: no pattern engine loaded")
	}
	seq := atomic.AddUint64(&s.seqCounter, 1)
	s.mu.Lock()
	s.latestSeq[uri] = seq
	s.mu.Unlock()

	result := pipeline.Analyze(doc.text, eng, nil)

	s.resultsMu.Lock()
	s.results[uri] = result
	s.resultsMu.Unlock()

	s.publishDiagnostics(uri, result)
	return result, nil
}

func (s *Server) publishDiagnostics(uri string, result *pipeline.Result) {
	list := toLSPDiagnostics(result.Diagnostics)
	s.mu.Lock()
	if len(list) == 0 {
		delete(s.published, uri)
	} else {
		s.published[uri] = struct{}{}
	}
	s.mu.Unlock()
	if err := s.sendPublish(uri, list); err != nil {
		s.logf("failed to publish diagnostics: %v", err)
	}
}

func toLSPDiagnostics(diags []pipeline.Diagnostic) []lspDiagnostic {
	out := make([]lspDiagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, lspDiagnostic{
			Range: lspRange{
				Start: position{Line: d.Range.Start.Line, Character: d.Range.Start.Column},
				End:   position{Line: d.Range.End.Line, Character: d.Range.End.Column},
			},
			Severity: d.Severity.LSPSeverity(),
			Code:     d.Code,
			Source:   d.Source,
			Message:  d.Data.MergedTemplate,
			Data:     d.Data,
		})
	}
	return out
}

func (s *Server) lastResult(uri string) (*pipeline.Result, bool) {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()
	r, ok := s.results[uri]
	return r, ok
}

func (s *Server) documentText(uri string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return "", false
	}
	return doc.text, true
}

func (s *Server) handleDiagnosticPull(msg *rpcMessage) error {
	var params documentDiagnosticParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, -32602, "invalid params")
	}
	uri := canonicalURI(params.TextDocument.URI)
	result, ok := s.lastResult(uri)
	if !ok {
		if text, hasDoc := s.documentText(uri); hasDoc {
			if eng := s.currentEngine(); eng != nil {
				result = pipeline.Analyze(text, eng, nil)
				s.resultsMu.Lock()
				s.results[uri] = result
				s.resultsMu.Unlock()
			}
		}
	}
	items := []lspDiagnostic{}
	if result != nil {
		items = toLSPDiagnostics(result.Diagnostics)
	}
	return s.sendResponse(msg.ID, documentDiagnosticReport{Kind: "full", Items: items})
}

func canonicalURI(uri string) string {
	return uri
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"error":   rpcError{Code: code, Message: message},
	}
	return s.send(msg)
}

func (s *Server) sendPublish(uri string, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  "textDocument/publishDiagnostics",
		"params":  publishDiagnosticsParams{URI: uri, Diagnostics: list},
	}
	return s.send(msg)
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) logf(format string, args ...any) {
	s.logger.Error(fmt.Sprintf(format, args...))
}
