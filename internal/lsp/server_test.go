package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"logscout/internal/annotation"
	"logscout/internal/engine"
	"logscout/internal/pattern"
)

func writeFramed(t *testing.T, buf *bytes.Buffer, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := writeMessage(buf, payload); err != nil {
		t.Fatalf("writeMessage: %v", err)
	}
}

func readFramedMessages(t *testing.T, data []byte) []rpcMessage {
	t.Helper()
	reader := bufio.NewReader(bytes.NewReader(data))
	var out []rpcMessage
	for {
		payload, err := readMessage(reader)
		if err != nil {
			break
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New([]*pattern.Pattern{
		{
			ID:       "conn-error",
			Regex:    `connection refused`,
			Severity: annotation.SeverityError,
			Enabled:  true,
			ModeInfo: pattern.PatternMode{Mode: pattern.SingleLine},
		},
	}, 0.85, 10, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func TestServerInitializeAndShutdownSequence(t *testing.T) {
	var in bytes.Buffer
	writeFramed(t, &in, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": map[string]any{}})
	writeFramed(t, &in, map[string]any{"jsonrpc": "2.0", "id": 2, "method": "shutdown"})
	writeFramed(t, &in, map[string]any{"jsonrpc": "2.0", "method": "exit"})

	var out bytes.Buffer
	server := NewServer(&in, &out, ServerOptions{Engine: testEngine(t)})
	err := server.Run(context.Background())
	if !errors.Is(err, ErrExit) {
		t.Fatalf("Run() err = %v, want ErrExit", err)
	}

	responses := readFramedMessages(t, out.Bytes())
	if len(responses) != 2 {
		t.Fatalf("len(responses) = %d, want 2 (initialize + shutdown)", len(responses))
	}
	var initResult initializeResult
	if err := json.Unmarshal(responses[0].Result, &initResult); err != nil {
		t.Fatalf("unmarshal initialize result: %v", err)
	}
	if !initResult.Capabilities.HoverProvider {
		t.Error("expected HoverProvider to be advertised")
	}
}

func TestServerExitWithoutShutdown(t *testing.T) {
	var in bytes.Buffer
	writeFramed(t, &in, map[string]any{"jsonrpc": "2.0", "method": "exit"})

	var out bytes.Buffer
	server := NewServer(&in, &out, ServerOptions{Engine: testEngine(t)})
	err := server.Run(context.Background())
	if !errors.Is(err, ErrExitWithoutShutdown) {
		t.Fatalf("Run() err = %v, want ErrExitWithoutShutdown", err)
	}
}

func TestServerDidOpenPublishesDiagnostics(t *testing.T) {
	var in bytes.Buffer
	writeFramed(t, &in, map[string]any{
		"jsonrpc": "2.0",
		"method":  "textDocument/didOpen",
		"params": map[string]any{
			"textDocument": map[string]any{
				"uri":     "file:///tmp/a.log",
				"version": 1,
				"text":    "ERROR connection refused by peer",
			},
		},
	})
	writeFramed(t, &in, map[string]any{"jsonrpc": "2.0", "method": "exit"})

	var out bytes.Buffer
	server := NewServer(&in, &out, ServerOptions{Engine: testEngine(t), Debounce: time.Millisecond})
	_ = server.Run(context.Background())

	// Analysis is debounced off the main loop; give the timer a chance to
	// fire and publish before inspecting the output buffer.
	time.Sleep(50 * time.Millisecond)

	responses := readFramedMessages(t, out.Bytes())
	found := false
	for _, r := range responses {
		if r.Method == "textDocument/publishDiagnostics" {
			found = true
			var params publishDiagnosticsParams
			if err := json.Unmarshal(r.Params, &params); err != nil {
				t.Fatalf("unmarshal publishDiagnostics params: %v", err)
			}
			if len(params.Diagnostics) != 1 {
				t.Errorf("len(Diagnostics) = %d, want 1", len(params.Diagnostics))
			}
		}
	}
	if !found {
		t.Error("expected a textDocument/publishDiagnostics notification")
	}
}

func TestServerAnalyzeNowBypassesDebounce(t *testing.T) {
	var in bytes.Buffer
	var out bytes.Buffer
	server := NewServer(&in, &out, ServerOptions{Engine: testEngine(t), Debounce: time.Hour})

	server.mu.Lock()
	server.docs["file:///tmp/a.log"] = &openDocument{text: "connection refused here"}
	server.mu.Unlock()

	result, err := server.AnalyzeNow("file:///tmp/a.log")
	if err != nil {
		t.Fatalf("AnalyzeNow: %v", err)
	}
	if len(result.Diagnostics) != 1 {
		t.Fatalf("len(Diagnostics) = %d, want 1", len(result.Diagnostics))
	}
}

func TestServerAnalyzeNowUnknownDocument(t *testing.T) {
	var in, out bytes.Buffer
	server := NewServer(&in, &out, ServerOptions{Engine: testEngine(t)})
	if _, err := server.AnalyzeNow("file:///does/not/exist.log"); err == nil {
		t.Fatal("expected an error analyzing an unopened document")
	}
}
