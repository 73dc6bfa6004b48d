package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/application/service"
	"github.com/helixml/diffsum/domain/audit"
	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/infrastructure/api/v1/dto"
)

const testPatch = "diff --git a/a.go b/a.go\n--- a/a.go\n+++ b/a.go\n@@ -1 +1 @@\n-old\n+new\n"

// fakeSummarizer implements Summarizer with a canned outcome.
type fakeSummarizer struct {
	err  error
	last diffsum.SummarizeRequest
}

func (f *fakeSummarizer) Summarize(_ context.Context, req diffsum.SummarizeRequest, _ pipeline.Observer) (diffsum.Outcome, error) {
	f.last = req
	if f.err != nil {
		return diffsum.Outcome{}, f.err
	}
	return diffsum.Outcome{
		Mode:      diffsum.ModeLayered,
		SessionID: "session-1",
		Message:   "fix: replace old with new",
		Summaries: []change.Summary{change.NewSummary("a.go", "Replace old", 2)},
		RecordIDs: []string{"r1", "r2"},
		Duration:  time.Second,
	}, nil
}

func (f *fakeSummarizer) Estimate(diffText, model string) service.BudgetCheck {
	if model == "" {
		model = "gpt-4o"
	}
	return service.BudgetCheck{Model: model, Tokens: len(diffText) / 4, Known: true, Limit: 102400}
}

// fakeAudit implements AuditSearcher with canned records.
type fakeAudit struct {
	records []audit.Record
	params  service.AuditSearchParams
}

func (f *fakeAudit) Search(_ context.Context, params service.AuditSearchParams) ([]audit.Record, error) {
	f.params = params
	return f.records, nil
}

// sendMessage marshals a JSON-RPC request, sends it through HandleMessage,
// and returns the JSONRPCResponse.
func sendMessage(t *testing.T, srv *Server, method string, id int, params map[string]any) mcp.JSONRPCResponse {
	t.Helper()

	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	result := srv.MCPServer().HandleMessage(context.Background(), raw)

	resp, ok := result.(mcp.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected JSONRPCResponse, got %T: %+v", result, result)
	}
	return resp
}

// resultJSON re-marshals the Result field through JSON into dst.
func resultJSON(t *testing.T, resp mcp.JSONRPCResponse, dst any) {
	t.Helper()
	b, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		t.Fatalf("unmarshal result into %T: %v", dst, err)
	}
}

func textFromContent(t *testing.T, result mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	b, err := json.Marshal(result.Content[0])
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	var tc struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &tc); err != nil {
		t.Fatalf("unmarshal text content: %v", err)
	}
	return tc.Text
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "0.0.1",
		},
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) mcp.CallToolResult {
	t.Helper()
	sendMessage(t, srv, "initialize", 1, initializeParams())
	resp := sendMessage(t, srv, "tools/call", 2, map[string]any{
		"name":      name,
		"arguments": args,
	})
	var result mcp.CallToolResult
	resultJSON(t, resp, &result)
	return result
}

func TestServer_Initialize(t *testing.T) {
	srv := NewServer(&fakeSummarizer{}, &fakeAudit{}, "0.1.0-test", nil)
	resp := sendMessage(t, srv, "initialize", 1, initializeParams())

	var result mcp.InitializeResult
	resultJSON(t, resp, &result)

	if result.ServerInfo.Name != "diffsum" {
		t.Errorf("expected server name diffsum, got %s", result.ServerInfo.Name)
	}
	if result.ServerInfo.Version != "0.1.0-test" {
		t.Errorf("expected version 0.1.0-test, got %s", result.ServerInfo.Version)
	}
	if result.Capabilities.Tools == nil {
		t.Error("expected tools capability to be present")
	}
}

func TestServer_ListTools(t *testing.T) {
	srv := NewServer(&fakeSummarizer{}, &fakeAudit{}, "0.1.0-test", nil)
	sendMessage(t, srv, "initialize", 1, initializeParams())

	resp := sendMessage(t, srv, "tools/list", 2, nil)

	var result mcp.ListToolsResult
	resultJSON(t, resp, &result)

	tools := map[string]mcp.Tool{}
	for _, tool := range result.Tools {
		tools[tool.Name] = tool
	}
	for _, name := range []string{"summarize_patch", "estimate_tokens", "audit_records", "get_version"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing tool: %s", name)
		}
	}

	summarize := tools["summarize_patch"]
	if len(summarize.InputSchema.Required) != 1 || summarize.InputSchema.Required[0] != "patch" {
		t.Errorf("expected patch to be the only required parameter, got %v", summarize.InputSchema.Required)
	}
}

func TestServer_SummarizePatch(t *testing.T) {
	summarizer := &fakeSummarizer{}
	srv := NewServer(summarizer, &fakeAudit{}, "0.1.0-test", nil)

	result := callTool(t, srv, "summarize_patch", map[string]any{
		"patch":         testPatch,
		"branch_hint":   "fix/old",
		"force_layered": true,
	})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", textFromContent(t, result))
	}

	var resp dto.SummarizeResponse
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &resp); err != nil {
		t.Fatalf("unmarshal summarize response: %v", err)
	}
	if resp.Message != "fix: replace old with new" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if resp.Mode != "layered" {
		t.Errorf("expected layered mode, got %s", resp.Mode)
	}
	if len(resp.Summaries) != 1 || resp.Summaries[0].Path != "a.go" {
		t.Errorf("unexpected summaries %+v", resp.Summaries)
	}

	if len(summarizer.last.Units) != 1 || summarizer.last.Units[0].Path() != "a.go" {
		t.Errorf("expected one unit for a.go, got %+v", summarizer.last.Units)
	}
	if summarizer.last.BranchHint != "fix/old" {
		t.Errorf("expected branch hint fix/old, got %s", summarizer.last.BranchHint)
	}
	if !summarizer.last.ForceLayered {
		t.Error("expected force_layered to be passed through")
	}
}

func TestServer_SummarizePatchFailure(t *testing.T) {
	srv := NewServer(&fakeSummarizer{
		err: &pipeline.Error{Kind: pipeline.ErrBackend, SessionID: "s-9", State: pipeline.StateFailed, Err: errors.New("upstream down")},
	}, &fakeAudit{}, "0.1.0-test", nil)

	result := callTool(t, srv, "summarize_patch", map[string]any{"patch": testPatch})
	if !result.IsError {
		t.Fatal("expected error response")
	}

	var streamErr dto.StreamError
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &streamErr); err != nil {
		t.Fatalf("unmarshal error response: %v", err)
	}
	if streamErr.SessionID != "s-9" {
		t.Errorf("expected session s-9, got %s", streamErr.SessionID)
	}
	if streamErr.Fallback != "chore: update 1 file (+1 -1)" {
		t.Errorf("unexpected fallback %q", streamErr.Fallback)
	}
}

func TestServer_SummarizePatchMissing(t *testing.T) {
	srv := NewServer(&fakeSummarizer{}, &fakeAudit{}, "0.1.0-test", nil)

	result := callTool(t, srv, "summarize_patch", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error response")
	}
	if text := textFromContent(t, result); !strings.Contains(text, "patch is required") {
		t.Errorf("expected 'patch is required', got: %s", text)
	}
}

func TestServer_EstimateTokens(t *testing.T) {
	srv := NewServer(&fakeSummarizer{}, &fakeAudit{}, "0.1.0-test", nil)

	result := callTool(t, srv, "estimate_tokens", map[string]any{"text": strings.Repeat("a", 400)})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", textFromContent(t, result))
	}

	var resp dto.EstimateResponse
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &resp); err != nil {
		t.Fatalf("unmarshal estimate: %v", err)
	}
	if resp.Tokens != 100 {
		t.Errorf("expected 100 tokens, got %d", resp.Tokens)
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("expected default model gpt-4o, got %s", resp.Model)
	}
	if resp.Layered {
		t.Error("expected diff to fit")
	}
}

func TestServer_AuditRecords(t *testing.T) {
	rec := audit.NewSuccess("s-1",
		&audit.Step{Type: audit.StepAggregation, Index: 3, Total: 3},
		audit.Request{Model: "gpt-4o"},
		audit.Response{Content: "feat: x", CleanContent: "feat: x"},
		time.Second,
	)
	auditLog := &fakeAudit{records: []audit.Record{rec}}
	srv := NewServer(&fakeSummarizer{}, auditLog, "0.1.0-test", nil)

	result := callTool(t, srv, "audit_records", map[string]any{"session_id": "s-1", "limit": 5})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", textFromContent(t, result))
	}

	var resp dto.AuditListResponse
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &resp); err != nil {
		t.Fatalf("unmarshal audit list: %v", err)
	}
	if resp.Total != 1 || resp.Data[0].ID != rec.ID() {
		t.Errorf("unexpected audit list %+v", resp)
	}
	if auditLog.params.SessionID != "s-1" || auditLog.params.Limit != 5 {
		t.Errorf("unexpected search params %+v", auditLog.params)
	}
}

func TestServer_AuditRecordsInvalidLimit(t *testing.T) {
	srv := NewServer(&fakeSummarizer{}, &fakeAudit{}, "0.1.0-test", nil)

	result := callTool(t, srv, "audit_records", map[string]any{"limit": 0})
	if !result.IsError {
		t.Fatal("expected error response")
	}
}

func TestServer_GetVersion(t *testing.T) {
	srv := NewServer(&fakeSummarizer{}, &fakeAudit{}, "1.2.3", nil)

	result := callTool(t, srv, "get_version", map[string]any{})
	if text := textFromContent(t, result); text != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", text)
	}
}

// Ensure fakes satisfy interfaces at compile time.
var (
	_ Summarizer    = (*fakeSummarizer)(nil)
	_ AuditSearcher = (*fakeAudit)(nil)
	_ Summarizer    = (*diffsum.Client)(nil)
	_ AuditSearcher = (*service.AuditLog)(nil)
)
