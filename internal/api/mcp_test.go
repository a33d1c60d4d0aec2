package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/wpbatch/internal/batch"
	"github.com/kalambet/wpbatch/internal/post"
	"github.com/kalambet/wpbatch/internal/schedule"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T, gen batch.Generator) (MCPDeps, *testApp) {
	t.Helper()
	a := setupAppHandler(t, gen)
	return MCPDeps{
		Store:           a.store,
		Profiles:        a.profiles,
		Batch:           a.batch,
		Stage:           a.deps.Stage,
		UserID:          "local",
		DefaultInterval: 15,
	}, a
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	return result
}

func batchDraft() schedule.Config {
	return schedule.Config{Status: post.StatusDraft}
}

// --- tests ---

func TestMCPTool_StartBatch(t *testing.T) {
	deps, a := newTestMCPDeps(t, &stubGenerator{})
	a.addProfile(t, "Blog")

	result := callTool(t, mcpStartBatch(deps), "start_batch", map[string]interface{}{
		"topics": "One///1\nTwo///2\nThree///3",
		"status": "draft",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); !strings.Contains(text, "3 items") {
		t.Errorf("text = %q", text)
	}

	snap := a.waitIdle(t)
	if snap.Completed != 3 {
		t.Errorf("completed = %d, want 3", snap.Completed)
	}
	if snap.Schedule.IntervalMinutes != 15 {
		t.Errorf("interval = %d, want the configured default 15", snap.Schedule.IntervalMinutes)
	}
}

func TestMCPTool_StartBatch_ExplicitInterval(t *testing.T) {
	deps, a := newTestMCPDeps(t, &stubGenerator{})
	a.addProfile(t, "Blog")

	result := callTool(t, mcpStartBatch(deps), "start_batch", map[string]interface{}{
		"topics":           "One///1",
		"interval_minutes": 0,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if snap := a.waitIdle(t); snap.Schedule.IntervalMinutes != 0 {
		t.Errorf("interval = %d, want 0", snap.Schedule.IntervalMinutes)
	}
}

func TestMCPTool_StartBatch_Errors(t *testing.T) {
	deps, a := newTestMCPDeps(t, &stubGenerator{})
	h := mcpStartBatch(deps)

	if r := callTool(t, h, "start_batch", map[string]interface{}{}); !r.IsError {
		t.Error("missing topics should be an error")
	}
	r := callTool(t, h, "start_batch", map[string]interface{}{"topics": "A///a"})
	if !r.IsError || !strings.Contains(toolText(t, r), "profile") {
		t.Errorf("without a profile: %q", toolText(t, r))
	}

	a.addProfile(t, "Blog")
	if r := callTool(t, h, "start_batch", map[string]interface{}{"topics": "A///a", "status": "private"}); !r.IsError {
		t.Error("unsupported status should be an error")
	}
}

func TestMCPTool_BatchStatus(t *testing.T) {
	deps, a := newTestMCPDeps(t, &stubGenerator{})
	a.addProfile(t, "Blog")
	if _, err := a.batch.Start(context.Background(), "A///a\nB///b", batchDraft()); err != nil {
		t.Fatal(err)
	}
	a.waitIdle(t)

	result := callTool(t, mcpBatchStatus(deps), "batch_status", nil)
	var snap batch.Snapshot
	if err := json.Unmarshal([]byte(toolText(t, result)), &snap); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if snap.Total != 2 || snap.Completed != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMCPTool_PauseResume(t *testing.T) {
	deps, a := newTestMCPDeps(t, &stubGenerator{})

	if text := toolText(t, callTool(t, mcpPauseBatch(deps), "pause_batch", nil)); text != "Batch paused" {
		t.Errorf("pause: %q", text)
	}
	if text := toolText(t, callTool(t, mcpPauseBatch(deps), "pause_batch", nil)); text != "Batch was already paused" {
		t.Errorf("second pause: %q", text)
	}
	if !a.batch.Paused() {
		t.Error("controller not paused")
	}
	if text := toolText(t, callTool(t, mcpResumeBatch(deps), "resume_batch", nil)); text != "Batch resumed" {
		t.Errorf("resume: %q", text)
	}
	if text := toolText(t, callTool(t, mcpResumeBatch(deps), "resume_batch", nil)); text != "Batch was not paused" {
		t.Errorf("second resume: %q", text)
	}
}

func TestMCPTool_RetryItem(t *testing.T) {
	gen := &stubGenerator{fn: func(call int, line string) (*post.Post, error) {
		if call == 1 {
			return nil, errors.New("quota exceeded")
		}
		return &post.Post{Title: line, Content: "<p>x</p>"}, nil
	}}
	deps, a := newTestMCPDeps(t, gen)
	a.addProfile(t, "Blog")
	if _, err := a.batch.Start(context.Background(), "Only///only", batchDraft()); err != nil {
		t.Fatal(err)
	}
	a.waitIdle(t)

	h := mcpRetryItem(deps)
	if r := callTool(t, h, "retry_item", map[string]interface{}{}); !r.IsError {
		t.Error("missing index should be an error")
	}
	if r := callTool(t, h, "retry_item", map[string]interface{}{"index": 3}); !r.IsError {
		t.Error("out of range index should be an error")
	}
	if r := callTool(t, h, "retry_item", map[string]interface{}{"index": 0}); r.IsError {
		t.Fatalf("retry: %s", toolText(t, r))
	}
	waitFor(t, "retry to complete", func() bool {
		return a.batch.Snapshot().Items[0].Status == batch.StatusCompleted
	})
}

func TestMCPTool_SendCommand(t *testing.T) {
	deps, a := newTestMCPDeps(t, &stubGenerator{})
	h := mcpSendCommand(deps)

	if r := callTool(t, h, "send_command", map[string]interface{}{"command": "Status"}); r.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, r))
	}
	if r := callTool(t, h, "send_command", map[string]interface{}{"command": "shutdown"}); !r.IsError {
		t.Error("unknown command should be an error")
	}

	pending, err := a.store.PendingCommands("local")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Command != "status" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestMCPTool_SiteStats(t *testing.T) {
	deps, a := newTestMCPDeps(t, &stubGenerator{})
	if r := callTool(t, mcpSiteStats(deps), "site_stats", nil); !r.IsError {
		t.Error("expected error without a profile")
	}

	a.addProfile(t, "Blog")
	r := callTool(t, mcpSiteStats(deps), "site_stats", nil)
	if r.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, r))
	}
	if text := toolText(t, r); text != `{"draft":3,"future":2,"publish":7}` {
		t.Errorf("stats = %s", text)
	}
}

func TestMCPResource_Profiles(t *testing.T) {
	deps, a := newTestMCPDeps(t, &stubGenerator{})
	p := a.addProfile(t, "Blog")

	contents, err := mcpResourceProfiles(deps)(context.Background(), makeReadResourceRequest("site://profiles"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if strings.Contains(tc.Text, "secret") || strings.Contains(tc.Text, "k1") {
		t.Errorf("credentials leaked: %s", tc.Text)
	}
	var summaries []struct {
		ID     string `json:"id"`
		Keys   int    `json:"api_keys"`
		Active bool   `json:"active"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != p.ID || summaries[0].Keys != 1 || !summaries[0].Active {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestMCPResource_Queue(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &stubGenerator{})
	contents, err := mcpResourceQueue(deps)(context.Background(), makeReadResourceRequest("batch://queue"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)
	if tc.URI != "batch://queue" || !strings.Contains(tc.Text, `"total":0`) {
		t.Errorf("contents = %+v", tc)
	}
}

func TestNewMCPServer_RegistersTools(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &stubGenerator{})
	if NewMCPServer(deps) == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
