package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/wpbatch/internal/batch"
	"github.com/kalambet/wpbatch/internal/command"
	"github.com/kalambet/wpbatch/internal/profile"
	"github.com/kalambet/wpbatch/internal/publish"
	"github.com/kalambet/wpbatch/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store           *storage.Store
	Profiles        *profile.Manager
	Batch           *batch.Controller
	Stage           *publish.Stage
	UserID          string
	DefaultInterval int
	// BaseContext outlives tool calls; batches started by tools run on it.
	BaseContext context.Context
}

func (d MCPDeps) baseContext() context.Context {
	if d.BaseContext != nil {
		return d.BaseContext
	}
	return context.Background()
}

// NewMCPServer creates an MCP server with the batch tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"wpbatch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("wpbatch generates blog posts from topic lines and publishes them to WordPress."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("batch_status",
			mcp.WithDescription("Return the current batch queue: per-item status, counts and the last site stats."),
		),
		mcpBatchStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("start_batch",
			mcp.WithDescription("Replace the queue with one item per topic line and start processing it."),
			mcp.WithString("topics", mcp.Description("Newline-separated topic lines of the form title///keyword"), mcp.Required()),
			mcp.WithString("status", mcp.Description("draft, publish or future (default: profile setting)")),
			mcp.WithString("start_time", mcp.Description("First publish time, RFC3339 or YYYY-MM-DDTHH:MM")),
			mcp.WithNumber("interval_minutes", mcp.Description("Minutes between scheduled posts")),
		),
		mcpStartBatch(deps),
	)

	s.AddTool(
		mcp.NewTool("pause_batch",
			mcp.WithDescription("Pause the batch before its next item."),
		),
		mcpPauseBatch(deps),
	)

	s.AddTool(
		mcp.NewTool("resume_batch",
			mcp.WithDescription("Resume a paused batch."),
		),
		mcpResumeBatch(deps),
	)

	s.AddTool(
		mcp.NewTool("retry_item",
			mcp.WithDescription("Reprocess one failed queue item."),
			mcp.WithNumber("index", mcp.Description("Zero-based queue index"), mcp.Required()),
		),
		mcpRetryItem(deps),
	)

	s.AddTool(
		mcp.NewTool("send_command",
			mcp.WithDescription("Queue a remote control command (pause, resume or status) for the command poller."),
			mcp.WithString("command", mcp.Description("pause, resume or status"), mcp.Required()),
		),
		mcpSendCommand(deps),
	)

	s.AddTool(
		mcp.NewTool("site_stats",
			mcp.WithDescription("Count draft, scheduled and published posts on the active site."),
		),
		mcpSiteStats(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"batch://queue",
			"Batch Queue",
			mcp.WithResourceDescription("Current batch queue as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceQueue(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"site://profiles",
			"Site Profiles",
			mcp.WithResourceDescription("Saved site profiles without credentials"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfiles(deps),
	)

	return s
}

func mcpBatchStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Batch.Snapshot())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal queue: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpStartBatch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topics, err := req.RequireString("topics")
		if err != nil {
			return mcpError("topics is required"), nil
		}

		br := BatchRequest{
			Topics:    topics,
			Status:    req.GetString("status", ""),
			StartTime: req.GetString("start_time", ""),
		}
		if interval := req.GetInt("interval_minutes", -1); interval >= 0 {
			br.IntervalMinutes = &interval
		}
		if err := br.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}

		if _, err := deps.Batch.Start(deps.baseContext(), br.Topics, br.Schedule(deps.DefaultInterval)); err != nil {
			return mcpError(fmt.Sprintf("cannot start batch: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Started batch of %d items", deps.Batch.Snapshot().Total)), nil
	}
}

func mcpPauseBatch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !deps.Batch.Pause(ctx) {
			return mcpText("Batch was already paused"), nil
		}
		return mcpText("Batch paused"), nil
	}
}

func mcpResumeBatch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !deps.Batch.Resume(ctx) {
			return mcpText("Batch was not paused"), nil
		}
		return mcpText("Batch resumed"), nil
	}
}

func mcpRetryItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		idx := req.GetInt("index", -1)
		if idx < 0 {
			return mcpError("index is required"), nil
		}
		if _, err := deps.Batch.Retry(deps.baseContext(), idx); err != nil {
			return mcpError(fmt.Sprintf("cannot retry item %d: %v", idx, err)), nil
		}
		return mcpText(fmt.Sprintf("Retrying item %d", idx)), nil
	}
}

func mcpSendCommand(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("command")
		if err != nil {
			return mcpError("command is required"), nil
		}
		if !command.Valid(raw) {
			return mcpError(fmt.Sprintf("unknown command %q: use pause, resume or status", raw)), nil
		}
		c, err := deps.Store.EnqueueCommand(storage.Command{
			UserID:  deps.UserID,
			Command: command.Normalize(raw),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue command: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued %s command %s", c.Command, c.ID)), nil
	}
}

func mcpSiteStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := deps.Profiles.Active()
		if err != nil {
			return mcpError("select a site profile first"), nil
		}
		stats, err := deps.Stage.Stats(ctx, batch.SiteFor(p.Config))
		if err != nil {
			return mcpError(fmt.Sprintf("site stats failed: %v", err)), nil
		}
		b, err := json.Marshal(stats)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceQueue(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Batch.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal queue: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceProfiles(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		s, err := deps.Profiles.Settings()
		if err != nil {
			return nil, fmt.Errorf("failed to load profiles: %w", err)
		}

		type profileSummary struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			SiteURL string `json:"site_url"`
			Keys    int    `json:"api_keys"`
			Active  bool   `json:"active"`
		}

		summaries := make([]profileSummary, len(s.Profiles))
		for i, p := range s.Profiles {
			summaries[i] = profileSummary{
				ID:      p.ID,
				Name:    p.Name,
				SiteURL: p.Config.SiteURL,
				Keys:    len(p.Config.Keys()),
				Active:  p.ID == s.CurrentProfileID,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profiles: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
