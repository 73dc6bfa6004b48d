// Package mcp exposes commit message generation as Model Context Protocol
// tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/application/service"
	"github.com/helixml/diffsum/domain/audit"
	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/infrastructure/api/v1/dto"
	"github.com/helixml/diffsum/infrastructure/git"
)

const defaultAuditLimit = 20

// Summarizer generates commit messages and sizes diffs.
type Summarizer interface {
	Summarize(ctx context.Context, req diffsum.SummarizeRequest, observer pipeline.Observer) (diffsum.Outcome, error)
	Estimate(diffText, model string) service.BudgetCheck
}

// AuditSearcher queries the audit log.
type AuditSearcher interface {
	Search(ctx context.Context, params service.AuditSearchParams) ([]audit.Record, error)
}

// Server wraps the MCP server with diffsum tools.
type Server struct {
	mcpServer  *server.MCPServer
	summarizer Summarizer
	audit      AuditSearcher
	version    string
	logger     *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(summarizer Summarizer, auditLog AuditSearcher, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		summarizer: summarizer,
		audit:      auditLog,
		version:    version,
		logger:     logger,
	}

	mcpServer := server.NewMCPServer(
		"diffsum",
		version,
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	summarizeTool := mcp.NewTool("summarize_patch",
		mcp.WithDescription("Write a commit message for a unified diff. Large diffs are summarized file by file first."),
		mcp.WithString("patch",
			mcp.Required(),
			mcp.Description("Unified diff, as printed by git diff"),
		),
		mcp.WithString("branch_hint",
			mcp.Description("Branch the change was made on"),
		),
		mcp.WithString("template_id",
			mcp.Description("Commit message template"),
		),
		mcp.WithString("language",
			mcp.Description("Language of the commit message"),
		),
		mcp.WithBoolean("force_layered",
			mcp.Description("Summarize file by file even when the diff fits the model"),
		),
	)
	mcpServer.AddTool(summarizeTool, s.handleSummarize)

	estimateTool := mcp.NewTool("estimate_tokens",
		mcp.WithDescription("Estimate the token size of a diff and whether it needs layered summarization"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Diff text to size"),
		),
		mcp.WithString("model",
			mcp.Description("Model to size against (default: the configured model)"),
		),
	)
	mcpServer.AddTool(estimateTool, s.handleEstimate)

	auditTool := mcp.NewTool("audit_records",
		mcp.WithDescription("List recorded backend exchanges, newest first"),
		mcp.WithString("session_id",
			mcp.Description("Only records of this session"),
		),
		mcp.WithString("repo_path",
			mcp.Description("Only records tagged with this repository"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of records (default: 20)"),
		),
	)
	mcpServer.AddTool(auditTool, s.handleAudit)

	versionTool := mcp.NewTool("get_version",
		mcp.WithDescription("Return the diffsum server version"),
	)
	mcpServer.AddTool(versionTool, s.handleVersion)
}

func (s *Server) handleSummarize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patch, err := request.RequireString("patch")
	if err != nil || patch == "" {
		return mcp.NewToolResultError("patch is required"), nil
	}

	units, err := git.Units(ctx, git.ParsePatch(patch))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read patch: %v", err)), nil
	}
	if len(units) == 0 {
		return mcp.NewToolResultError("no changes to summarize"), nil
	}

	out, err := s.summarizer.Summarize(ctx, diffsum.SummarizeRequest{
		Units:        units,
		BranchHint:   request.GetString("branch_hint", ""),
		TemplateID:   request.GetString("template_id", ""),
		Language:     request.GetString("language", ""),
		ForceLayered: request.GetBool("force_layered", false),
	}, nil)
	if err != nil {
		s.logger.Error("summarize failed", slog.Any("error", err))
		streamErr := dto.StreamError{
			Error:    err.Error(),
			Fallback: diffsum.Fallback(units),
		}
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			streamErr.SessionID = perr.SessionID
		}
		return toolJSON(streamErr, true)
	}

	return toolJSON(dto.NewSummarizeResponse(out), false)
}

func (s *Server) handleEstimate(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}

	check := s.summarizer.Estimate(text, request.GetString("model", ""))
	return toolJSON(dto.NewEstimateResponse(check), false)
}

func (s *Server) handleAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.audit == nil {
		return mcp.NewToolResultError("audit log not configured"), nil
	}

	limit := request.GetInt("limit", defaultAuditLimit)
	if limit < 1 {
		return mcp.NewToolResultError("limit must be a positive integer"), nil
	}

	records, err := s.audit.Search(ctx, service.AuditSearchParams{
		SessionID: request.GetString("session_id", ""),
		RepoPath:  request.GetString("repo_path", ""),
		Limit:     limit,
	})
	if err != nil {
		s.logger.Error("audit search failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("audit search failed: %v", err)), nil
	}

	return toolJSON(dto.NewAuditListResponse(records), false)
}

func (s *Server) handleVersion(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.version), nil
}

func toolJSON(v any, isError bool) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	if isError {
		return mcp.NewToolResultError(string(b)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// MCPServer returns the underlying MCP server for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
