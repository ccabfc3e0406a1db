package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/service"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.analyzeRepositoryTool(),
		s.getTaskStatusTool(),
		s.getTutorialTool(),
	)
}

func (s *Server) analyzeRepositoryTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("analyze_repository",
		mcplib.WithDescription("Clone a public repository and generate a tutorial for it. "+
			"Returns the task; poll get_task_status unless wait is true."),
		mcplib.WithString("repository_url",
			mcplib.Required(),
			mcplib.Description("Repository URL, e.g. https://github.com/owner/name"),
		),
		mcplib.WithString("ref",
			mcplib.Description("Branch, tag or commit to analyze; defaults to the default branch"),
		),
		mcplib.WithBoolean("wait",
			mcplib.Description("Block until the tutorial is generated"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAnalyzeRepository}
}

func (s *Server) getTaskStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_task_status",
		mcplib.WithDescription("Get the status, progress and error of an analysis task"),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("The task ID returned by analyze_repository"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetTaskStatus}
}

func (s *Server) getTutorialTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_tutorial",
		mcplib.WithDescription("Get the generated tutorial of a completed task"),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("The task ID returned by analyze_repository"),
		),
		mcplib.WithString("format",
			mcplib.Description("markdown (default) or json"),
			mcplib.Enum("markdown", "json"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetTutorial}
}

func (s *Server) handleAnalyzeRepository(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	url, ok := args["repository_url"].(string)
	if !ok || url == "" {
		return mcplib.NewToolResultError("repository_url is required"), nil
	}
	ref, _ := args["ref"].(string)
	wait, _ := args["wait"].(bool)

	submit := s.tutorials.Submit
	if wait {
		submit = s.tutorials.Run
	}
	t, err := submit(ctx, url, ref)
	if err != nil {
		return toolError("analysis was not started", err), nil
	}
	return resultJSON(t)
}

func (s *Server) handleGetTaskStatus(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id, ok := req.GetArguments()["task_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	t, err := s.tutorials.Status(id)
	if err != nil {
		return toolError(fmt.Sprintf("failed to get task %s", id), err), nil
	}
	return resultJSON(t)
}

func (s *Server) handleGetTutorial(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	id, ok := args["task_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	format, _ := args["format"].(string)

	if format == "json" {
		t, err := s.tutorials.Result(id)
		if err != nil {
			return toolError(fmt.Sprintf("tutorial for task %s is not available", id), err), nil
		}
		return resultJSON(t)
	}
	doc, err := s.tutorials.Export(id, service.FormatMarkdown)
	if err != nil {
		return toolError(fmt.Sprintf("tutorial for task %s is not available", id), err), nil
	}
	return mcplib.NewToolResultText(string(doc.Data)), nil
}

func resultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

// toolError reports err to the client with its kind so assistants can react
// to, for example, RateLimitExceeded.
func toolError(msg string, err error) *mcplib.CallToolResult {
	return mcplib.NewToolResultError(fmt.Sprintf("%s: %s: %s", msg, domain.KindOf(err), domain.MessageOf(err)))
}
