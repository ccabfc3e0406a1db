package mcp

import (
	"context"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/CodeTutor/internal/service"
)

const tutorialURIPrefix = "codetutor://tutorials/"

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			tutorialURIPrefix+"{task_id}",
			"Tutorial",
			mcplib.WithTemplateDescription("Markdown tutorial of a completed analysis task"),
			mcplib.WithTemplateMIMEType("text/markdown"),
		),
		s.handleTutorialResource,
	)
}

func (s *Server) handleTutorialResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id := strings.TrimPrefix(req.Params.URI, tutorialURIPrefix)
	doc, err := s.tutorials.Export(id, service.FormatMarkdown)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     string(doc.Data),
		},
	}, nil
}
