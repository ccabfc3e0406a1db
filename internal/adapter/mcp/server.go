// Package mcp exposes the tutorial service as Model Context Protocol tools
// so AI assistants can request and read repository tutorials.
package mcp

import (
	"context"
	"io"
	"log"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
	"github.com/Strob0t/CodeTutor/internal/service"
)

// Tutorials is the service surface the tools drive.
type Tutorials interface {
	Submit(ctx context.Context, rawURL, ref string) (task.Task, error)
	Run(ctx context.Context, rawURL, ref string) (task.Task, error)
	Status(id string) (task.Task, error)
	Result(id string) (*tutorial.Tutorial, error)
	Export(id, format string) (*service.Document, error)
}

// ServerConfig names the server in the MCP handshake.
type ServerConfig struct {
	Name    string
	Version string
}

// Server wraps an mcp-go server with the CodeTutor tools and resources.
type Server struct {
	mcpServer *mcpserver.MCPServer
	tutorials Tutorials
}

// NewServer creates the server and registers its tools and resources.
func NewServer(cfg ServerConfig, tutorials Tutorials) *Server {
	s := &Server{
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
		tutorials: tutorials,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// ServeStdio speaks MCP over in and out until ctx is done or in is closed.
// Protocol errors are logged through slog; stdout is reserved for the
// protocol stream.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.New(slogWriter{}, "", 0))
	slog.Info("mcp server listening on stdio")
	return stdio.Listen(ctx, in, out)
}

type slogWriter struct{}

func (slogWriter) Write(p []byte) (int, error) {
	slog.Warn("mcp stdio", "message", string(p))
	return len(p), nil
}
