package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ctmcp "github.com/Strob0t/CodeTutor/internal/adapter/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve tutorial tools over the Model Context Protocol on stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol; logs go to stderr.
	a, err := newApp(ctx, cfg, appOptions{logTo: os.Stderr})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = a.close(closeCtx)
	}()
	a.watchReload(ctx)
	a.janitor.Start(ctx, cfg.Tasks.JanitorInterval)

	srv := ctmcp.NewServer(ctmcp.ServerConfig{Name: "codetutor", Version: version}, a.tutorials)
	return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
}
