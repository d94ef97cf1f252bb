package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gasnotifier/internal/api"
	"gasnotifier/internal/mcp"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		addr    string
		ssePort int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the MCP SSE transport when configured)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if addr != "" {
				cfg.Server.HTTPAddr = addr
			}
			if ssePort != 0 {
				cfg.MCP.SSEPort = ssePort
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			sup := c.newSupervisor(cfg, logger, reg)

			g, ctx := errgroup.WithContext(cmd.Context())
			httpServer := api.New(cfg, sup, reg, logger)
			g.Go(func() error { return httpServer.Run(ctx, cfg.Server.HTTPAddr) })

			if cfg.MCP.SSEPort > 0 {
				mcpServer, err := mcp.NewServer(cfg, sup, logger)
				if err != nil {
					return err
				}
				g.Go(func() error { return mcpServer.StartSSE(ctx, cfg.MCP.SSEPort) })
			}

			logger.Info("gasnotifier serving",
				zap.String("http_addr", cfg.Server.HTTPAddr),
				zap.Int("mcp_sse_port", cfg.MCP.SSEPort))
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.http_addr)")
	cmd.Flags().IntVar(&ssePort, "sse-port", 0, "MCP SSE port (overrides mcp.sse_port)")
	return cmd
}

func newMCPCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			server, err := mcp.NewServer(cfg, c.newSupervisor(cfg, logger, nil), logger)
			if err != nil {
				return err
			}
			logger.Info("starting mcp stdio server")
			return ignoreCanceled(server.Start(cmd.Context()))
		},
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
