package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"gasnotifier/internal/config"
	"gasnotifier/internal/delivery"
	"gasnotifier/internal/logging"
	"gasnotifier/internal/supervisor"
)

// Jobs is the supervisor surface the delivery tools drive.
type Jobs interface {
	Launch(ctx context.Context, req delivery.Request) (supervisor.Job, error)
	RequestStop(id string) error
	Status(id string) (supervisor.Status, error)
	List() []supervisor.Status
}

// Server wires the MCP runtime to the delivery supervisor and the report pipeline.
type Server struct {
	cfg       config.Config
	jobs      Jobs
	logger    *zap.Logger
	tools     map[string]Tool
	mcpServer *mcpserver.MCPServer
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewServer constructs the MCP server and registers all tools.
func NewServer(cfg config.Config, jobs Jobs, logger *zap.Logger) (*Server, error) {
	if jobs == nil {
		return nil, fmt.Errorf("mcp server needs a job supervisor")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)

	server := &Server{
		cfg:       cfg,
		jobs:      jobs,
		logger:    logger.With(zap.String(logging.Layer, "mcp")),
		tools:     make(map[string]Tool),
		mcpServer: mcpSrv,
	}

	server.registerAllTools()
	server.registerAllResources()
	return server, nil
}

// Start serves over stdio. Logs must not go to stdout in this mode.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("mcp sse server listening", zap.Int("port", port))

	select {
	case <-ctx.Done():
		s.logger.Info("mcp sse server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool runs a tool directly (used by the CLI and tests).
func (s *Server) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(ctx, args)
}

func (s *Server) registerAllTools() {
	// Deliveries
	s.registerTool(&StartDeliveryTool{jobs: s.jobs})
	s.registerTool(&StartTestDeliveryTool{jobs: s.jobs, delivery: s.cfg.Delivery})
	s.registerTool(&DeliveryStatusTool{jobs: s.jobs})
	s.registerTool(&StopDeliveryTool{jobs: s.jobs})
	s.registerTool(&ListDeliveriesTool{jobs: s.jobs})

	// Report pipeline
	s.registerTool(&RenderReportTool{report: s.cfg.Report})
	s.registerTool(&LoadSpreadsheetTool{report: s.cfg.Report, logger: s.logger})
	s.registerTool(&AvailableMonthsTool{report: s.cfg.Report, logger: s.logger})
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			s.logger.Warn("tool failed", zap.String(logging.Operation, tool.Name()), zap.Error(err))
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", tool.Name(), err))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}
