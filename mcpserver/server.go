package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/execution"
	"github.com/isdmx/execbox/logger"
	"github.com/isdmx/execbox/validator"
)

// ToolName is the name of the registered MCP tool.
const ToolName = "execute_javascript"

// MCPServer represents the MCP server
type MCPServer struct {
	config    config.MCPConfig
	logger    *zap.Logger
	service   *execution.Service
	mcpServer *server.MCPServer
	now       func() time.Time

	httpServer *server.StreamableHTTPServer
	cancel     context.CancelFunc
	stdin      io.Reader
	stdout     io.Writer
}

// New creates a new MCPServer
func New(cfg *config.Config, log *zap.Logger, service *execution.Service) *MCPServer {
	s := &MCPServer{
		config:  cfg.Server.MCP,
		logger:  logger.Component(log, "mcp"),
		service: service,
		now:     time.Now,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}

	s.logger.Info("MCP server configured",
		zap.Bool("server.mcp.enabled", s.config.Enabled),
		zap.String("server.mcp.transport", s.config.Transport),
		zap.Int("server.mcp.http_port", s.config.HTTPPort),
	)

	s.mcpServer = server.NewMCPServer("execbox", "Sandboxed JavaScript execution")
	s.registerExecuteJavaScriptTool()

	return s
}

func (s *MCPServer) registerExecuteJavaScriptTool() {
	tool := mcp.NewTool(ToolName,
		mcp.WithDescription("Execute an untrusted JavaScript snippet in a sandbox and return its console output"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("JavaScript source to execute"),
		),
		mcp.WithString("language",
			mcp.Description("Source language, only \"javascript\" is supported"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleExecuteJavaScript)
}

func (s *MCPServer) handleExecuteJavaScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	req := execution.Request{Code: request.GetString("code", "")}
	if lang, ok := args["language"].(string); ok {
		req.Language = &lang
	}

	run, err := s.service.Execute(ctx, req)
	if execution.IsInternal(err) {
		s.logger.Error("tool execution failed", zap.Error(err))
		if run != nil {
			run.ResponseSent(http.StatusInternalServerError)
		}
		return errorResult(execution.MsgInternalError)
	}
	if rej, ok := validator.AsRejection(err); ok {
		run.ResponseSent(http.StatusBadRequest)
		return errorResult(rej.Reason.Message())
	}

	outcome := run.Outcome()
	body, err := json.Marshal(execution.Envelope(outcome, s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	run.ResponseSent(http.StatusOK)

	result := mcp.NewToolResultText(string(body))
	result.IsError = !outcome.Succeeded
	return result, nil
}

func errorResult(msg string) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(execution.ErrorEnvelope{Error: msg})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool error: %w", err)
	}
	return mcp.NewToolResultError(string(body)), nil
}

// Start serves the tool on the configured transport in the background.
func (s *MCPServer) Start(_ context.Context) error {
	if !s.config.Enabled {
		s.logger.Debug("MCP server disabled")
		return nil
	}

	switch s.config.Transport {
	case "stdio":
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel

		s.logger.Info("starting MCP server on stdio")
		stdio := server.NewStdioServer(s.mcpServer)
		go func() {
			if err := stdio.Listen(ctx, s.stdin, s.stdout); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("MCP stdio server stopped", zap.Error(err))
			}
		}()
	case "http":
		addr := fmt.Sprintf(":%d", s.config.HTTPPort)
		s.logger.Info("starting MCP server on HTTP", zap.String("addr", addr))

		s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
		go func() {
			if err := s.httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("MCP HTTP server stopped", zap.Error(err))
			}
		}()
	default:
		return fmt.Errorf("unsupported MCP transport: %s", s.config.Transport)
	}

	return nil
}

// Shutdown stops whichever transport Start launched.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpServer != nil {
		s.logger.Info("shutting down MCP HTTP server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Register ties the server to the fx application lifecycle.
func Register(lc fx.Lifecycle, s *MCPServer) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Shutdown,
	})
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
