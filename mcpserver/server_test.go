package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/execution"
	"github.com/isdmx/execbox/sandbox"
	"github.com/isdmx/execbox/validator"
)

// MockExecutor implements sandbox.Executor for testing
type MockExecutor struct {
	outcome sandbox.Outcome
	err     error
}

func (m *MockExecutor) Execute(_ context.Context, _ sandbox.Request) (sandbox.Outcome, error) {
	return m.outcome, m.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			MCP: config.MCPConfig{Enabled: true, Transport: "stdio", HTTPPort: 8081},
		},
		Sandbox: config.SandboxConfig{
			Backend:        config.BackendInProcess,
			TimeoutMS:      1000,
			MaxCodeBytes:   1024,
			MaxOutputBytes: 4096,
			MaxCallStack:   256,
			MaxConcurrent:  1,
		},
	}
}

func newTestServer(t *testing.T, exec sandbox.Executor) *MCPServer {
	t.Helper()
	log := zaptest.NewLogger(t)
	if exec == nil {
		exec = sandbox.NewInProcessExecutor(log)
	}
	cfg := testConfig()
	svc := execution.NewService(cfg, log, validator.NewValidator(), exec, nil)

	s := New(cfg, log, svc)
	s.now = func() time.Time { return time.UnixMilli(1000) }
	return s
}

func callTool(t *testing.T, s *MCPServer, args map[string]any) (*mcp.CallToolResult, map[string]any) {
	t.Helper()
	request := mcp.CallToolRequest{}
	request.Params.Name = ToolName
	request.Params.Arguments = args

	result, err := s.handleExecuteJavaScript(context.Background(), request)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	return result, body
}

func TestNewMCPServer(t *testing.T) {
	s := newTestServer(t, &MockExecutor{})
	require.NotNil(t, s.GetMCPServer())
	assert.Equal(t, "stdio", s.config.Transport)
}

func TestExecuteJavaScriptTool(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("Success", func(t *testing.T) {
		result, body := callTool(t, s, map[string]any{"code": `console.log("Hello, World!"); 1 + 1`})
		assert.False(t, result.IsError)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Hello, World!", body["output"])
		assert.Equal(t, "2", body["result"])
		assert.InDelta(t, 1000, body["executionTime"], 0)
	})

	t.Run("ScriptFailure", func(t *testing.T) {
		result, body := callTool(t, s, map[string]any{"code": `throw new Error("boom")`, "language": "javascript"})
		assert.True(t, result.IsError)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "boom", body["error"])
	})

	t.Run("MissingCode", func(t *testing.T) {
		result, body := callTool(t, s, map[string]any{})
		assert.True(t, result.IsError)
		assert.Equal(t, map[string]any{"error": "Code is required"}, body)
	})

	t.Run("UnsupportedLanguage", func(t *testing.T) {
		result, body := callTool(t, s, map[string]any{"code": "1", "language": "python"})
		assert.True(t, result.IsError)
		assert.Equal(t, "Only JavaScript is supported currently", body["error"])
	})

	t.Run("RestrictedOperation", func(t *testing.T) {
		result, body := callTool(t, s, map[string]any{"code": "eval('1')"})
		assert.True(t, result.IsError)
		assert.Equal(t, "Code contains restricted operations", body["error"])
	})
}

func TestExecuteJavaScriptToolInternalError(t *testing.T) {
	s := newTestServer(t, &MockExecutor{err: errors.New("worker crashed")})

	result, body := callTool(t, s, map[string]any{"code": "1"})
	assert.True(t, result.IsError)
	assert.Equal(t, map[string]any{"error": "Failed to execute code"}, body)
}

func TestStartDisabled(t *testing.T) {
	s := newTestServer(t, &MockExecutor{})
	s.config.Enabled = false

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestStartUnsupportedTransport(t *testing.T) {
	s := newTestServer(t, &MockExecutor{})
	s.config.Transport = "carrier-pigeon"

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported MCP transport")
}
