// Package mcpserver exposes the execution service as a Model Context
// Protocol tool.
//
// The execute_javascript tool accepts {code, language?} and answers with the
// same JSON bodies as POST /api/execute-code. Rejected and failed requests
// are flagged with IsError. The server speaks either stdio or streamable
// HTTP, selected by server.mcp.transport.
//
// Usage:
//
//	srv := mcpserver.New(cfg, logger, service)
//	err := srv.Start(ctx)
package mcpserver
