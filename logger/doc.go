// Package logger provides structured logging capabilities.
//
// The logger package sets up and configures the application's logging
// system using zap. Every component receives a named child logger via
// Component so log lines can be filtered by subsystem (http, execution,
// sandbox, mcp).
package logger
