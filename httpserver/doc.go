// Package httpserver exposes the execution service over HTTP.
//
// Routes:
//
//	POST /api/execute-code  run a JavaScript snippet
//	GET  /healthz           liveness probe
//
// Validation failures are answered with 400, script failures (exceptions,
// timeouts) with 200 and success=false, and every internal problem with a
// generic 500 whose details only reach the logs. Every response carries an
// X-Request-Id header.
package httpserver
