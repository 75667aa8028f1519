// Package execution implements the request pipeline of the service.
//
// Each request moves through a small state machine:
//
//	Received -> Validating -> Rejected -> ResponseSent
//	Received -> Validating -> Executing -> Completed|Failed|TimedOut -> ResponseSent
//
// Transitions are logged at debug level with the execution ID. The Service
// bounds the number of concurrently running sandboxes and records metrics
// for every outcome. Submitted source is never logged, only its size and a
// digest prefix.
//
// Envelope and its body types define what clients see for an outcome, shared
// by the HTTP and MCP front ends.
package execution
