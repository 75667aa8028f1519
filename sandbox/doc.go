// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the execution engine for running untrusted
// JavaScript. Every script gets a fresh goja runtime whose global object is
// closed over an explicit capability table, a console sink that captures
// diagnostic output, and a wall-clock budget enforced by interrupting the
// runtime.
//
// Runtimes are hosted by one of several backends:
//
//   - ProcessExecutor re-executes the service binary as a single-use
//     sandbox-worker in its own process group with rlimits applied, and
//     kills the group if the worker overruns its budget.
//   - ContainerExecutor runs the same worker inside a Docker or Podman
//     container with no network, no capabilities and a read-only root.
//   - InProcessExecutor evaluates inside the service process (development
//     only).
//
// Workers talk to the service with newline-delimited JSON frames on stdout:
// one "line" frame per console line followed by a single "outcome" frame.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, cfg)
//	outcome, err := executor.Execute(ctx, sandbox.Request{
//	    Code:    `console.log("Hello, World!")`,
//	    Timeout: 5 * time.Second,
//	})
package sandbox
