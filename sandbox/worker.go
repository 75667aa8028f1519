package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"time"
)

// WorkerCommand is the hidden subcommand that turns the service binary into
// a single-use sandbox worker.
const WorkerCommand = "sandbox-worker"

const maxWorkerRequestBytes = 4 << 20

// Frame types of the worker protocol. The worker writes one JSON object per
// line on stdout: a "line" frame per console line, then exactly one
// "outcome" frame.
const (
	frameLine    = "line"
	frameOutcome = "outcome"
)

type workerRequest struct {
	Code           string `json:"code"`
	TimeoutMS      int64  `json:"timeout_ms"`
	MaxOutputBytes int    `json:"max_output_bytes"`
	MaxCallStack   int    `json:"max_call_stack"`
	MemoryMB       int    `json:"memory_mb"`
	CPUTimeSec     int    `json:"cpu_time_sec"`
}

func newWorkerRequest(req Request) workerRequest {
	return workerRequest{
		Code:           req.Code,
		TimeoutMS:      req.TimeoutMS(),
		MaxOutputBytes: req.MaxOutputBytes,
		MaxCallStack:   req.MaxCallStack,
		MemoryMB:       req.MemoryMB,
		CPUTimeSec:     req.CPUTimeSec,
	}
}

func (w workerRequest) request() Request {
	return Request{
		Code:           w.Code,
		Timeout:        time.Duration(w.TimeoutMS) * time.Millisecond,
		MaxOutputBytes: w.MaxOutputBytes,
		MaxCallStack:   w.MaxCallStack,
		MemoryMB:       w.MemoryMB,
		CPUTimeSec:     w.CPUTimeSec,
	}
}

type frame struct {
	Type       string  `json:"type"`
	Line       string  `json:"line,omitempty"`
	Succeeded  bool    `json:"succeeded,omitempty"`
	Result     *string `json:"result,omitempty"`
	Error      string  `json:"error,omitempty"`
	TimedOut   bool    `json:"timed_out,omitempty"`
	DurationUS int64   `json:"duration_us,omitempty"`
}

func outcomeFrame(o Outcome) frame {
	return frame{
		Type:       frameOutcome,
		Succeeded:  o.Succeeded,
		Result:     o.Result,
		Error:      o.Error,
		TimedOut:   o.TimedOut,
		DurationUS: o.Duration.Microseconds(),
	}
}

func (f frame) outcome(lines []string) Outcome {
	return Outcome{
		Succeeded: f.Succeeded,
		Output:    lines,
		Result:    f.Result,
		Error:     f.Error,
		TimedOut:  f.TimedOut,
		Duration:  time.Duration(f.DurationUS) * time.Microsecond,
	}
}

// RunWorker serves exactly one request read from stdin and returns the
// process exit code. Resource limits carried by the request are applied to
// the current process before the runtime is created.
func RunWorker(stdin io.Reader, stdout, stderr io.Writer) int {
	runtime.GOMAXPROCS(1)

	data, err := io.ReadAll(io.LimitReader(stdin, maxWorkerRequestBytes+1))
	if err != nil {
		fmt.Fprintf(stderr, "sandbox-worker: failed to read request: %v\n", err)
		return 2
	}
	if len(data) > maxWorkerRequestBytes {
		fmt.Fprintln(stderr, "sandbox-worker: request too large")
		return 2
	}

	var wreq workerRequest
	if err := json.Unmarshal(data, &wreq); err != nil {
		fmt.Fprintf(stderr, "sandbox-worker: invalid request: %v\n", err)
		return 2
	}
	req := wreq.request()

	// best effort, the parent still enforces the wall-clock budget
	if err := applyWorkerLimits(req); err != nil {
		fmt.Fprintf(stderr, "sandbox-worker: resource limits not fully applied: %v\n", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	stop := notifyCPULimit(func() { cancel(ErrCPULimitExceeded) })
	defer stop()

	enc := json.NewEncoder(stdout)
	outcome, err := Evaluate(ctx, req, func(line string) {
		_ = enc.Encode(frame{Type: frameLine, Line: line})
	})
	if err != nil {
		fmt.Fprintf(stderr, "sandbox-worker: %v\n", err)
		return 2
	}

	if err := enc.Encode(outcomeFrame(outcome)); err != nil {
		fmt.Fprintf(stderr, "sandbox-worker: failed to write outcome: %v\n", err)
		return 2
	}

	return 0
}
