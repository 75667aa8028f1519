package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

const (
	maxStderrBytes  = 64 * 1024
	minWaitDelay    = 100 * time.Millisecond
	frameHeadroom   = 4096
	jsonEscapeRatio = 6
)

// commandFactory builds the worker command bound to ctx.
type commandFactory func(ctx context.Context) *exec.Cmd

// driveWorker starts a worker, sends it req and collects frames until it
// exits. When the budget plus grace elapses the worker is killed via kill
// and the lines received so far are returned in a timed-out Outcome.
func driveWorker(ctx context.Context, logger *zap.Logger, newCmd commandFactory, req Request, grace time.Duration, kill func(*exec.Cmd) error) (Outcome, error) {
	start := time.Now()
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}

	payload, err := json.Marshal(newWorkerRequest(req))
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to encode worker request: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, req.Timeout+grace)
	defer cancel()

	cmd := newCmd(runCtx)
	cmd.Stdin = bytes.NewReader(payload)
	stderr := &limitedBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr
	cmd.Cancel = func() error { return kill(cmd) }
	cmd.WaitDelay = max(grace, minWaitDelay)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to open worker stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("%w: failed to start worker: %v", ErrBackendUnavailable, err)
	}

	lines, final, readErr := readFrames(stdout, req.MaxOutputBytes)
	if readErr != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()
	duration := time.Since(start)

	if final != nil {
		outcome := final.outcome(lines)
		if outcome.Duration == 0 {
			outcome.Duration = duration
		}
		return outcome, nil
	}

	if ctx.Err() != nil {
		return Outcome{}, fmt.Errorf("execution cancelled: %w", context.Cause(ctx))
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("sandbox worker killed after deadline",
			zap.Duration("timeout", req.Timeout),
			zap.Duration("grace", grace),
			zap.Int("lines", len(lines)),
		)
		outcome := timedOutOutcome(req.Timeout, lines)
		outcome.Duration = duration
		return outcome, nil
	}

	if msg, ok := exitDescription(cmd.ProcessState, stderr.String()); ok {
		logger.Info("sandbox worker terminated by resource limit", zap.String("reason", msg))
		return Outcome{
			Succeeded: false,
			Output:    lines,
			Error:     msg,
			Duration:  duration,
		}, nil
	}

	logger.Error("sandbox worker exited without outcome",
		zap.NamedError("wait_error", waitErr),
		zap.NamedError("read_error", readErr),
		zap.String("stderr", stderr.String()),
	)

	state := "unknown state"
	if cmd.ProcessState != nil {
		state = cmd.ProcessState.String()
	}
	return Outcome{}, fmt.Errorf("%w: %s", ErrWorkerCrashed, state)
}

// readFrames consumes the worker stream until EOF. Lines are kept even if
// the stream ends without an outcome frame.
func readFrames(r io.Reader, maxOutputBytes int) ([]string, *frame, error) {
	scanner := bufio.NewScanner(r)
	limit := max(maxOutputBytes, bufio.MaxScanTokenSize)*jsonEscapeRatio + frameHeadroom
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), limit)

	var (
		lines []string
		final *frame
	)

	for scanner.Scan() {
		var f frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			return lines, final, fmt.Errorf("malformed worker frame: %w", err)
		}

		switch f.Type {
		case frameLine:
			lines = append(lines, f.Line)
		case frameOutcome:
			final = &f
		default:
			return lines, final, fmt.Errorf("unknown worker frame type %q", f.Type)
		}
	}

	return lines, final, scanner.Err()
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
