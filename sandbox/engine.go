package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// ErrCPULimitExceeded is the cancellation cause used when the worker
// process receives SIGXCPU.
var ErrCPULimitExceeded = errors.New("cpu time limit exceeded")

// DefaultTimeout applies when a Request carries no wall-clock budget.
const DefaultTimeout = 5 * time.Second

const defaultMaxCallStack = 1024

// Evaluate runs code in a fresh runtime closed over the default capability
// table. Lines written to console are passed to onLine as they are produced.
// Script failures are reported through the Outcome; the returned error is
// set only when the runtime could not be prepared.
func Evaluate(ctx context.Context, req Request, onLine func(string)) (Outcome, error) {
	start := time.Now()

	console := NewConsole(req.MaxOutputBytes, onLine)
	vm := goja.New()

	maxStack := req.MaxCallStack
	if maxStack <= 0 {
		maxStack = defaultMaxCallStack
	}
	vm.SetMaxCallStackSize(maxStack)

	if err := NewCapabilities().Apply(vm, console); err != nil {
		return Outcome{}, fmt.Errorf("failed to prepare runtime: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	req.Timeout = timeout

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stop := context.AfterFunc(runCtx, func() {
		vm.Interrupt(context.Cause(runCtx))
	})
	defer stop()

	value, err := run(vm, req.Code)
	if err == nil {
		var result *string
		result, err = stringify(value)
		if err == nil {
			vm.ClearInterrupt()
			return Outcome{
				Succeeded: true,
				Output:    console.Lines(),
				Result:    result,
				Duration:  time.Since(start),
			}, nil
		}
	}

	outcome := Outcome{
		Succeeded: false,
		Output:    console.Lines(),
		Error:     failureMessage(err),
		Duration:  time.Since(start),
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) && isDeadline(interrupted.Value()) {
		outcome.Error = TimeoutMessage(req.Timeout)
		outcome.TimedOut = true
	}

	return outcome, nil
}

func run(vm *goja.Runtime, code string) (value goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r)
		}
	}()
	return vm.RunString(code)
}

// stringify renders the completion value with String(v) semantics. A nil
// result means the value was undefined.
func stringify(value goja.Value) (result *string, err error) {
	if value == nil || goja.IsUndefined(value) {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = recoveredError(r)
		}
	}()

	s := value.String()
	return &s, nil
}

func recoveredError(r any) error {
	switch v := r.(type) {
	case *goja.Exception:
		return v
	case *goja.InterruptedError:
		return v
	case error:
		return fmt.Errorf("runtime panic: %w", v)
	default:
		return fmt.Errorf("runtime panic: %v", v)
	}
}

func isDeadline(v any) bool {
	err, ok := v.(error)
	return ok && errors.Is(err, context.DeadlineExceeded)
}

// failureMessage extracts the client-facing message from an evaluation error.
func failureMessage(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		cause, _ := interrupted.Value().(error)
		switch {
		case errors.Is(cause, ErrCPULimitExceeded):
			return "Script exceeded the CPU time limit"
		case errors.Is(cause, context.Canceled):
			return "Script execution was cancelled"
		default:
			return "Script execution was interrupted"
		}
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return "Maximum call stack size exceeded"
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return exceptionMessage(exception.Value())
	}

	return err.Error()
}

// exceptionMessage returns the thrown value's message property when it has
// one, otherwise String(value).
func exceptionMessage(thrown goja.Value) (msg string) {
	if thrown == nil {
		return "Unknown error"
	}

	defer func() {
		if recover() != nil {
			msg = "Unknown error"
		}
	}()

	if obj, ok := thrown.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return m.String()
		}
		return obj.String()
	}

	return thrown.String()
}
