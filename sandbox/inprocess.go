package sandbox

import (
	"context"

	"go.uber.org/zap"
)

// InProcessExecutor implements Executor by evaluating in the service process
// (WARNING: no OS-level isolation, development only). Memory and CPU-time
// limits are not enforced.
type InProcessExecutor struct {
	logger *zap.Logger
}

// NewInProcessExecutor creates an InProcessExecutor
func NewInProcessExecutor(logger *zap.Logger) *InProcessExecutor {
	logger.Warn("in-process sandbox backend enabled, scripts share the service process")
	return &InProcessExecutor{logger: logger}
}

// Execute evaluates req on the calling goroutine
func (e *InProcessExecutor) Execute(ctx context.Context, req Request) (Outcome, error) {
	outcome, err := Evaluate(ctx, req, nil)
	if err != nil {
		return Outcome{}, err
	}

	e.logger.Debug("in-process evaluation finished",
		zap.Bool("succeeded", outcome.Succeeded),
		zap.Bool("timed_out", outcome.TimedOut),
		zap.Duration("duration", outcome.Duration),
	)

	return outcome, nil
}
