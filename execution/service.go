package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/logger"
	"github.com/isdmx/execbox/metrics"
	"github.com/isdmx/execbox/sandbox"
	"github.com/isdmx/execbox/validator"
)

// Request is a submitted snippet. A nil Language means the client did not
// specify one.
type Request struct {
	Code     string
	Language *string
}

// Service runs the validate, execute, collect pipeline for each request.
type Service struct {
	logger    *zap.Logger
	validator *validator.Validator
	executor  sandbox.Executor
	metrics   *metrics.Recorder
	sem       *semaphore.Weighted
	backend   string
	limits    sandbox.Request
}

// NewService wires the pipeline from configuration
func NewService(cfg *config.Config, log *zap.Logger, v *validator.Validator, executor sandbox.Executor, rec *metrics.Recorder) *Service {
	sc := cfg.Sandbox
	return &Service{
		logger:    logger.Component(log, "execution"),
		validator: v,
		executor:  executor,
		metrics:   rec,
		sem:       semaphore.NewWeighted(int64(max(sc.MaxConcurrent, 1))),
		backend:   sc.Backend,
		limits: sandbox.Request{
			Timeout:        cfg.GetTimeout(),
			MaxOutputBytes: sc.MaxOutputBytes,
			MaxCallStack:   sc.MaxCallStack,
			MemoryMB:       sc.MemoryMB,
			CPUTimeSec:     cfg.GetCPUTimeSec(),
		},
	}
}

// Execute validates and runs req. A rejected request returns its Run and a
// *validator.Rejection; an internal failure returns a wrapped error. Script
// failures are not errors: they are reported through Run.Outcome.
func (s *Service) Execute(ctx context.Context, req Request) (*Run, error) {
	run := newRun(uuid.NewString(), s.logger)
	log := run.logger

	run.advance(StateValidating)
	if err := s.validator.Validate(req.Code, req.Language); err != nil {
		run.advance(StateRejected)
		if rej, ok := validator.AsRejection(err); ok {
			log.Info("execution rejected",
				zap.Stringer("reason", rej.Reason),
				zap.String("rule", rej.Rule),
				zap.Int("code_bytes", len(req.Code)),
				zap.String("code_sha256", codeDigest(req.Code)),
			)
			s.metrics.Rejected(ctx, rej.Reason.String())
		}
		return run, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		run.advance(StateExecuting)
		run.advance(StateFailed)
		s.metrics.ExecutionFinished(ctx, s.backend, metrics.OutcomeError, 0, 0)
		return run, fmt.Errorf("waiting for sandbox slot: %w", err)
	}
	defer s.sem.Release(1)

	run.advance(StateExecuting)
	log.Info("executing code",
		zap.String("backend", s.backend),
		zap.Int("code_bytes", len(req.Code)),
		zap.String("code_sha256", codeDigest(req.Code)),
	)

	sreq := s.limits
	sreq.Code = req.Code

	done := s.metrics.ExecutionStarted(ctx, s.backend)
	outcome, err := s.executor.Execute(ctx, sreq)
	done()

	if err != nil {
		run.advance(StateFailed)
		s.metrics.ExecutionFinished(ctx, s.backend, metrics.OutcomeError, outcome.Duration, 0)
		log.Error("sandbox execution failed", zap.Error(err))
		return run, fmt.Errorf("sandbox execution: %w", err)
	}

	run.mu.Lock()
	run.outcome = outcome
	run.mu.Unlock()

	label := metrics.OutcomeCompleted
	switch {
	case outcome.TimedOut:
		run.advance(StateTimedOut)
		label = metrics.OutcomeTimedOut
	case !outcome.Succeeded:
		run.advance(StateFailed)
		label = metrics.OutcomeFailed
	default:
		run.advance(StateCompleted)
	}

	s.metrics.ExecutionFinished(ctx, s.backend, label, outcome.Duration, len(outcome.Output))
	log.Info("execution finished",
		zap.String("outcome", label),
		zap.Duration("duration", outcome.Duration),
		zap.Int("output_lines", len(outcome.Output)),
	)

	return run, nil
}

// IsInternal reports whether err from Execute is an internal failure rather
// than a rejection.
func IsInternal(err error) bool {
	if err == nil {
		return false
	}
	var rej *validator.Rejection
	return !errors.As(err, &rej)
}

func codeDigest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:8])
}
