package execution

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/execbox/sandbox"
)

// Run tracks one request through the execution lifecycle.
type Run struct {
	ID      string
	Started time.Time

	mu      sync.Mutex
	state   State
	outcome sandbox.Outcome
	logger  *zap.Logger
}

func newRun(id string, logger *zap.Logger) *Run {
	r := &Run{
		ID:      id,
		Started: time.Now(),
		state:   StateReceived,
		logger:  logger.With(zap.String("execution_id", id)),
	}
	r.logger.Debug("execution state", zap.Stringer("state", StateReceived))
	return r
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Outcome returns the sandbox outcome. It is only meaningful once the run
// reached Completed, Failed or TimedOut.
func (r *Run) Outcome() sandbox.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

func (r *Run) transition(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.CanTransition(to) {
		return fmt.Errorf("invalid execution state transition %s -> %s", r.state, to)
	}

	r.logger.Debug("execution state",
		zap.Stringer("from", r.state),
		zap.Stringer("state", to),
	)
	r.state = to
	return nil
}

// advance moves the run along a transition the pipeline guarantees. A
// refused transition means the state table and the pipeline disagree.
func (r *Run) advance(to State) {
	if err := r.transition(to); err != nil {
		r.logger.Error("impossible execution state transition", zap.Error(err))
	}
}

// ResponseSent closes the run once the caller has written its response.
func (r *Run) ResponseSent(status int) {
	if r.State().Terminal() {
		r.logger.Warn("response recorded twice", zap.Int("status", status))
		return
	}
	if err := r.transition(StateResponseSent); err != nil {
		r.logger.Error("response sent before execution finished", zap.Error(err))
		return
	}
	r.logger.Debug("response sent",
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(r.Started)),
	)
}
