package execution

import (
	"strings"
	"time"

	"github.com/isdmx/execbox/sandbox"
)

// MsgInternalError is the only detail clients see for internal failures.
const MsgInternalError = "Failed to execute code"

// SuccessEnvelope is the client body of a script that ran to completion.
// ExecutionTime is the Unix millisecond timestamp of completion.
type SuccessEnvelope struct {
	Success       bool    `json:"success"`
	Output        string  `json:"output"`
	Result        *string `json:"result,omitempty"`
	ExecutionTime int64   `json:"executionTime"`
}

// FailureEnvelope is the client body of a script that threw or timed out.
type FailureEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Output  string `json:"output"`
}

// ErrorEnvelope is the client body of a rejected or failed request.
type ErrorEnvelope struct {
	Error string `json:"error"`
}

// Envelope maps a sandbox outcome to its client body.
func Envelope(outcome sandbox.Outcome, now time.Time) any {
	output := strings.Join(outcome.Output, "\n")

	if !outcome.Succeeded {
		return FailureEnvelope{
			Success: false,
			Error:   outcome.Error,
			Output:  output,
		}
	}

	return SuccessEnvelope{
		Success:       true,
		Output:        output,
		Result:        outcome.Result,
		ExecutionTime: now.UnixMilli(),
	}
}
