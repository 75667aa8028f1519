package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/isdmx/execbox/sandbox"
)

func TestEnvelope(t *testing.T) {
	now := time.UnixMilli(42)
	result := "3"

	t.Run("Success", func(t *testing.T) {
		env := Envelope(sandbox.Outcome{Succeeded: true, Output: []string{"a", "b"}, Result: &result}, now)
		assert.Equal(t, SuccessEnvelope{Success: true, Output: "a\nb", Result: &result, ExecutionTime: 42}, env)
	})

	t.Run("Failure", func(t *testing.T) {
		env := Envelope(sandbox.Outcome{Error: "boom", Output: []string{"x"}}, now)
		assert.Equal(t, FailureEnvelope{Success: false, Error: "boom", Output: "x"}, env)
	})

	t.Run("TimedOutKeepsOutput", func(t *testing.T) {
		env := Envelope(sandbox.Outcome{TimedOut: true, Error: "Script execution timed out after 5000ms", Output: []string{"tick"}}, now)
		assert.Equal(t, FailureEnvelope{Error: "Script execution timed out after 5000ms", Output: "tick"}, env)
	})

	t.Run("NoOutput", func(t *testing.T) {
		env := Envelope(sandbox.Outcome{Succeeded: true}, now)
		assert.Equal(t, SuccessEnvelope{Success: true, Output: "", ExecutionTime: 42}, env)
	})
}
