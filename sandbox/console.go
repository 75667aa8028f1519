package sandbox

import (
	"strings"

	"github.com/dop251/goja"
)

// TruncationMarker is appended once when captured output exceeds its budget.
const TruncationMarker = "... output truncated"

// Console captures diagnostic output of a single script run.
type Console struct {
	lines     []string
	size      int
	limit     int
	truncated bool
	onLine    func(string)
}

// NewConsole creates a sink holding at most limit bytes of output. Every
// accepted line is also passed to onLine when it is not nil.
func NewConsole(limit int, onLine func(string)) *Console {
	return &Console{limit: limit, onLine: onLine}
}

// Lines returns the captured lines in call order.
func (c *Console) Lines() []string {
	return c.lines
}

func (c *Console) append(line string) {
	if c.truncated {
		return
	}

	if c.limit > 0 && c.size+len(line)+1 > c.limit {
		c.truncated = true
		line = TruncationMarker
	} else {
		c.size += len(line) + 1
	}

	c.lines = append(c.lines, line)
	if c.onLine != nil {
		c.onLine(line)
	}
}

func (c *Console) object(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()

	method := func(prefix string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			c.append(prefix + render(call.Arguments))
			return goja.Undefined()
		}
	}

	_ = obj.Set("log", method(""))
	_ = obj.Set("info", method(""))
	_ = obj.Set("debug", method(""))
	_ = obj.Set("error", method("ERROR: "))
	_ = obj.Set("warn", method("WARN: "))

	return obj
}

// render joins arguments with String(arg) semantics. A throwing toString
// propagates to the script as an exception.
func render(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	return strings.Join(parts, " ")
}
