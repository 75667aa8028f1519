package sandbox

import (
	"fmt"
	"sort"

	"github.com/dop251/goja"
)

// Capabilities is the closed table of global bindings visible to a script.
// Anything the runtime defines that is not listed is removed before user
// code runs.
type Capabilities struct {
	allowed map[string]struct{}
	inert   []string
}

// DefaultGlobals are the pure built-ins a script may use.
var DefaultGlobals = []string{
	"Math", "Date", "JSON", "Array", "Object", "String", "Number", "Boolean", "RegExp",
	"parseInt", "parseFloat", "isNaN", "isFinite",
	"Error", "TypeError", "RangeError", "SyntaxError", "ReferenceError", "EvalError", "URIError", "AggregateError",
	"Map", "Set", "WeakMap", "WeakSet", "Symbol", "Promise", "BigInt",
	"ArrayBuffer", "DataView",
	"Int8Array", "Uint8Array", "Uint8ClampedArray", "Int16Array", "Uint16Array",
	"Int32Array", "Uint32Array", "Float32Array", "Float64Array", "BigInt64Array", "BigUint64Array",
	"encodeURIComponent", "decodeURIComponent", "encodeURI", "decodeURI",
	"Infinity", "NaN", "undefined",
}

// InertGlobals exist so scripts referencing them do not fail, but they do nothing.
var InertGlobals = []string{
	"setTimeout", "setInterval", "setImmediate",
	"clearTimeout", "clearInterval", "clearImmediate",
	"queueMicrotask",
}

// NewCapabilities returns the default capability table.
func NewCapabilities() *Capabilities {
	c := &Capabilities{
		allowed: make(map[string]struct{}, len(DefaultGlobals)),
		inert:   InertGlobals,
	}
	for _, name := range DefaultGlobals {
		c.allowed[name] = struct{}{}
	}
	return c
}

// Allows reports whether name is a permitted built-in.
func (c *Capabilities) Allows(name string) bool {
	_, ok := c.allowed[name]
	return ok
}

// Apply closes vm over the table and binds console. It must run on a fresh
// runtime before any user code.
func (c *Capabilities) Apply(vm *goja.Runtime, console *Console) error {
	if err := lockFunctionConstructors(vm); err != nil {
		return err
	}

	global := vm.GlobalObject()
	names := global.GetOwnPropertyNames()
	sort.Strings(names)
	for _, name := range names {
		if c.Allows(name) {
			continue
		}
		if err := global.Delete(name); err != nil {
			// non-configurable binding, shadow it instead
			if err := global.Set(name, goja.Undefined()); err != nil {
				return fmt.Errorf("failed to remove global %s: %w", name, err)
			}
		}
	}

	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range c.inert {
		if err := vm.Set(name, noop); err != nil {
			return fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	if err := vm.Set("console", console.object(vm)); err != nil {
		return fmt.Errorf("failed to bind console: %w", err)
	}

	return nil
}

// functionPrototypes evaluate to the prototypes whose constructor property
// compiles source text.
var functionPrototypes = []string{
	`Function.prototype`,
	`Object.getPrototypeOf(function* () {})`,
	`Object.getPrototypeOf(async function () {})`,
	`Object.getPrototypeOf(async function* () {})`,
}

func lockFunctionConstructors(vm *goja.Runtime) error {
	thrower := vm.ToValue(func(goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("Function constructor is disabled"))
	})

	for i, expr := range functionPrototypes {
		proto, err := vm.RunString(expr)
		if err != nil {
			if i == 0 {
				return fmt.Errorf("failed to resolve Function.prototype: %w", err)
			}
			// syntax not supported by this runtime
			continue
		}
		obj := proto.ToObject(vm)
		err = obj.DefineDataProperty("constructor", thrower, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
		if err != nil && i == 0 {
			return fmt.Errorf("failed to lock %s.constructor: %w", expr, err)
		}
	}

	return nil
}
