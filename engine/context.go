// Package engine defines the narrow interface the runtime needs from a
// script engine (global object access, a heap-stash-equivalent, JSON
// encode/decode, native function and finalizer registration, and garbage
// collection), plus the native-error taxonomy scripts observe. workerrt and
// script depend only on this interface, never on a concrete engine, so the
// quiescence collector's "demote to weak reference, collect, re-root
// survivors" dance (spec-mandated) is exercised identically whether the
// concrete engine is the real modernc.org/quickjs adapter or the in-memory
// fake used in tests.
package engine

import "github.com/pkg/errors"

// Value is an opaque handle to a script-engine value (object, function,
// primitive). Its concrete representation is defined by whichever Context
// implementation produced it; callers never interpret it directly.
type Value interface{}

// NativeFunc is a Go function exposed to scripts as a callable. The engine
// is responsible for marshalling script-side arguments into Values before
// invoking it and marshalling the return Value (or thrown error) back.
type NativeFunc func(ctx Context, this Value, args []Value) (Value, error)

// Stash key names, kept for adapters that back the stash with a real
// scripted object (as Duktape's heap stash is); the Go-native fake and
// quickjs adapter both keep the stash out-of-band instead and never
// reference these.
const (
	DefaultPortKey = "jsrun:defaultPort"
	WorkerKey      = "jsrun:worker"
	ChildrenKey    = "jsrun:children"
)

// Stash is the per-context registry that would otherwise live in the
// script engine's heap stash: the default port identity, the worker record
// owning this context (nil for the root context), and the live-children
// list the quiescence collector walks. It is a plain Go struct rather than
// a scripted object because nothing in this runtime needs the stash to be
// reachable from script.
type Stash struct {
	DefaultPort interface{}
	Worker      interface{}
	Children    []interface{}
}

// Context is the script-engine collaborator the runtime requires. One
// Context exists per worker (including the root), and per §5 of the design
// it must only ever be driven from the single goroutine that owns it.
type Context interface {
	// Global returns the global object.
	Global() Value

	// HeapStash returns this context's private registry. The same *Stash is
	// returned on every call; callers mutate it in place.
	HeapStash() *Stash

	// Eval compiles and runs source under the given filename (used only for
	// stack traces / error messages) and returns the completion value.
	Eval(source, filename string) (Value, error)

	// JSONEncode serializes a Value to JSON text.
	JSONEncode(v Value) (string, error)

	// JSONDecode parses JSON text into a Value.
	JSONDecode(json string) (Value, error)

	// DefineFunction installs a NativeFunc as a property of obj.
	DefineFunction(obj Value, name string, fn NativeFunc, enumerable bool) error

	// DefineProperty installs a plain data or accessor property on obj. A
	// nil getter/setter pair installs a plain value property (value must be
	// non-nil in that case).
	DefineProperty(obj Value, name string, value Value, getter, setter NativeFunc) error

	// GetProperty reads a named property off obj, running its accessor if
	// it was installed as one.
	GetProperty(obj Value, name string) (Value, error)

	// NewObject creates a fresh, empty script object.
	NewObject() Value

	// SetOpaque associates an arbitrary Go value with a script object,
	// retrievable with Opaque. Used to attach a *workerrt.Worker to its
	// script-visible wrapper object.
	SetOpaque(obj Value, data interface{})

	// Opaque retrieves the Go value previously attached with SetOpaque, or
	// nil if none was set.
	Opaque(obj Value) interface{}

	// SetFinalizer registers fn to run when obj becomes unreachable and is
	// collected by the engine's GC. See DESIGN.md for the assumption this
	// makes about modernc.org/quickjs's finalizer support.
	SetFinalizer(obj Value, fn func(Value))

	// Root takes an additional GC-rooting reference to obj, keeping it alive
	// regardless of whether script code still references it, and returns a
	// handle to that reference. Unroot releases it. The quiescence collector
	// uses this pair to hold a worker's wrapper object strongly while it may
	// still receive messages, then demote it (Unroot) once the worker goes
	// idle, letting the engine's own reachability analysis decide whether
	// script code still needs it.
	Root(obj Value) Value
	Unroot(ref Value)

	// CollectGarbage forces an immediate garbage collection pass.
	CollectGarbage()

	// Call invokes fn as a function with the given this-binding and
	// arguments.
	Call(fn Value, this Value, args ...Value) (Value, error)

	// Throw raises a native error of the given kind as a thrown exception
	// from the currently executing native function. It always returns a
	// non-nil error suitable for propagating up through a NativeFunc.
	Throw(kind Exception, message string) error

	// Close releases all resources held by the context. Not safe to call
	// concurrently with any other Context method.
	Close()
}

// Exception enumerates the native ECMAScript error constructors a
// script-visible failure may be reported through (carried over from the
// teacher's utils.Exception enum, generalized from a single global VM to
// whichever Context is in scope).
type Exception string

const (
	EvalError      Exception = "EvalError"
	RangeError     Exception = "RangeError"
	ReferenceError Exception = "ReferenceError"
	SyntaxError    Exception = "SyntaxError"
	TypeError      Exception = "TypeError"
	URIError       Exception = "URIError"
)

// ThrowTypeError is a convenience for the most common case: reporting that a
// script-supplied argument was missing, of the wrong type, or otherwise
// invalid.
func ThrowTypeError(ctx Context, err error) error {
	return ctx.Throw(TypeError, errorMessage(err))
}

// ThrowRangeError reports that a numeric argument fell outside its valid
// range (e.g. a negative or over-capacity typed array length).
func ThrowRangeError(ctx Context, err error) error {
	return ctx.Throw(RangeError, errorMessage(err))
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return errors.Cause(err).Error()
}
