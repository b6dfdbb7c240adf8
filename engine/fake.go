package engine

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// fakeObject is the only non-primitive Value kind the fake engine produces.
// Plain JSON data round-trips as ordinary Go values (nil, bool, float64,
// string, []interface{}, map[string]interface{}) so JSONEncode/JSONDecode
// can use encoding/json directly; fakeObject is reserved for script objects
// that carry identity (functions, the global object, Worker wrappers).
type fakeObject struct {
	mu        sync.Mutex
	props     map[string]Value
	fn        NativeFunc
	getters   map[string]NativeFunc
	setters   map[string]NativeFunc
	opaque    interface{}
	finalizer func(Value)
	rootCount int
	finalized bool
}

func newFakeObject() *fakeObject {
	return &fakeObject{
		props:   make(map[string]Value),
		getters: make(map[string]NativeFunc),
		setters: make(map[string]NativeFunc),
	}
}

// FakeContext is a deterministic engine.Context double with no real
// JavaScript parser behind it: Eval treats its source argument as an opaque
// label rather than executing anything. It exists so the concurrency
// properties of port/workerrt can be tested without depending on quickjs's
// threading story, per SPEC_FULL.md §8.
type FakeContext struct {
	mu      sync.Mutex
	global  *fakeObject
	stash   Stash
	closed  bool
	objects []*fakeObject
}

// NewFakeContext constructs a ready-to-use FakeContext.
func NewFakeContext() *FakeContext {
	return &FakeContext{global: newFakeObject()}
}

func (c *FakeContext) track(o *fakeObject) *fakeObject {
	c.mu.Lock()
	c.objects = append(c.objects, o)
	c.mu.Unlock()
	return o
}

func (c *FakeContext) Global() Value { return c.global }

func (c *FakeContext) HeapStash() *Stash { return &c.stash }

// Eval is a no-op that returns undefined; FakeContext is driven entirely
// through DefineFunction/Call, not by parsing source text.
func (c *FakeContext) Eval(_ string, _ string) (Value, error) { return nil, nil }

func (c *FakeContext) JSONEncode(v Value) (string, error) {
	if _, ok := v.(*fakeObject); ok {
		return "", errors.New("cannot JSON-encode an opaque engine object")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "json encode")
	}
	return string(b), nil
}

func (c *FakeContext) JSONDecode(text string) (Value, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, errors.Wrap(err, "json decode")
	}
	return v, nil
}

func asFakeObject(v Value) (*fakeObject, error) {
	o, ok := v.(*fakeObject)
	if !ok {
		return nil, errors.New("value is not an engine object")
	}
	return o, nil
}

func (c *FakeContext) DefineFunction(obj Value, name string, fn NativeFunc, _ bool) error {
	o, err := asFakeObject(obj)
	if err != nil {
		return err
	}
	fo := c.track(newFakeObject())
	fo.fn = fn
	o.mu.Lock()
	o.props[name] = fo
	o.mu.Unlock()
	return nil
}

func (c *FakeContext) DefineProperty(obj Value, name string, value Value, getter, setter NativeFunc) error {
	o, err := asFakeObject(obj)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if getter != nil || setter != nil {
		o.getters[name] = getter
		o.setters[name] = setter
		return nil
	}
	o.props[name] = value
	return nil
}

func (c *FakeContext) NewObject() Value { return c.track(newFakeObject()) }

func (c *FakeContext) GetProperty(obj Value, name string) (Value, error) {
	o, err := asFakeObject(obj)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	getter, hasGetter := o.getters[name]
	v, hasProp := o.props[name]
	o.mu.Unlock()

	if hasGetter && getter != nil {
		return getter(c, obj, nil)
	}
	if hasProp {
		return v, nil
	}
	return nil, nil
}

func (c *FakeContext) SetOpaque(obj Value, data interface{}) {
	o, err := asFakeObject(obj)
	if err != nil {
		return
	}
	o.mu.Lock()
	o.opaque = data
	o.mu.Unlock()
}

func (c *FakeContext) Opaque(obj Value) interface{} {
	o, err := asFakeObject(obj)
	if err != nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opaque
}

func (c *FakeContext) SetFinalizer(obj Value, fn func(Value)) {
	o, err := asFakeObject(obj)
	if err != nil {
		return
	}
	o.mu.Lock()
	o.finalizer = fn
	o.mu.Unlock()
}

// Root takes an additional strong reference on obj, exempting it from
// CollectGarbage until a matching Unroot. It returns obj itself: FakeContext
// has no separate handle representation for a root.
func (c *FakeContext) Root(obj Value) Value {
	o, err := asFakeObject(obj)
	if err != nil {
		return obj
	}
	o.mu.Lock()
	o.rootCount++
	o.mu.Unlock()
	return obj
}

// Unroot releases a reference previously taken by Root.
func (c *FakeContext) Unroot(ref Value) {
	o, err := asFakeObject(ref)
	if err != nil {
		return
	}
	o.mu.Lock()
	if o.rootCount > 0 {
		o.rootCount--
	}
	o.mu.Unlock()
}

// CollectGarbage finalizes every tracked object with a zero root count that
// has not already been finalized. FakeContext has no real reachability
// analysis, so "rootCount reached zero" stands in for "unreachable" —
// callers that want to simulate a script-side reference outliving workerrt's
// own Root keep their own Root call outstanding.
func (c *FakeContext) CollectGarbage() {
	c.mu.Lock()
	objs := make([]*fakeObject, len(c.objects))
	copy(objs, c.objects)
	c.mu.Unlock()

	for _, o := range objs {
		o.mu.Lock()
		if o.finalized || o.rootCount > 0 {
			o.mu.Unlock()
			continue
		}
		o.finalized = true
		fn := o.finalizer
		o.mu.Unlock()
		if fn != nil {
			fn(o)
		}
	}
}

// Call invokes fn's NativeFunc directly; fn must be a callable fakeObject
// (CallMethod is the by-name lookup).
func (c *FakeContext) Call(fn Value, this Value, args ...Value) (Value, error) {
	o, err := asFakeObject(fn)
	if err != nil {
		return nil, err
	}
	if o.fn == nil {
		return nil, errors.New("value is not callable")
	}
	return o.fn(c, this, args)
}

// CallMethod looks up name on obj and calls it with obj as this. It is a
// FakeContext-only convenience, not part of Context (the real quickjs
// adapter has no such helper).
func (c *FakeContext) CallMethod(obj Value, name string, args ...Value) (Value, error) {
	o, err := asFakeObject(obj)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	fn, ok := o.props[name]
	o.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("no such method %q", name)
	}
	return c.Call(fn, obj, args...)
}

func (c *FakeContext) Throw(kind Exception, message string) error {
	return errors.Errorf("%s: %s", kind, message)
}

func (c *FakeContext) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
