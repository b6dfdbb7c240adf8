// Package script installs the Worker constructor, postMessage, terminate and
// closing bindings onto a script-engine context, and dispatches delivered
// messages to a context's onmessage handler. It is grounded on
// original_source/worker.c's init_workers, spawn_worker, post_message_method,
// post_message_global, terminate_method, get_closing and finalise_worker,
// and on the teacher's utils.Throw/Exception pattern for reporting malformed
// calls back to script as native errors.
package script

import (
	"github.com/pkg/errors"

	"github.com/jsrun-go/jsrun/engine"
	"github.com/jsrun-go/jsrun/module"
	"github.com/jsrun-go/jsrun/port"
	"github.com/jsrun-go/jsrun/workerrt"
)

// NewContextFunc constructs a fresh, independent script-engine context for a
// newly spawned worker. Supplied by cmd/jsrun so that package script never
// depends on a concrete engine implementation.
type NewContextFunc func() (engine.Context, error)

// Bindings wires a workerrt.Worker's run loop to a script engine context:
// it installs the global postMessage/Worker/closing surface and provides
// the OnMessage function the worker's run loop invokes per delivered
// message.
type Bindings struct {
	newContext NewContextFunc
	loader     *module.Loader
}

// NewBindings constructs a Bindings. newContext is used every time script
// calls `new Worker(file)`; loader resolves and fetches the source for the
// spawned worker's file argument.
func NewBindings(newContext NewContextFunc, loader *module.Loader) *Bindings {
	return &Bindings{newContext: newContext, loader: loader}
}

// Install registers the global postMessage function, the Worker constructor
// and the closing getter onto ctx's global object, scoped to the worker that
// owns ctx (self). The postMessage/terminate methods and closing getter of
// each Worker wrapper object are installed by installInstanceMethods when
// the wrapper is constructed. Install is called once per worker, including
// the root, mirroring
// init_default_objects being run for every new Duktape heap in jsrun.c.
func (b *Bindings) Install(ctx engine.Context, self *workerrt.Worker) error {
	global := ctx.Global()

	err := ctx.DefineFunction(global, "postMessage", func(c engine.Context, _ engine.Value, args []engine.Value) (engine.Value, error) {
		return nil, b.postMessageGlobal(c, self, args)
	}, true)
	if err != nil {
		return errors.Wrap(err, "install global postMessage")
	}

	err = ctx.DefineFunction(global, "Worker", func(c engine.Context, this engine.Value, args []engine.Value) (engine.Value, error) {
		return b.constructWorker(c, self, this, args)
	}, true)
	if err != nil {
		return errors.Wrap(err, "install Worker constructor")
	}

	err = ctx.DefineProperty(global, "closing", nil, func(engine.Context, engine.Value, []engine.Value) (engine.Value, error) {
		return self.Closing(), nil
	}, nil)
	if err != nil {
		return errors.Wrap(err, "install global closing getter")
	}

	return nil
}

// postMessageGlobal implements the bare global postMessage(data) call from
// inside a worker: it serializes data and posts it to the worker's parent,
// tagged with self's own wrapper object as Receiver so the parent's dispatch
// routes the reply to that specific Worker instance's onmessage rather than
// the parent's global onmessage (post_message_global in worker.c posts
// against the worker's own `->object`, not a bare global receiver; with more
// than one child spawned, routing through nil would make every child's
// replies indistinguishable on the parent side).
func (b *Bindings) postMessageGlobal(ctx engine.Context, self *workerrt.Worker, args []engine.Value) error {
	var arg engine.Value
	if len(args) > 0 {
		arg = args[0]
	}
	payload, err := ctx.JSONEncode(arg)
	if err != nil {
		return engine.ThrowTypeError(ctx, errors.Wrap(err, "postMessage argument must be JSON-serializable"))
	}
	if err := self.PostGlobal(port.NewMessage([]byte(payload), self.Object())); err != nil {
		// A dropped send to a dead parent is not a script-visible error:
		// spec treats send-on-dead-port as a silent no-op, matching
		// send_message's own drop-on-terminated behaviour.
		return nil
	}
	return nil
}

// constructWorker implements `new Worker(file)`: validates the single
// string argument, resolves and loads its source, spawns a child worker via
// workerrt, and returns the script-visible wrapper object with
// postMessage/terminate/closing installed on it.
func (b *Bindings) constructWorker(ctx engine.Context, self *workerrt.Worker, _ engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) != 1 {
		return nil, engine.ThrowTypeError(ctx, errors.Errorf("Worker expects exactly one argument, got %d", len(args)))
	}
	file, ok := args[0].(string)
	if !ok {
		return nil, engine.ThrowTypeError(ctx, errors.New("Worker argument must be a string file path"))
	}

	source, url, err := b.loader.Load(file)
	if err != nil {
		return nil, engine.ThrowTypeError(ctx, errors.Wrapf(err, "loading worker file %q", file))
	}

	childCtx, err := b.newContext()
	if err != nil {
		return nil, ctx.Throw(engine.EvalError, errors.Wrap(err, "creating worker context").Error())
	}

	wrapper := ctx.NewObject()
	child := self.Spawn(childCtx, url, wrapper, b.dispatch)
	ctx.SetOpaque(wrapper, child)

	if err := b.installInstanceMethods(ctx, wrapper, child); err != nil {
		return nil, err
	}

	// The child's own context needs the same global surface so it can spawn
	// grandchildren and use postMessage/Worker itself.
	if err := b.Install(childCtx, child); err != nil {
		return nil, err
	}

	go func() {
		if _, err := childCtx.Eval(source, url); err != nil {
			// A load/compile failure in the child is reported by exiting its
			// run loop immediately (the worker is terminated before the loop
			// starts, so it goes straight to cleanup) rather than crashing
			// the parent, per spec §7(b)'s load-failure handling.
			child.Terminate()
		}
		child.Run()
	}()

	return wrapper, nil
}

// installInstanceMethods installs postMessage, terminate and the closing
// getter on a single Worker wrapper object, each bound to the specific child
// it wraps (post_message_method, terminate_method, get_closing in
// worker.c).
func (b *Bindings) installInstanceMethods(ctx engine.Context, wrapper engine.Value, child *workerrt.Worker) error {
	err := ctx.DefineFunction(wrapper, "postMessage", func(c engine.Context, _ engine.Value, args []engine.Value) (engine.Value, error) {
		var arg engine.Value
		if len(args) > 0 {
			arg = args[0]
		}
		payload, err := c.JSONEncode(arg)
		if err != nil {
			return nil, engine.ThrowTypeError(c, errors.Wrap(err, "postMessage argument must be JSON-serializable"))
		}
		_ = child.Send(port.NewMessage([]byte(payload), nil))
		return nil, nil
	}, true)
	if err != nil {
		return errors.Wrap(err, "install instance postMessage")
	}

	err = ctx.DefineFunction(wrapper, "terminate", func(c engine.Context, _ engine.Value, _ []engine.Value) (engine.Value, error) {
		child.Terminate()
		return nil, nil
	}, true)
	if err != nil {
		return errors.Wrap(err, "install terminate")
	}

	err = ctx.DefineProperty(wrapper, "closing", nil, func(c engine.Context, _ engine.Value, _ []engine.Value) (engine.Value, error) {
		return child.Closing(), nil
	}, nil)
	if err != nil {
		return errors.Wrap(err, "install closing getter")
	}

	return nil
}

// Dispatch returns this Bindings' delivery function as a workerrt.OnMessage,
// for wiring into workerrt.NewRoot/Spawn.
func (b *Bindings) Dispatch() workerrt.OnMessage { return b.dispatch }

// dispatch is the workerrt.OnMessage implementation installed on every
// worker spawned through this Bindings: it decodes the message payload and
// invokes the worker's script-level onmessage function, binding `this` to
// the message's Receiver when present (a reply addressed to a specific
// object) or to the global object otherwise.
func (b *Bindings) dispatch(ctx engine.Context, w *workerrt.Worker, msg *port.Message) error {
	value, err := ctx.JSONDecode(string(msg.Payload))
	if err != nil {
		return errors.Wrap(err, "decoding delivered message payload")
	}

	global := ctx.Global()
	handlerObj := global
	this := engine.Value(global)
	if msg.Receiver != nil {
		if rv, ok := msg.Receiver.(engine.Value); ok {
			this = rv
			handlerObj = rv
		}
	}

	handler, err := ctx.GetProperty(handlerObj, "onmessage")
	if err != nil || handler == nil {
		return nil // no handler registered; a delivered message with nobody
		// listening is dropped, matching a browser Worker with no onmessage.
	}
	_, err = ctx.Call(handler, this, value)
	return err
}
