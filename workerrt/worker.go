// Package workerrt implements the worker record, its dispatch run loop, and
// the quiescence collector that lets idle subtrees of workers become
// garbage. It is grounded directly on original_source/worker.c's struct
// worker, run_worker, run_message_loop, try_to_collect_workers, get_message,
// cleanup_worker, spawn_worker and finalise_worker, translated from pthread
// mutex/condvar + Duktape heap-stash bookkeeping into Go goroutines, the
// port package's Port, and the engine.Context interface.
package workerrt

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/aquilax/truncate"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/jsrun-go/jsrun/engine"
	"github.com/jsrun-go/jsrun/port"
)

// payloadLogWidth matches the teacher's worker/messageManager.go, which
// truncates a logged message payload to 64 characters so a DEBUG trace of a
// large postMessage call doesn't flood the log.
const payloadLogWidth = 64

func truncatedPayload(payload []byte) string {
	return truncate.Truncate(string(payload), payloadLogWidth, "...", truncate.PositionMiddle)
}

var nextWorkerID uint64

func allocWorkerID() uint64 {
	return atomic.AddUint64(&nextWorkerID, 1)
}

// OnMessage is invoked once per delivered message, on the worker's own
// goroutine, exactly like run_message_loop's dispatch to the script engine's
// onmessage handler.
type OnMessage func(ctx engine.Context, w *Worker, msg *port.Message) error

// childRef tracks one direct child of a worker: the child itself, and
// whether this worker currently holds an extra GC-rooting reference to the
// child's script wrapper object (nil once demoted by the quiescence
// collector).
type childRef struct {
	worker     *Worker
	rootHandle engine.Value
}

// Worker is the Go analogue of struct worker in worker.c: an OS thread (a
// goroutine pinned with LockOSThread, since the script engine must only
// ever be driven by one goroutine), its own script context, its receive
// port, and — for every worker but the root — a reference to its parent's
// receive port and a registration in the parent's children set.
type Worker struct {
	id   uint64
	name string

	ctx         engine.Context
	object      engine.Value // script-visible wrapper; nil for the root worker
	receivePort *port.Port
	parentPort  *port.Port // nil for the root
	parent      *Worker    // nil for the root

	onMessage OnMessage

	mu       sync.Mutex
	children map[uint64]*childRef

	done chan struct{}
}

// NewRoot creates the root worker: it has no parent, so its run loop's own
// quiescence check (rather than signalling upward) decides when the whole
// program is idle and may exit.
func NewRoot(ctx engine.Context, name string, onMessage OnMessage) *Worker {
	w := &Worker{
		id:          allocWorkerID(),
		name:        name,
		ctx:         ctx,
		receivePort: port.NewPort(),
		onMessage:   onMessage,
		children:    make(map[uint64]*childRef),
		done:        make(chan struct{}),
	}
	stash := ctx.HeapStash()
	stash.DefaultPort = w.receivePort
	stash.Worker = w
	return w
}

// Spawn creates a child of w: a new worker with its own script context and
// receive port, whose parent_port is w's receive port (mirroring
// spawn_worker's get_thread_port(parent) call). object is the script-visible
// Worker wrapper the caller (package script) has already created; workerrt
// takes an initial GC root on it and registers a finalizer that removes the
// child from w's children set once the engine collects it.
func (w *Worker) Spawn(ctx engine.Context, name string, object engine.Value, onMessage OnMessage) *Worker {
	child := &Worker{
		id:          allocWorkerID(),
		name:        name,
		ctx:         ctx,
		object:      object,
		receivePort: port.NewPort(),
		parentPort:  w.receivePort,
		parent:      w,
		onMessage:   onMessage,
		children:    make(map[uint64]*childRef),
		done:        make(chan struct{}),
	}
	w.receivePort.Acquire()
	w.registerChild(child)

	childStash := ctx.HeapStash()
	childStash.DefaultPort = child.receivePort
	childStash.Worker = child

	return child
}

// registerChild records child in w.children, roots its wrapper object, and
// arranges for the registration to be dropped automatically once the
// engine's GC collects the wrapper (i.e. once nothing else in script
// references it and workerrt itself has released its defensive root, which
// only happens once the child has gone idle or disconnected — see
// collectChildren in runloop.go). The finalizer also releases the sending
// reference child's own receive port was created holding: port.NewPort
// starts every port at refcount 1, standing for the wrapper object's own
// ability to Send to it, and that reference is only ever given up here, once
// the wrapper itself becomes unreachable (finalise_worker in worker.c
// releases the child's receive port for the same reason). Without this,
// child.receivePort's refcount never reaches zero and the child's own
// cleanup deadlocks forever in WaitUntilReleased.
func (w *Worker) registerChild(child *Worker) {
	ref := &childRef{worker: child}
	ref.rootHandle = w.ctx.Root(child.object)

	w.mu.Lock()
	w.children[child.id] = ref
	w.mu.Unlock()

	w.ctx.SetFinalizer(child.object, func(engine.Value) {
		w.mu.Lock()
		delete(w.children, child.id)
		w.mu.Unlock()
		child.receivePort.Release()
	})
}

// ID returns the worker's process-unique identity.
func (w *Worker) ID() uint64 { return w.id }

// Name returns the human-readable label supplied at creation, used in log
// messages.
func (w *Worker) Name() string { return w.name }

// ReceivePort returns the port other workers' script bindings post to when
// targeting this worker (Worker.prototype.postMessage).
func (w *Worker) ReceivePort() *port.Port { return w.receivePort }

// ParentPort returns the port this worker's global postMessage posts to, or
// nil for the root.
func (w *Worker) ParentPort() *port.Port { return w.parentPort }

// Context returns the script engine context driving this worker. Only the
// goroutine running w.Run may call its methods.
func (w *Worker) Context() engine.Context { return w.ctx }

// Object returns the script-visible wrapper object for this worker, or nil
// for the root.
func (w *Worker) Object() engine.Value { return w.object }

// Closing reports whether this worker has been asked to terminate
// (get_closing in worker.c).
func (w *Worker) Closing() bool { return w.receivePort.Terminated() }

// Terminate requests cooperative shutdown: the next time the run loop
// checks, it will stop draining messages and begin cleanup. Idempotent.
func (w *Worker) Terminate() { w.receivePort.Terminate() }

// Done returns a channel closed once Run has returned and cleanup has
// completed.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Run pins the calling goroutine to its OS thread (the script engine is not
// safe to migrate between threads mid-execution, per SPEC_FULL.md §5),
// drives the message loop to completion, and then tears the worker down.
// It returns once the worker is fully quiescent or terminated.
func (w *Worker) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	jww.DEBUG.Printf("[WORKERRT] worker %q (%d) starting run loop", w.name, w.id)
	w.runMessageLoop()
	jww.DEBUG.Printf("[WORKERRT] worker %q (%d) run loop exited, cleaning up", w.name, w.id)
	w.cleanup()
}

func (w *Worker) runMessageLoop() {
	for {
		msg, ok := w.popBlocking()
		if !ok {
			return
		}
		jww.DEBUG.Printf("[WORKERRT] worker %q (%d) delivering: %s",
			w.name, w.id, truncatedPayload(msg.Payload))
		if w.onMessage == nil {
			continue
		}
		if err := w.onMessage(w.ctx, w, msg); err != nil {
			jww.ERROR.Printf("[WORKERRT] worker %q (%d) onMessage error: %+v",
				w.name, w.id, err)
		}
	}
}

// cleanup mirrors cleanup_worker: mark the receive port disconnected so
// late sends are dropped rather than queued forever, wake the parent so its
// quiescence collector observes the disconnect and can release the wrapper
// object's reference, wait for every outstanding sending reference (the
// parent's wrapper object, this worker's own children treating us as their
// parent_port) to be released, then release our own sending reference on
// our parent's port and close the script context. The root has no wrapper
// object, so it gives up its port's initial reference itself.
func (w *Worker) cleanup() {
	w.receivePort.Disconnect()
	if w.parentPort != nil {
		w.parentPort.Lock()
		w.parentPort.CondBroadcast()
		w.parentPort.Unlock()
	} else {
		w.receivePort.Release()
	}
	w.receivePort.WaitUntilReleased()
	if w.parentPort != nil {
		w.parentPort.Release()
	}
	w.ctx.Close()
}

// Send posts msg to this worker's receive port (the Worker.postMessage
// script binding's target). It returns an error if the port has already
// terminated or disconnected, matching spec §7(c)'s send-on-dead-port case.
func (w *Worker) Send(msg *port.Message) error {
	if !w.receivePort.Send(msg) {
		jww.DEBUG.Printf("[WORKERRT] dropped send to %q (%d), port closed: %s",
			w.name, w.id, truncatedPayload(msg.Payload))
		return errors.Errorf("worker %q (%d) is no longer accepting messages", w.name, w.id)
	}
	return nil
}

// PostGlobal posts msg to this worker's parent port, as the global
// postMessage binding does from inside a worker (post_message_global in
// worker.c). The root worker has no parent and PostGlobal is a no-op that
// reports the drop, matching the root's postMessage having nowhere to send.
func (w *Worker) PostGlobal(msg *port.Message) error {
	if w.parentPort == nil {
		return errors.New("root worker has no parent to post to")
	}
	if !w.parentPort.Send(msg) {
		jww.DEBUG.Printf("[WORKERRT] dropped post-to-parent from %q (%d), port closed: %s",
			w.name, w.id, truncatedPayload(msg.Payload))
		return errors.New("parent is no longer accepting messages")
	}
	return nil
}
