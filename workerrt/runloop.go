package workerrt

import "github.com/jsrun-go/jsrun/port"

// popBlocking is the Go translation of get_message in worker.c: it returns
// the next message for this worker, blocking as necessary, and returns
// (nil, false) once the worker is terminated, once its queue is empty and no
// sending reference to its port remains, or — for the root only — once the
// whole tree below it has gone quiescent and will never produce another
// message.
//
// Lock ordering: whenever both a parent's and a child's receive port must be
// locked together, the parent's lock is acquired first. Here, that means
// releasing the child's (this worker's) lock before acquiring the parent's,
// then reacquiring the child's lock — never the reverse.
func (w *Worker) popBlocking() (*port.Message, bool) {
	rp := w.receivePort

	if rp.Terminated() {
		return nil, false
	}

	rp.Lock()
	for rp.EmptyLocked() {
		if rp.RefcountLocked() > 0 {
			if w.parent != nil {
				rp.Unlock()
				w.parent.receivePort.Lock()
				rp.Lock()

				collected := w.collectChildren()
				waiting := collected || rp.RefcountLocked() == 1

				if rp.EmptyLocked() && waiting {
					rp.SetWaiting(true)
					w.parent.receivePort.CondBroadcast()
				}
				w.parent.receivePort.Unlock()
			} else if w.collectChildren() {
				// Root, and the whole tree is idle: nothing will ever wake
				// us again, so stop draining rather than blocking forever.
				rp.Unlock()
				return nil, false
			}
		}

		if rp.Terminated() {
			rp.Unlock()
			return nil, false
		}
		if !rp.EmptyLocked() {
			break
		}
		if rp.RefcountLocked() == 0 {
			// No sender is left, so nothing can ever be enqueued again.
			rp.Unlock()
			return nil, false
		}
		rp.CondWait()
	}

	if rp.Terminated() {
		rp.Unlock()
		return nil, false
	}
	msg, ok := rp.PopFrontLocked()
	rp.Unlock()
	return msg, ok
}

// collectChildren is the Go translation of try_to_collect_workers: it
// examines w's direct children (not the whole subtree — each worker only
// ever inspects the children it itself spawned) and, for every child whose
// receive port is waiting or disconnected, demotes workerrt's defensive GC
// root on that child's wrapper object before running the engine's garbage
// collector twice (the original's rationale carries over: a single pass may
// only break one link in a cycle spanning two collectible objects). Any
// child that survives collection — meaning script code still holds a live
// reference to it — is re-rooted afterward so workerrt's own bookkeeping
// keeps working for it. It returns true only if every child was found idle
// or disconnected.
func (w *Worker) collectChildren() bool {
	w.mu.Lock()
	snapshot := make([]*childRef, 0, len(w.children))
	for _, c := range w.children {
		snapshot = append(snapshot, c)
	}
	allIdle := true
	for _, c := range snapshot {
		if c.worker.receivePort.Waiting() || c.worker.receivePort.Disconnected() {
			if c.rootHandle != nil {
				w.ctx.Unroot(c.rootHandle)
				c.rootHandle = nil
			}
		} else {
			allIdle = false
		}
	}
	w.mu.Unlock()

	w.ctx.CollectGarbage()
	w.ctx.CollectGarbage()

	w.mu.Lock()
	for _, c := range snapshot {
		if _, stillLive := w.children[c.worker.id]; !stillLive {
			continue // collected during GC; its finalizer already ran
		}
		if c.rootHandle == nil {
			c.rootHandle = w.ctx.Root(c.worker.object)
		}
	}
	w.mu.Unlock()

	return allIdle
}
