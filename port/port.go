package port

import (
	"sync"
	"sync/atomic"
)

// Port is a FIFO mailbox shared between a worker and whichever goroutines
// hold a sending reference to it (its own owner, and any worker that has
// acquired it as a parent_port). It mirrors struct port in worker.c: a
// singly-linked message chain guarded by a mutex/condvar pair, a sending
// refcount, and three sticky atomic flags a parent may read without
// acquiring the child's lock (waiting, disconnected, terminated).
//
// Lock ordering: whenever a goroutine must hold two ports' locks at once, it
// acquires the parent's lock before the child's, never the reverse (see
// workerrt's quiescence collector).
type Port struct {
	mu   sync.Mutex
	cond sync.Cond

	head, tail *Message
	refcount   int

	waiting      atomic.Bool
	disconnected atomic.Bool
	terminated   atomic.Bool
}

// NewPort creates a Port with a sending refcount of 1, owned by the caller.
func NewPort() *Port {
	p := &Port{refcount: 1}
	p.cond.L = &p.mu
	return p
}

// Lock and Unlock expose the port's mutex directly so that callers needing a
// strict parent-then-child lock order (workerrt's quiescence collector and
// blocking receive) can interleave locking across ports explicitly.
func (p *Port) Lock()   { p.mu.Lock() }
func (p *Port) Unlock() { p.mu.Unlock() }

// CondWait blocks the calling goroutine on the port's condition variable.
// The caller must hold the port's lock; CondWait releases it for the
// duration of the wait and reacquires it before returning, matching
// pthread_cond_wait's contract.
func (p *Port) CondWait() { p.cond.Wait() }

// CondBroadcast wakes every goroutine blocked in CondWait. The caller must
// hold the port's lock.
func (p *Port) CondBroadcast() { p.cond.Broadcast() }

// EmptyLocked reports whether the message queue is empty. The caller must
// hold the port's lock.
func (p *Port) EmptyLocked() bool { return p.head == nil }

// PopFrontLocked removes and returns the message at the head of the queue,
// or (nil, false) if the queue is empty. The caller must hold the port's
// lock. The popped message's next link is cleared, mirroring free_message's
// assertion that a freed message never retains a next pointer.
func (p *Port) PopFrontLocked() (*Message, bool) {
	m := p.head
	if m == nil {
		return nil, false
	}
	p.head = m.next
	if p.head == nil {
		p.tail = nil
	}
	m.next = nil
	return m, true
}

// Send appends msg to the tail of the queue and wakes a blocked receiver if
// the queue transitioned from empty to non-empty. It returns false without
// enqueuing if the port is terminated or disconnected (send_message in
// worker.c: a message posted to a dead port is silently dropped, not an
// error — the caller observes this via the bool return rather than a
// panic/error value, since dropping is the documented, non-exceptional
// behaviour for an already-closing worker).
func (p *Port) Send(msg *Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated.Load() || p.disconnected.Load() {
		return false
	}
	wasEmpty := p.head == nil
	p.waiting.Store(false)
	if p.tail == nil {
		p.head = msg
	} else {
		p.tail.next = msg
	}
	p.tail = msg
	if wasEmpty {
		p.cond.Broadcast()
	}
	return true
}

// Acquire increments the sending refcount, e.g. when a newly spawned worker
// records its parent_port as a second sender.
func (p *Port) Acquire() {
	p.mu.Lock()
	p.refcount++
	p.mu.Unlock()
}

// Release decrements the sending refcount and wakes anyone waiting on the
// refcount reaching zero (cleanup_worker's wait in worker.c). It always
// succeeds; there is no failure mode to report.
func (p *Port) Release() {
	p.mu.Lock()
	p.refcount--
	p.cond.Broadcast()
	p.mu.Unlock()
}

// RefcountLocked returns the current sending refcount. The caller must hold
// the port's lock.
func (p *Port) RefcountLocked() int { return p.refcount }

// WaitUntilReleased blocks until the sending refcount reaches zero. Used by
// cleanup_worker's equivalent in workerrt once a worker's receive port has
// been marked disconnected.
func (p *Port) WaitUntilReleased() {
	p.mu.Lock()
	for p.refcount != 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

func (p *Port) Waiting() bool          { return p.waiting.Load() }
func (p *Port) SetWaiting(v bool)      { p.waiting.Store(v) }
func (p *Port) Disconnected() bool     { return p.disconnected.Load() }
func (p *Port) SetDisconnected(v bool) { p.disconnected.Store(v) }
func (p *Port) Terminated() bool       { return p.terminated.Load() }

// Terminate marks the port terminated. Idempotent, matching terminate_method
// in worker.c, which checks the flag first and no-ops if already set.
func (p *Port) Terminate() {
	p.mu.Lock()
	p.terminated.Store(true)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Disconnect marks the port disconnected and wakes anyone blocked on it.
// Called once a worker's run loop has exited for good (cleanup_worker).
func (p *Port) Disconnect() {
	p.mu.Lock()
	p.disconnected.Store(true)
	p.cond.Broadcast()
	p.mu.Unlock()
}
