// Package port implements the message envelope and the mutex/condvar mailbox
// that workers use to exchange messages, per the port/message data model:
// a singly-linked FIFO of immutable envelopes, refcounted on the sending
// side, with sticky waiting/disconnected/terminated flags a parent may read
// without acquiring the owning port's lock.
package port

// Receiver identifies the script-side object a Message is addressed to. A
// nil Receiver means the message targets the receiving context's global
// onmessage handler; messages a parent posts down through a Worker wrapper's
// postMessage carry nil. Messages a worker posts up through its global
// postMessage carry that worker's own wrapper object (which lives in the
// parent's context), so the parent dispatches them to that wrapper's
// onmessage.
type Receiver interface{}

// Message is an immutable envelope carrying a JSON-serialized payload to a
// Receiver. Once constructed a Message is never mutated except for the next
// link, which only the owning Port may set while the message sits in its
// queue.
type Message struct {
	// Payload is the JSON-encoded contents of the message. The runtime never
	// interprets these bytes itself; they are handed to the script engine's
	// JSON decoder on delivery.
	Payload []byte

	// Receiver is the target object, or nil for the global scope.
	Receiver Receiver

	next *Message
}

// NewMessage constructs a Message. payload must already be valid JSON text;
// callers (the script bindings in package script) are responsible for
// encoding it.
func NewMessage(payload []byte, receiver Receiver) *Message {
	return &Message{Payload: payload, Receiver: receiver}
}
