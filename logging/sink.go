package logging

import (
	"encoding/json"
	"fmt"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/pkg/errors"

	"github.com/jsrun-go/jsrun/engine"
	"github.com/jsrun-go/jsrun/port"
	"github.com/jsrun-go/jsrun/workerrt"
)

// Record is one structured log entry posted to a WorkerSink.
type Record struct {
	Level   string `json:"level"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// WorkerSink is a workerrt.Worker whose only job is to receive log Records
// from any other worker in the tree and write them to jww plus its own
// RingWriter. It is grounded on the teacher's logging/worker.go
// (LogFileWorker): there, a dedicated goroutine owns a capped log file and
// every caller posts lines to it over a channel rather than writing
// concurrently; here that same shape is realised directly on top of
// workerrt's own port/worker plumbing instead of a bespoke channel, so a
// sink is addressable exactly like any other worker (it has a Port other
// workers Send to, and its own run loop dispatches one Record at a time).
// It runs against engine.NewFakeContext() rather than a real script engine,
// since a log sink has no script to evaluate; it exists purely to drain its
// receive port.
type WorkerSink struct {
	worker *workerrt.Worker
	ring   *RingWriter
}

// NewWorkerSink spawns a log sink as a child of parent, named name, with its
// own capacity-byte RingWriter retaining the most recent output. Callers
// obtain the sink's Port() to post Records to it from any goroutine,
// including from other workers' onMessage callbacks.
func NewWorkerSink(parent *workerrt.Worker, name string, capacity int64) (*WorkerSink, error) {
	ring, err := NewRingWriter(capacity)
	if err != nil {
		return nil, errors.Wrap(err, "creating log sink ring buffer")
	}
	sink := &WorkerSink{ring: ring}
	ctx := engine.NewFakeContext()
	sink.worker = parent.Spawn(ctx, name, ctx.NewObject(), sink.onMessage)
	return sink, nil
}

// Port returns the port other workers post Records to (via Log).
func (s *WorkerSink) Port() *port.Port { return s.worker.ReceivePort() }

// RingWriter exposes the sink's bounded in-memory log, e.g. for a console
// global to read back recent output.
func (s *WorkerSink) RingWriter() *RingWriter { return s.ring }

// Run drives the sink's dispatch loop; like any workerrt.Worker, it must run
// on its own goroutine until Terminate is called.
func (s *WorkerSink) Run() { s.worker.Run() }

// Terminate requests the sink stop accepting new Records and exit.
func (s *WorkerSink) Terminate() { s.worker.Terminate() }

// Done reports when the sink's run loop has fully exited.
func (s *WorkerSink) Done() <-chan struct{} { return s.worker.Done() }

func (s *WorkerSink) onMessage(_ engine.Context, _ *workerrt.Worker, msg *port.Message) error {
	var rec Record
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		return errors.Wrap(err, "decoding log record")
	}
	line := fmt.Sprintf("[%s] %s: %s", rec.Level, rec.Source, TruncatePayload([]byte(rec.Message)))
	if _, err := s.ring.Write([]byte(line + "\n")); err != nil {
		jww.ERROR.Printf("[LOGGING] writing to ring buffer: %+v", err)
	}
	threshold(rec.Level).Print(line)
	return nil
}

// Log posts a Record to a sink's Port from any goroutine. Sends to a sink
// that has already terminated are dropped silently, matching every other
// port.Send-on-dead-port case in this runtime.
func Log(sinkPort *port.Port, level, source, message string) error {
	payload, err := json.Marshal(Record{Level: level, Source: source, Message: message})
	if err != nil {
		return errors.Wrap(err, "encoding log record")
	}
	if !sinkPort.Send(port.NewMessage(payload, nil)) {
		return nil
	}
	return nil
}

func threshold(level string) *jww.Notepad {
	switch level {
	case "trace":
		return jww.TRACE
	case "debug":
		return jww.DEBUG
	case "warn":
		return jww.WARN
	case "error":
		return jww.ERROR
	case "critical":
		return jww.CRITICAL
	case "fatal":
		return jww.FATAL
	default:
		return jww.INFO
	}
}
