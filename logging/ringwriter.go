package logging

import (
	"github.com/armon/circbuf"
	"github.com/pkg/errors"
)

// RingWriter is a bounded io.Writer that keeps only the most recent
// capacity bytes written to it, backed by armon/circbuf exactly as the
// teacher's Logger.LogToFile uses a circbuf.Buffer for its in-memory log
// file. It is the buffer behind logging.WorkerSink and is not exposed to
// scripts (see SPEC_FULL.md §10.1): unlike the teacher's LogFileWorker, it never touches
// disk, since a worker here is an in-process OS thread, not a separate
// browser context with its own persistence story.
type RingWriter struct {
	buf *circbuf.Buffer
}

// NewRingWriter creates a RingWriter that retains at most capacity bytes.
func NewRingWriter(capacity int64) (*RingWriter, error) {
	b, err := circbuf.NewBuffer(capacity)
	if err != nil {
		return nil, errors.Wrap(err, "creating ring buffer")
	}
	return &RingWriter{buf: b}, nil
}

// Write appends p, discarding the oldest bytes once capacity is exceeded.
func (w *RingWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// Bytes returns a copy of the currently retained contents.
func (w *RingWriter) Bytes() []byte {
	return w.buf.Bytes()
}

// Size returns the number of bytes currently retained.
func (w *RingWriter) Size() int64 {
	return w.buf.Size()
}
