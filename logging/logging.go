// Package logging configures structured logging for the runtime, grounded
// on the teacher's logging/logger.go: jwalterweatherman thresholds, a
// circbuf-backed in-memory ring for recent log lines, and truncate-on-log
// for long message payloads so a DEBUG trace of a large postMessage
// payload doesn't flood the log.
package logging

import (
	"fmt"

	"github.com/aquilax/truncate"
	jww "github.com/spf13/jwalterweatherman"
)

// payloadLogWidth matches the teacher's worker/messageManager.go, which
// truncates logged message contents to 64 characters.
const payloadLogWidth = 64

// Init sets the jwalterweatherman output threshold for both the stdout and
// log-file writers, mirroring the teacher's jww.SetLogThreshold /
// SetStdoutThreshold pairing.
func Init(threshold jww.Threshold) {
	jww.SetLogThreshold(threshold)
	jww.SetStdoutThreshold(threshold)
}

// TruncatePayload renders a message payload for a log line, truncating it
// to payloadLogWidth characters in the middle so both the start and end of
// a long JSON payload remain visible — the exact convention
// worker/messageManager.go uses for its own debug logs.
func TruncatePayload(payload []byte) string {
	return truncate.Truncate(string(payload), payloadLogWidth, "...", truncate.PositionMiddle)
}

// LogError is a small wrapper so call sites don't need to import jww
// directly just to report an error with a stack trace, matching the
// teacher's "%+v" formatting convention for pkg/errors values.
func LogError(context string, err error) {
	jww.ERROR.Printf("[WORKERRT] %s: %+v", context, err)
}

// LogFatal reports an unrecoverable startup error and matches the
// teacher's jww.FATAL.Panicf convention (jww.FATAL writers include a
// process-terminating hook by default).
func LogFatal(context string, err error) {
	jww.FATAL.Panicf("[WORKERRT] %s: %+v", context, err)
}

// String renders an arbitrary value for structured log fields without a
// dependency cycle back into the engine package.
func String(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
