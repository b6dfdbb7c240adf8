package logging

import "testing"

func TestTruncatePayloadShortPassesThrough(t *testing.T) {
	got := TruncatePayload([]byte(`"short"`))
	if got != `"short"` {
		t.Errorf("got %q, want unchanged short payload", got)
	}
}

func TestTruncatePayloadLongIsShortened(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	got := TruncatePayload(long)
	if len(got) >= len(long) {
		t.Errorf("expected truncation, got length %d from input length %d", len(got), len(long))
	}
	if got[:1] != "a" {
		t.Errorf("expected truncated output to retain the start of the payload")
	}
}

func TestRingWriterDropsOldestBytes(t *testing.T) {
	w, err := NewRingWriter(4)
	if err != nil {
		t.Fatalf("NewRingWriter: %v", err)
	}
	if _, err := w.Write([]byte("abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := string(w.Bytes()); got != "cdef" {
		t.Errorf("got %q, want the last 4 bytes \"cdef\"", got)
	}
}
