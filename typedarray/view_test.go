package typedarray

import "testing"

func TestUint8RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	v, err := NewView(buf, 0, 4, LittleEndian)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := v.SetUint8(2, 0xAB); err != nil {
		t.Fatalf("SetUint8: %v", err)
	}
	got, err := v.GetUint8(2)
	if err != nil {
		t.Fatalf("GetUint8: %v", err)
	}
	if got != 0xAB {
		t.Errorf("got %x, want %x", got, 0xAB)
	}
}

func TestUint32LittleEndian(t *testing.T) {
	buf := make([]byte, 8)
	v, _ := NewView(buf, 0, 8, LittleEndian)
	if err := v.SetUint32(1, 0x01020304); err != nil {
		t.Fatalf("SetUint32: %v", err)
	}
	if buf[4] != 0x04 || buf[5] != 0x03 || buf[6] != 0x02 || buf[7] != 0x01 {
		t.Errorf("unexpected byte layout: %x", buf[4:8])
	}
	got, err := v.GetUint32(1)
	if err != nil || got != 0x01020304 {
		t.Errorf("GetUint32 = %x, %v", got, err)
	}
}

// TestLastElementInBoundsIsAccessible exercises exactly the case the
// original's off-by-one bug rejected: the last valid element of a fully
// packed buffer (idx+1)*elemSize == byteLength must be accessible, not
// reported out of range.
func TestLastElementInBoundsIsAccessible(t *testing.T) {
	buf := make([]byte, 8) // holds exactly 4 uint16 elements, indices 0..3
	v, _ := NewView(buf, 0, 8, LittleEndian)
	if err := v.SetUint16(3, 0xBEEF); err != nil {
		t.Fatalf("expected index 3 to be in bounds, got error: %v", err)
	}
	got, err := v.GetUint16(3)
	if err != nil || got != 0xBEEF {
		t.Errorf("GetUint16(3) = %x, %v", got, err)
	}
}

func TestOutOfBoundsIndexErrors(t *testing.T) {
	buf := make([]byte, 8)
	v, _ := NewView(buf, 0, 8, LittleEndian)
	if _, err := v.GetUint16(4); err == nil {
		t.Errorf("expected out-of-range error for index 4 on a 4-element view")
	}
	if _, err := v.GetUint8(-1); err == nil {
		t.Errorf("expected error for negative index")
	}
}

func TestViewOverWindowOfLargerBuffer(t *testing.T) {
	buf := make([]byte, 16)
	v, err := NewView(buf, 8, 4, LittleEndian)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := v.SetUint32(0, 42); err != nil {
		t.Fatalf("SetUint32: %v", err)
	}
	if buf[8] != 42 {
		t.Errorf("write did not land at the windowed offset")
	}
	if _, err := v.GetUint32(1); err == nil {
		t.Errorf("expected out-of-range error past the 4-byte window")
	}
}

func TestNewViewRejectsOutOfRangeWindow(t *testing.T) {
	buf := make([]byte, 4)
	if _, err := NewView(buf, 2, 4, LittleEndian); err == nil {
		t.Errorf("expected an error constructing a view past the end of the buffer")
	}
}
