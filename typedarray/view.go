// Package typedarray implements a raw-buffer typed-array/DataView layer,
// grounded on original_source/typedarray.c. Byte-order packing of
// fixed-width numeric values onto a []byte is delegated to encoding/binary
// (see DESIGN.md for why no pack library is a better fit for this narrower
// job than the stdlib).
//
// Bounds checks use the corrected formula spec.md §9 calls for —
// (idx+1)*elemSize <= len(buffer) — rather than the off-by-one
// idx+1 < length check present in one branch of the original C source.
package typedarray

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ByteOrder selects the endianness used by View's Get/Set methods, matching
// DataView's constructor argument.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (o ByteOrder) impl() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// View wraps a raw byte buffer (the ArrayBuffer equivalent) and exposes
// typed, bounds-checked accessors over a byte-offset window into it — the
// window lets a typed array be constructed over a slice of a larger shared
// buffer, matching ArrayBuffer/TypedArray's (buffer, byteOffset, length)
// constructor shape.
type View struct {
	buf        []byte
	byteOffset int
	byteLength int
	order      ByteOrder
}

// NewView creates a View over buf[byteOffset : byteOffset+byteLength].
func NewView(buf []byte, byteOffset, byteLength int, order ByteOrder) (*View, error) {
	if byteOffset < 0 || byteLength < 0 || byteOffset+byteLength > len(buf) {
		return nil, errors.Errorf("view [%d:%d+%d] out of range of a %d-byte buffer",
			byteOffset, byteOffset, byteLength, len(buf))
	}
	return &View{buf: buf, byteOffset: byteOffset, byteLength: byteLength, order: order}, nil
}

// Len returns the view's byte length.
func (v *View) Len() int { return v.byteLength }

// checkBounds applies the corrected bounds-check formula: the (idx+1)-th
// element of size elemSize must fit entirely within the view.
func (v *View) checkBounds(idx, elemSize int) error {
	if idx < 0 {
		return errors.Errorf("negative index %d", idx)
	}
	if (idx+1)*elemSize > v.byteLength {
		return errors.Errorf("index %d out of range for a %d-byte view with %d-byte elements",
			idx, v.byteLength, elemSize)
	}
	return nil
}

func (v *View) at(idx, elemSize int) int { return v.byteOffset + idx*elemSize }

func (v *View) GetUint8(idx int) (uint8, error) {
	if err := v.checkBounds(idx, 1); err != nil {
		return 0, err
	}
	return v.buf[v.at(idx, 1)], nil
}

func (v *View) SetUint8(idx int, val uint8) error {
	if err := v.checkBounds(idx, 1); err != nil {
		return err
	}
	v.buf[v.at(idx, 1)] = val
	return nil
}

func (v *View) GetInt8(idx int) (int8, error) {
	u, err := v.GetUint8(idx)
	return int8(u), err
}

func (v *View) SetInt8(idx int, val int8) error {
	return v.SetUint8(idx, uint8(val))
}

func (v *View) GetUint16(idx int) (uint16, error) {
	if err := v.checkBounds(idx, 2); err != nil {
		return 0, err
	}
	off := v.at(idx, 2)
	return v.order.impl().Uint16(v.buf[off : off+2]), nil
}

func (v *View) SetUint16(idx int, val uint16) error {
	if err := v.checkBounds(idx, 2); err != nil {
		return err
	}
	off := v.at(idx, 2)
	v.order.impl().PutUint16(v.buf[off:off+2], val)
	return nil
}

func (v *View) GetInt16(idx int) (int16, error) {
	u, err := v.GetUint16(idx)
	return int16(u), err
}

func (v *View) SetInt16(idx int, val int16) error {
	return v.SetUint16(idx, uint16(val))
}

func (v *View) GetUint32(idx int) (uint32, error) {
	if err := v.checkBounds(idx, 4); err != nil {
		return 0, err
	}
	off := v.at(idx, 4)
	return v.order.impl().Uint32(v.buf[off : off+4]), nil
}

func (v *View) SetUint32(idx int, val uint32) error {
	if err := v.checkBounds(idx, 4); err != nil {
		return err
	}
	off := v.at(idx, 4)
	v.order.impl().PutUint32(v.buf[off:off+4], val)
	return nil
}

func (v *View) GetInt32(idx int) (int32, error) {
	u, err := v.GetUint32(idx)
	return int32(u), err
}

func (v *View) SetInt32(idx int, val int32) error {
	return v.SetUint32(idx, uint32(val))
}

func (v *View) GetFloat64(idx int) (float64, error) {
	if err := v.checkBounds(idx, 8); err != nil {
		return 0, err
	}
	off := v.at(idx, 8)
	bits := v.order.impl().Uint64(v.buf[off : off+8])
	return math.Float64frombits(bits), nil
}

func (v *View) SetFloat64(idx int, val float64) error {
	if err := v.checkBounds(idx, 8); err != nil {
		return err
	}
	off := v.at(idx, 8)
	v.order.impl().PutUint64(v.buf[off:off+8], math.Float64bits(val))
	return nil
}
