// Package rootfixture builds byte-exact synthetic ROOT structures for tests.
package rootfixture

import (
	"encoding/binary"
	"math"
)

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Writer appends scalars in one byte order.
type Writer struct {
	buf   []byte
	order byteOrder
}

func BE() *Writer { return &Writer{order: binary.BigEndian} }
func LE() *Writer { return &Writer{order: binary.LittleEndian} }

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) U16(v uint16) *Writer {
	w.buf = w.order.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.buf = w.order.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) U64(v uint64) *Writer {
	w.buf = w.order.AppendUint64(w.buf, v)
	return w
}

func (w *Writer) I16(v int16) *Writer { return w.U16(uint16(v)) }
func (w *Writer) I32(v int32) *Writer { return w.U32(uint32(v)) }
func (w *Writer) I64(v int64) *Writer { return w.U64(uint64(v)) }

func (w *Writer) F64(v float64) *Writer { return w.U64(math.Float64bits(v)) }

func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) Zeros(n int) *Writer {
	w.buf = append(w.buf, make([]byte, n)...)
	return w
}

// TString writes the legacy short/long length-prefixed string.
func (w *Writer) TString(s string) *Writer {
	if len(s) < 255 {
		w.U8(uint8(len(s)))
	} else {
		w.U8(255)
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(s)))
	}
	return w.Raw([]byte(s))
}

// RString writes the columnar u32 little-endian length-prefixed string.
func (w *Writer) RString(s string) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	return w.Raw([]byte(s))
}

// PutU32At overwrites 4 bytes at off, for back-patching lengths.
func (w *Writer) PutU32At(off int, v uint32) {
	w.order.PutUint32(w.buf[off:off+4], v)
}

// PutU64At overwrites 8 bytes at off.
func (w *Writer) PutU64At(off int, v uint64) {
	w.order.PutUint64(w.buf[off:off+8], v)
}
