package cursor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/rootio/internal/protocol"
)

// Big and Little are the two byte orders of the format: the legacy key layer
// is big-endian, the columnar envelope layer is little-endian.
var (
	Big    binary.ByteOrder = binary.BigEndian
	Little binary.ByteOrder = binary.LittleEndian
)

func (c Cursor) U8() (uint8, Cursor, error) {
	b, next, err := c.ConsumeView(1)
	if err != nil {
		return 0, Cursor{}, err
	}
	return b[0], next, nil
}

func (c Cursor) U16(order binary.ByteOrder) (uint16, Cursor, error) {
	b, next, err := c.ConsumeView(2)
	if err != nil {
		return 0, Cursor{}, err
	}
	return order.Uint16(b), next, nil
}

func (c Cursor) U32(order binary.ByteOrder) (uint32, Cursor, error) {
	b, next, err := c.ConsumeView(4)
	if err != nil {
		return 0, Cursor{}, err
	}
	return order.Uint32(b), next, nil
}

func (c Cursor) U64(order binary.ByteOrder) (uint64, Cursor, error) {
	b, next, err := c.ConsumeView(8)
	if err != nil {
		return 0, Cursor{}, err
	}
	return order.Uint64(b), next, nil
}

func (c Cursor) I16(order binary.ByteOrder) (int16, Cursor, error) {
	v, next, err := c.U16(order)
	return int16(v), next, err
}

func (c Cursor) I32(order binary.ByteOrder) (int32, Cursor, error) {
	v, next, err := c.U32(order)
	return int32(v), next, err
}

func (c Cursor) I64(order binary.ByteOrder) (int64, Cursor, error) {
	v, next, err := c.U64(order)
	return int64(v), next, err
}

// U24LE reads the 3-byte little-endian sizes of compression block headers.
func (c Cursor) U24LE() (uint32, Cursor, error) {
	b, next, err := c.ConsumeView(3)
	if err != nil {
		return 0, Cursor{}, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, next, nil
}

// Unpack reads fixed-size scalars in order into the pointed-to values.
// Supported targets are pointers to sized integers, floats and bool.
func (c Cursor) Unpack(order binary.ByteOrder, dst ...any) (Cursor, error) {
	var err error
	for _, d := range dst {
		switch p := d.(type) {
		case *uint8:
			*p, c, err = c.U8()
		case *int8:
			var v uint8
			v, c, err = c.U8()
			*p = int8(v)
		case *bool:
			var v uint8
			v, c, err = c.U8()
			*p = v != 0
		case *uint16:
			*p, c, err = c.U16(order)
		case *int16:
			*p, c, err = c.I16(order)
		case *uint32:
			*p, c, err = c.U32(order)
		case *int32:
			*p, c, err = c.I32(order)
		case *uint64:
			*p, c, err = c.U64(order)
		case *int64:
			*p, c, err = c.I64(order)
		case *float32:
			var v uint32
			v, c, err = c.U32(order)
			*p = math.Float32frombits(v)
		case *float64:
			var v uint64
			v, c, err = c.U64(order)
			*p = math.Float64frombits(v)
		default:
			return Cursor{}, fmt.Errorf("cursor: unpack: unsupported target %T", d)
		}
		if err != nil {
			return Cursor{}, err
		}
	}
	return c, nil
}

// Expect fails with a located mismatch when got differs from want.
func (c Cursor) Expect(op string, kind error, want, got any) error {
	if want == got {
		return nil
	}
	return protocol.Mismatch(op, c.abs, kind, want, got)
}
