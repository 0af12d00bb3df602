// Package locator decodes references to byte ranges of the backing medium.
//
// A standard locator is a non-negative int32 size followed by a u64 offset.
// Any other locator starts with a negative int32 h, where -h packs the
// locator's own size (bits 0-15), a reserved byte (bits 16-23) and the type
// (bits 24-31). Only the large type (64-bit size and offset) is defined.
package locator

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
)

// Type tags a locator layout.
type Type uint8

const (
	TypeStandard Type = 0x00
	TypeLarge    Type = 0x01
)

const (
	standardLen = 12
	largeLen    = 4 + 16
)

func (t Type) String() string {
	switch t {
	case TypeStandard:
		return "standard"
	case TypeLarge:
		return "large"
	default:
		return fmt.Sprintf("type(%#02x)", uint8(t))
	}
}

// Locator is a byte range on the backing medium.
type Locator struct {
	Type     Type
	Size     uint64
	Offset   uint64
	Reserved uint8
}

func Standard(size uint32, offset uint64) Locator {
	return Locator{Type: TypeStandard, Size: uint64(size), Offset: offset}
}

func Large(size, offset uint64) Locator {
	return Locator{Type: TypeLarge, Size: size, Offset: offset}
}

func (l Locator) String() string {
	return fmt.Sprintf("%s(size=%d, offset=%d)", l.Type, l.Size, l.Offset)
}

// Read decodes a locator.
func Read(c cursor.Cursor) (Locator, cursor.Cursor, error) {
	start := c.Offset()
	head, c, err := c.I32(cursor.Little)
	if err != nil {
		return Locator{}, cursor.Cursor{}, err
	}
	if head >= 0 {
		offset, c, err := c.U64(cursor.Little)
		if err != nil {
			return Locator{}, cursor.Cursor{}, err
		}
		return Locator{Type: TypeStandard, Size: uint64(head), Offset: offset}, c, nil
	}

	packed := uint32(-int64(head))
	selfLen := int(packed & 0xFFFF)
	reserved := uint8(packed >> 16)
	typ := Type(packed >> 24)
	if typ != TypeLarge {
		return Locator{}, cursor.Cursor{}, protocol.Mismatch("locator", start, protocol.ErrUnknownLocatorType, TypeLarge, typ)
	}
	if selfLen < largeLen {
		return Locator{}, cursor.Cursor{}, protocol.Mismatch("locator", start, protocol.ErrMalformedHeader,
			fmt.Sprintf("locator size >= %d", largeLen), selfLen)
	}
	payload, c, err := c.ConsumeView(selfLen - 4)
	if err != nil {
		return Locator{}, cursor.Cursor{}, err
	}
	body := cursor.FromBytes(payload)
	var l Locator
	if _, err := body.Unpack(cursor.Little, &l.Size, &l.Offset); err != nil {
		return Locator{}, cursor.Cursor{}, err
	}
	l.Type = TypeLarge
	l.Reserved = reserved
	return l, c, nil
}

// Append encodes l after b. Standard locators hold sizes below 2^31.
func (l Locator) Append(b []byte) []byte {
	if l.Type == TypeStandard {
		b = binary.LittleEndian.AppendUint32(b, uint32(l.Size))
		return binary.LittleEndian.AppendUint64(b, l.Offset)
	}
	packed := uint32(l.Type)<<24 | uint32(l.Reserved)<<16 | largeLen
	b = binary.LittleEndian.AppendUint32(b, uint32(-int32(packed)))
	b = binary.LittleEndian.AppendUint64(b, l.Size)
	return binary.LittleEndian.AppendUint64(b, l.Offset)
}

// Load fetches the referenced bytes.
func (l Locator) Load(ctx context.Context, f cursor.Fetcher) (cursor.Cursor, error) {
	return cursor.Load(ctx, f, l.Offset, l.Size)
}
