// Package frame decodes the self-delimiting frames of the columnar format.
//
// Every frame opens with a signed little-endian 64-bit size whose sign is
// its kind: negative for a list frame (followed by a u32 item count),
// positive for a record frame. The absolute size covers the whole frame
// including that header. Bytes the reader does not understand are kept in
// Unknown, never dropped and never an error.
package frame

import (
	"fmt"
	"math"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
)

const (
	RecordHeaderLen = 8
	ListHeaderLen   = 12
)

// Reader decodes one T and returns the advanced cursor.
type Reader[T any] func(c cursor.Cursor) (T, cursor.Cursor, error)

// Fields decodes the type-specific part of a frame in place.
type Fields func(c cursor.Cursor) (cursor.Cursor, error)

// Record is the bookkeeping shared by every record frame.
type Record struct {
	Size    uint64
	Unknown []byte
}

// ListFrame is a count-prefixed homogeneous list.
type ListFrame[T any] struct {
	Size    uint64
	Items   []T
	Unknown []byte
}

func (l ListFrame[T]) Len() int {
	return len(l.Items)
}

// Kind reports whether the frame at c is a list (true) without consuming it.
func Kind(c cursor.Cursor) (list bool, err error) {
	size, _, err := c.I64(cursor.Little)
	if err != nil {
		return false, err
	}
	return size < 0, nil
}

// ReadRecord decodes a record frame whose fields are read by fields.
func ReadRecord(c cursor.Cursor, fields Fields) (Record, cursor.Cursor, error) {
	start := c
	raw, _, err := c.I64(cursor.Little)
	if err != nil {
		return Record{}, cursor.Cursor{}, err
	}
	if raw <= 0 {
		return Record{}, cursor.Cursor{}, protocol.Mismatch("frame.record", start.Offset(), protocol.ErrInvalidFrameKind, "fSize > 0", raw)
	}
	size := uint64(raw)
	if size < RecordHeaderLen {
		return Record{}, cursor.Cursor{}, protocol.Mismatch("frame.record", start.Offset(), protocol.ErrMalformedHeader,
			fmt.Sprintf("fSize >= %d", RecordHeaderLen), size)
	}
	body, rest, err := bound(start, size)
	if err != nil {
		return Record{}, cursor.Cursor{}, err
	}
	body, _ = body.Skip(RecordHeaderLen)
	if fields != nil {
		if body, err = fields(body); err != nil {
			return Record{}, cursor.Cursor{}, err
		}
	}
	unknown, _ := body.Rest()
	return Record{Size: size, Unknown: unknown}, rest, nil
}

// ReadList decodes a list frame of items read by item.
func ReadList[T any](c cursor.Cursor, item Reader[T]) (ListFrame[T], cursor.Cursor, error) {
	return ReadListTail(c, item, nil)
}

// ReadListTail is ReadList for list frames that append fixed fields after
// their items; tail reads them.
func ReadListTail[T any](c cursor.Cursor, item Reader[T], tail Fields) (ListFrame[T], cursor.Cursor, error) {
	start := c
	raw, _, err := c.I64(cursor.Little)
	if err != nil {
		return ListFrame[T]{}, cursor.Cursor{}, err
	}
	if raw >= 0 {
		return ListFrame[T]{}, cursor.Cursor{}, protocol.Mismatch("frame.list", start.Offset(), protocol.ErrInvalidFrameKind, "fSize < 0", raw)
	}
	if raw == math.MinInt64 {
		return ListFrame[T]{}, cursor.Cursor{}, protocol.Mismatch("frame.list", start.Offset(), protocol.ErrMalformedHeader, "representable fSize", raw)
	}
	size := uint64(-raw)
	if size < ListHeaderLen {
		return ListFrame[T]{}, cursor.Cursor{}, protocol.Mismatch("frame.list", start.Offset(), protocol.ErrMalformedHeader,
			fmt.Sprintf("fSize >= %d", ListHeaderLen), size)
	}
	body, rest, err := bound(start, size)
	if err != nil {
		return ListFrame[T]{}, cursor.Cursor{}, err
	}
	body, _ = body.Skip(RecordHeaderLen)
	n, body, err := body.U32(cursor.Little)
	if err != nil {
		return ListFrame[T]{}, cursor.Cursor{}, err
	}
	if uint64(n) > size-ListHeaderLen {
		// every item takes at least one byte
		return ListFrame[T]{}, cursor.Cursor{}, protocol.Mismatch("frame.list", start.Offset(), protocol.ErrLengthMismatch,
			fmt.Sprintf("nItems <= %d", size-ListHeaderLen), n)
	}
	items := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		var v T
		if v, body, err = item(body); err != nil {
			return ListFrame[T]{}, cursor.Cursor{}, fmt.Errorf("list item %d: %w", i, err)
		}
		items = append(items, v)
	}
	if tail != nil {
		if body, err = tail(body); err != nil {
			return ListFrame[T]{}, cursor.Cursor{}, err
		}
	}
	unknown, _ := body.Rest()
	return ListFrame[T]{Size: size, Items: items, Unknown: unknown}, rest, nil
}

// bound splits start into the frame body of the given size and what
// follows it.
func bound(start cursor.Cursor, size uint64) (cursor.Cursor, cursor.Cursor, error) {
	if size > uint64(start.Len()) {
		return cursor.Cursor{}, cursor.Cursor{}, protocol.Mismatch("frame", start.Offset(), protocol.ErrOutOfRange,
			fmt.Sprintf("fSize <= %d", start.Len()), size)
	}
	body, err := start.Slice(0, int(size))
	if err != nil {
		return cursor.Cursor{}, cursor.Cursor{}, err
	}
	rest, err := start.Skip(int(size))
	if err != nil {
		return cursor.Cursor{}, cursor.Cursor{}, err
	}
	return body, rest, nil
}
