// Package cursor provides the immutable byte view every decoder reads from.
//
// A Cursor is a value: reads never move it in place, they return the decoded
// value together with a new Cursor. Peeking is a read whose returned cursor
// is discarded.
package cursor

import (
	"fmt"

	"github.com/danmuck/rootio/internal/protocol"
)

// Cursor is a view over the unread remainder of a byte range.
type Cursor struct {
	data []byte
	abs  int64
	rel  int64
	refs *Refs
}

// New returns a cursor over data. abs is the absolute file offset of data[0],
// or protocol.NoOffset when the bytes have no file position (decompressed
// payloads). rel is the position relative to the enclosing framed record.
func New(data []byte, abs, rel int64) Cursor {
	return Cursor{data: data, abs: abs, rel: rel, refs: NewRefs()}
}

// FromBytes returns a cursor at relative position zero with no file offset.
func FromBytes(data []byte) Cursor {
	return New(data, protocol.NoOffset, 0)
}

// Len is the number of unread bytes.
func (c Cursor) Len() int {
	return len(c.data)
}

// Empty reports whether every byte has been consumed.
func (c Cursor) Empty() bool {
	return len(c.data) == 0
}

// Bytes returns a borrowed view of the unread bytes.
func (c Cursor) Bytes() []byte {
	return c.data
}

// AbsPos returns the absolute file offset of the next byte, if known.
func (c Cursor) AbsPos() (int64, bool) {
	return c.abs, c.abs >= 0
}

// Offset is AbsPos collapsed to protocol.NoOffset, for error reporting.
func (c Cursor) Offset() int64 {
	return c.abs
}

// RelPos is the position relative to the start of the enclosing record.
func (c Cursor) RelPos() int64 {
	return c.rel
}

// Refs returns the local-reference table shared by this decode tree.
func (c Cursor) Refs() *Refs {
	return c.refs
}

// WithRelPos returns c with its relative position replaced.
func (c Cursor) WithRelPos(rel int64) Cursor {
	c.rel = rel
	return c
}

// Slice narrows c to [start, end). start past the end fails; end is clamped.
func (c Cursor) Slice(start, end int) (Cursor, error) {
	if start < 0 || start > len(c.data) {
		return Cursor{}, protocol.Mismatch("cursor.slice", c.abs, protocol.ErrOutOfRange, fmt.Sprintf("start <= %d", len(c.data)), start)
	}
	if end > len(c.data) {
		end = len(c.data)
	}
	if end < start {
		end = start
	}
	return c.advance(start, end), nil
}

// Consume returns an owned copy of the next n bytes.
func (c Cursor) Consume(n int) ([]byte, Cursor, error) {
	view, next, err := c.ConsumeView(n)
	if err != nil {
		return nil, Cursor{}, err
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, next, nil
}

// ConsumeView returns a borrowed view of the next n bytes.
func (c Cursor) ConsumeView(n int) ([]byte, Cursor, error) {
	if n < 0 || n > len(c.data) {
		return nil, Cursor{}, protocol.Mismatch("cursor.consume", c.abs, protocol.ErrOutOfRange, fmt.Sprintf("0 <= n <= %d", len(c.data)), n)
	}
	return c.data[:n], c.advance(n, len(c.data)), nil
}

// Skip drops the next n bytes.
func (c Cursor) Skip(n int) (Cursor, error) {
	_, next, err := c.ConsumeView(n)
	return next, err
}

// Rest consumes everything that is left as an owned copy.
func (c Cursor) Rest() ([]byte, Cursor) {
	out, next, _ := c.Consume(len(c.data))
	return out, next
}

func (c Cursor) advance(start, end int) Cursor {
	next := Cursor{data: c.data[start:end], abs: protocol.NoOffset, rel: c.rel + int64(start), refs: c.refs}
	if c.abs >= 0 {
		next.abs = c.abs + int64(start)
	}
	return next
}
