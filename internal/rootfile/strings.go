package rootfile

import (
	"fmt"
	"time"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/google/uuid"
)

// ReadTString reads a u8 length (or 255 then a BE int32 length) and the
// raw bytes that follow.
func ReadTString(c cursor.Cursor) (string, cursor.Cursor, error) {
	start := c.Offset()
	n8, c, err := c.U8()
	if err != nil {
		return "", cursor.Cursor{}, err
	}
	n := int64(n8)
	if n8 == 255 {
		var n32 int32
		if n32, c, err = c.I32(cursor.Big); err != nil {
			return "", cursor.Cursor{}, err
		}
		if n32 < 0 {
			return "", cursor.Cursor{}, protocol.Mismatch("tstring", start, protocol.ErrMalformedHeader, "length >= 0", n32)
		}
		n = int64(n32)
	}
	if n > int64(c.Len()) {
		return "", cursor.Cursor{}, protocol.Mismatch("tstring", start, protocol.ErrOutOfRange, fmt.Sprintf("length <= %d", c.Len()), n)
	}
	b, c, err := c.ConsumeView(int(n))
	if err != nil {
		return "", cursor.Cursor{}, err
	}
	return string(b), c, nil
}

// readCString reads a NUL-terminated string, as used by class tags.
func readCString(c cursor.Cursor) (string, cursor.Cursor, error) {
	data := c.Bytes()
	for i, b := range data {
		if b == 0 {
			s := string(data[:i])
			c, err := c.Skip(i + 1)
			return s, c, err
		}
	}
	return "", cursor.Cursor{}, protocol.Mismatch("cstring", c.Offset(), protocol.ErrOutOfRange, "NUL terminator", "end of buffer")
}

// Datime is the packed date/time ROOT stores in keys and directories.
type Datime uint32

func ReadDatime(c cursor.Cursor) (Datime, cursor.Cursor, error) {
	v, c, err := c.U32(cursor.Big)
	return Datime(v), c, err
}

func (d Datime) Year() int   { return int(d>>26) + 1995 }
func (d Datime) Month() int  { return int(d>>22) & 0xF }
func (d Datime) Day() int    { return int(d>>17) & 0x1F }
func (d Datime) Hour() int   { return int(d>>12) & 0x1F }
func (d Datime) Minute() int { return int(d>>6) & 0x3F }
func (d Datime) Second() int { return int(d) & 0x3F }

// Time interprets d as UTC.
func (d Datime) Time() time.Time {
	return time.Date(d.Year(), time.Month(d.Month()), d.Day(), d.Hour(), d.Minute(), d.Second(), 0, time.UTC)
}

func (d Datime) String() string {
	return d.Time().Format(time.DateTime)
}

// NewDatime packs t, which must be in 1995..2058.
func NewDatime(t time.Time) Datime {
	return Datime(uint32(t.Year()-1995)<<26 | uint32(t.Month())<<22 | uint32(t.Day())<<17 |
		uint32(t.Hour())<<12 | uint32(t.Minute())<<6 | uint32(t.Second()))
}

// UUID is a versioned 16-byte identifier.
type UUID struct {
	Version uint16
	ID      uuid.UUID
}

func ReadUUID(c cursor.Cursor) (UUID, cursor.Cursor, error) {
	var u UUID
	var err error
	if u.Version, c, err = c.U16(cursor.Big); err != nil {
		return UUID{}, cursor.Cursor{}, err
	}
	raw, c, err := c.ConsumeView(16)
	if err != nil {
		return UUID{}, cursor.Cursor{}, err
	}
	if u.ID, err = uuid.FromBytes(raw); err != nil {
		return UUID{}, cursor.Cursor{}, err
	}
	return u, c, nil
}
