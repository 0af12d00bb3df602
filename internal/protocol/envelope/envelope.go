// Package envelope decodes the outermost blocks of the columnar format.
//
// An envelope opens with a little-endian u64 whose low 16 bits are the type
// ID and whose high 48 bits are the total envelope length, and closes with
// an 8-byte checksum. Payload bytes the reader does not understand are kept
// in Unknown.
package envelope

import (
	"context"
	"fmt"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/frame"
	"github.com/danmuck/rootio/internal/protocol/locator"
	"github.com/rs/zerolog/log"
)

// Envelope type IDs.
const (
	TypeReserved uint16 = 0x00
	TypeHeader   uint16 = 0x01
	TypeFooter   uint16 = 0x02
	TypePageList uint16 = 0x03
)

const (
	PreambleLen = 8
	ChecksumLen = 8
	// MinLen is the length of an envelope with an empty payload.
	MinLen = PreambleLen + ChecksumLen
)

// Kind binds a payload type to its declared type ID.
type Kind[P any] struct {
	TypeID uint16
	Name   string
	Read   frame.Reader[P]
}

// Envelope is one decoded envelope.
type Envelope[P any] struct {
	TypeID   uint16
	Length   uint64
	Payload  P
	Unknown  []byte
	Checksum uint64
}

// Read decodes an envelope that spans exactly the bytes of c.
func Read[P any](c cursor.Cursor, kind Kind[P]) (Envelope[P], cursor.Cursor, error) {
	start := c.Offset()
	op := "envelope." + kind.Name
	lt, c, err := c.U64(cursor.Little)
	if err != nil {
		return Envelope[P]{}, cursor.Cursor{}, err
	}
	env := Envelope[P]{TypeID: uint16(lt & 0xFFFF), Length: lt >> 16}
	if env.Length < MinLen {
		return Envelope[P]{}, cursor.Cursor{}, protocol.Mismatch(op, start, protocol.ErrMalformedHeader,
			fmt.Sprintf("length >= %d", MinLen), env.Length)
	}
	if env.Length-PreambleLen != uint64(c.Len()) {
		return Envelope[P]{}, cursor.Cursor{}, protocol.Mismatch(op, start, protocol.ErrLengthMismatch, env.Length-PreambleLen, c.Len())
	}
	if env.TypeID != kind.TypeID {
		return Envelope[P]{}, cursor.Cursor{}, protocol.Mismatch(op, start, protocol.ErrEnvelopeTypeMismatch, kind.TypeID, env.TypeID)
	}

	body, err := c.Slice(0, int(env.Length-MinLen))
	if err != nil {
		return Envelope[P]{}, cursor.Cursor{}, err
	}
	if env.Payload, body, err = kind.Read(body); err != nil {
		return Envelope[P]{}, cursor.Cursor{}, fmt.Errorf("%s payload: %w", op, err)
	}
	env.Unknown, _ = body.Rest()

	c, err = c.Skip(int(env.Length - MinLen))
	if err != nil {
		return Envelope[P]{}, cursor.Cursor{}, err
	}
	if env.Checksum, c, err = c.U64(cursor.Little); err != nil {
		return Envelope[P]{}, cursor.Cursor{}, err
	}
	log.Debug().
		Str("envelope", kind.Name).
		Uint64("length", env.Length).
		Int("unknown", len(env.Unknown)).
		Uint64("checksum", env.Checksum).
		Msg("envelope decoded")
	return env, c, nil
}

// Link addresses an envelope indirectly: Length is its uncompressed length,
// Locator where its (possibly compressed) bytes live.
type Link struct {
	Length  uint64
	Locator locator.Locator
}

// ReadLink decodes an envelope link.
func ReadLink(c cursor.Cursor) (Link, cursor.Cursor, error) {
	var l Link
	var err error
	if l.Length, c, err = c.U64(cursor.Little); err != nil {
		return Link{}, cursor.Cursor{}, err
	}
	if l.Locator, c, err = locator.Read(c); err != nil {
		return Link{}, cursor.Cursor{}, err
	}
	return l, c, nil
}

// Compressed reports whether the stored bytes differ in size from the
// envelope they hold.
func (l Link) Compressed() bool {
	return l.Locator.Size != l.Length
}

// Resolve fetches and decodes the envelope a link points at.
func Resolve[P any](ctx context.Context, f cursor.Fetcher, link Link, kind Kind[P]) (Envelope[P], error) {
	if link.Compressed() {
		return Envelope[P]{}, protocol.NotImplemented(protocol.FeatureCompressedEnvelope,
			fmt.Sprintf("%s stored in %d bytes, length %d", kind.Name, link.Locator.Size, link.Length))
	}
	c, err := link.Locator.Load(ctx, f)
	if err != nil {
		return Envelope[P]{}, err
	}
	env, rest, err := Read(c, kind)
	if err != nil {
		return Envelope[P]{}, err
	}
	if !rest.Empty() {
		return Envelope[P]{}, protocol.Mismatch("envelope."+kind.Name, rest.Offset(), protocol.ErrTrailingData, 0, rest.Len())
	}
	return env, nil
}

// ReadFeatureFlags reads the 64-bit feature flag word that opens header
// and footer payloads.
func ReadFeatureFlags(c cursor.Cursor) (uint64, cursor.Cursor, error) {
	return c.U64(cursor.Little)
}

// CheckFeatureFlags fails for any flag this reader does not implement,
// which today is every flag.
func CheckFeatureFlags(flags uint64) error {
	if flags != 0 {
		return protocol.NotImplemented(protocol.FeatureFlags, fmt.Sprintf("%#x", flags))
	}
	return nil
}
