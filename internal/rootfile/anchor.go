package rootfile

import (
	"fmt"

	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/registry"
)

// AnchorClass is the class name RNTuple anchors are stored under.
const AnchorClass = "ROOT::RNTuple"

// Anchor locates the header and footer envelopes of an RNTuple. The object
// is followed on disk by padding and an 8-byte checksum, which ReadObject
// captures through the checksum trailer rule.
type Anchor struct {
	Header       StreamHeader
	VersionEpoch uint16
	VersionMajor uint16
	VersionMinor uint16
	VersionPatch uint16
	SeekHeader   uint64
	NBytesHeader uint64
	LenHeader    uint64
	SeekFooter   uint64
	NBytesFooter uint64
	LenFooter    uint64
	MaxKeySize   uint64
}

func ReadAnchor(c cursor.Cursor) (*Anchor, cursor.Cursor, error) {
	a := &Anchor{}
	var err error
	if a.Header, c, err = ReadStreamHeader(c); err != nil {
		return nil, cursor.Cursor{}, err
	}
	c, err = c.Unpack(cursor.Big,
		&a.VersionEpoch, &a.VersionMajor, &a.VersionMinor, &a.VersionPatch,
		&a.SeekHeader, &a.NBytesHeader, &a.LenHeader,
		&a.SeekFooter, &a.NBytesFooter, &a.LenFooter,
		&a.MaxKeySize,
	)
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	return a, c, nil
}

func (a *Anchor) Version() string {
	return fmt.Sprintf("%d.%d.%d.%d", a.VersionEpoch, a.VersionMajor, a.VersionMinor, a.VersionPatch)
}

// AnchorType is the registry entry for RNTuple anchors.
var AnchorType = registry.Type{
	Name:    AnchorClass,
	Trailer: registry.TrailerChecksum,
	Decode: func(_ *registry.Registry, c cursor.Cursor) (any, cursor.Cursor, error) {
		return ReadAnchor(c)
	},
}
