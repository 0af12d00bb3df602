package rootfile

import (
	"context"
	"fmt"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/registry"
	"github.com/rs/zerolog/log"
)

// directoryPadding is reserved after small directory records so seeks can
// grow to 64 bits in place.
const directoryPadding = 12

// Directory is a TDirectory record.
type Directory struct {
	Version    int16
	Created    Datime
	Modified   Datime
	NbytesKeys int32
	NbytesName int32
	SeekDir    int64
	SeekParent int64
	SeekKeys   int64
	UUID       UUID
	HasUUID    bool
}

// Large reports whether the record uses 64-bit seek fields.
func (d *Directory) Large() bool {
	return d.Version > largeVersion
}

// ReadDirectory decodes a TDirectory record.
func ReadDirectory(c cursor.Cursor) (*Directory, cursor.Cursor, error) {
	d := &Directory{}
	c, err := c.Unpack(cursor.Big, &d.Version, (*uint32)(&d.Created), (*uint32)(&d.Modified), &d.NbytesKeys, &d.NbytesName)
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	if d.Large() {
		c, err = c.Unpack(cursor.Big, &d.SeekDir, &d.SeekParent, &d.SeekKeys)
	} else {
		var dir, parent, keys int32
		c, err = c.Unpack(cursor.Big, &dir, &parent, &keys)
		d.SeekDir, d.SeekParent, d.SeekKeys = int64(dir), int64(parent), int64(keys)
	}
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	if d.Version%largeVersion > 1 {
		if d.UUID, c, err = ReadUUID(c); err != nil {
			return nil, cursor.Cursor{}, err
		}
		d.HasUUID = true
	}
	if !d.Large() {
		if c, err = c.Skip(directoryPadding); err != nil {
			return nil, cursor.Cursor{}, err
		}
	}
	return d, c, nil
}

// Keys fetches and decodes the directory's key list. The key framing the
// list must point back at this directory.
func (d *Directory) Keys(ctx context.Context, r Reader) (*KeyList, error) {
	switch {
	case d.SeekKeys <= 0:
		return nil, protocol.Mismatch("directory.keys", d.SeekDir, protocol.ErrMalformedHeader, "positive fSeekKeys", d.SeekKeys)
	case d.NbytesKeys < 0:
		return nil, protocol.Mismatch("directory.keys", d.SeekDir, protocol.ErrMalformedHeader, "non-negative fNbytesKeys", d.NbytesKeys)
	case d.NbytesName < 0:
		return nil, protocol.Mismatch("directory.keys", d.SeekDir, protocol.ErrMalformedHeader, "non-negative fNbytesName", d.NbytesName)
	}
	size := uint64(d.NbytesName) + uint64(d.NbytesKeys)
	c, err := cursor.Load(ctx, r.Fetch, uint64(d.SeekKeys), size)
	if err != nil {
		return nil, err
	}
	block := c.Bytes()
	key, _, err := ReadKey(c)
	if err != nil {
		return nil, err
	}
	if key.SeekKey != d.SeekKeys {
		return nil, &protocol.DecodeError{
			Op: "directory.keys", Path: key.Name, Offset: d.SeekKeys,
			Expected: fmt.Sprintf("fSeekKey == fSeekKeys (%d)", d.SeekKeys), Found: key.SeekKey, Err: protocol.ErrConsistency,
		}
	}
	if key.SeekPdir != d.SeekDir {
		return nil, &protocol.DecodeError{
			Op: "directory.keys", Path: key.Name, Offset: d.SeekKeys,
			Expected: fmt.Sprintf("fSeekPdir == fSeekDir (%d)", d.SeekDir), Found: key.SeekPdir, Err: protocol.ErrConsistency,
		}
	}
	obj, err := key.ReadObject(ctx, r.WithFetcher(cursor.Window(block, uint64(d.SeekKeys))), &keyListType)
	if err != nil {
		return nil, err
	}
	list := obj.Value.(*KeyList)
	list.Padding = obj.Padding
	log.Debug().Int64("seek_keys", d.SeekKeys).Int("keys", list.Len()).Msg("key list read")
	return list, nil
}

// KeyList is the set of keys visible in a directory.
type KeyList struct {
	Keys []*Key
	// Padding holds trailing bytes after the last key. Their meaning is
	// unknown; files written with short keys have been seen to carry them.
	Padding []byte
}

var keyListType = registry.Type{
	Name:    "TKeyList",
	Trailer: registry.TrailerPadding,
	Decode: func(_ *registry.Registry, c cursor.Cursor) (any, cursor.Cursor, error) {
		return ReadKeyList(c)
	},
}

func ReadKeyList(c cursor.Cursor) (*KeyList, cursor.Cursor, error) {
	n, c, err := c.I32(cursor.Big)
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	if n < 0 {
		return nil, cursor.Cursor{}, protocol.Mismatch("keylist", c.Offset(), protocol.ErrMalformedHeader, "nKeys >= 0", n)
	}
	l := &KeyList{Keys: make([]*Key, 0, min(int(n), c.Len()))}
	for i := int32(0); i < n; i++ {
		var k *Key
		if k, c, err = ReadKey(c); err != nil {
			return nil, cursor.Cursor{}, fmt.Errorf("key %d: %w", i, err)
		}
		l.Keys = append(l.Keys, k)
	}
	return l, c, nil
}

func (l *KeyList) Len() int {
	return len(l.Keys)
}

// Lookup returns the key named name with the highest cycle.
func (l *KeyList) Lookup(name string) (*Key, error) {
	var best *Key
	for _, k := range l.Keys {
		if k.Name == name && (best == nil || k.Cycle > best.Cycle) {
			best = k
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, name)
	}
	return best, nil
}

// Get returns the key with the given name and cycle.
func (l *KeyList) Get(name string, cycle int16) (*Key, error) {
	for _, k := range l.Keys {
		if k.Name == name && k.Cycle == cycle {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%w: %q;%d", ErrKeyNotFound, name, cycle)
}

// Names lists distinct key names in file order.
func (l *KeyList) Names() []string {
	seen := make(map[string]struct{}, len(l.Keys))
	names := make([]string, 0, len(l.Keys))
	for _, k := range l.Keys {
		if _, ok := seen[k.Name]; ok {
			continue
		}
		seen[k.Name] = struct{}{}
		names = append(names, k.Name)
	}
	return names
}
