package rootfile

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/rootio/internal/observability"
	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/compression"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/registry"
	"github.com/rs/zerolog/log"
)

// largeVersion is the version threshold above which seek fields are 64-bit.
const largeVersion = 1000

// Reader bundles the capabilities an object resolution needs. A Reader is
// read-only and can be shared between goroutines as long as its Fetcher is.
type Reader struct {
	Fetch    cursor.Fetcher
	Registry *registry.Registry
	Codecs   compression.Codecs
}

// NewReader returns a Reader with the built-in registry and default codecs.
func NewReader(f cursor.Fetcher) Reader {
	return Reader{Fetch: f, Registry: Builtins(), Codecs: compression.DefaultCodecs()}
}

// WithFetcher returns r reading through f instead.
func (r Reader) WithFetcher(f cursor.Fetcher) Reader {
	r.Fetch = f
	return r
}

// Key is the self-describing header in front of every top-level object.
type Key struct {
	Nbytes    int32
	Version   int16
	Objlen    int32
	Datime    Datime
	Keylen    int16
	Cycle     int16
	SeekKey   int64
	SeekPdir  int64
	ClassName string
	Name      string
	Title     string
}

// ReadKey decodes a key header and checks it spans exactly Keylen bytes.
func ReadKey(c cursor.Cursor) (*Key, cursor.Cursor, error) {
	start := c
	k := &Key{}
	var err error
	c, err = c.Unpack(cursor.Big, &k.Nbytes, &k.Version, &k.Objlen)
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	if k.Datime, c, err = ReadDatime(c); err != nil {
		return nil, cursor.Cursor{}, err
	}
	if c, err = c.Unpack(cursor.Big, &k.Keylen, &k.Cycle); err != nil {
		return nil, cursor.Cursor{}, err
	}
	if k.Large() {
		c, err = c.Unpack(cursor.Big, &k.SeekKey, &k.SeekPdir)
	} else {
		var seekKey, seekPdir int32
		c, err = c.Unpack(cursor.Big, &seekKey, &seekPdir)
		k.SeekKey, k.SeekPdir = int64(seekKey), int64(seekPdir)
	}
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	if k.ClassName, c, err = ReadTString(c); err != nil {
		return nil, cursor.Cursor{}, err
	}
	if k.Name, c, err = ReadTString(c); err != nil {
		return nil, cursor.Cursor{}, err
	}
	if k.Title, c, err = ReadTString(c); err != nil {
		return nil, cursor.Cursor{}, err
	}
	if consumed := c.RelPos() - start.RelPos(); consumed != int64(k.Keylen) {
		return nil, cursor.Cursor{}, &protocol.DecodeError{
			Op: "key", Path: k.Name, Offset: start.Offset(),
			Expected: k.Keylen, Found: consumed, Err: protocol.ErrLengthMismatch,
		}
	}
	return k, c, nil
}

// Large reports whether the key uses 64-bit seek fields.
func (k *Key) Large() bool {
	return k.Version > largeVersion
}

// IsCompressed reports whether the stored payload is smaller than the object.
func (k *Key) IsCompressed() bool {
	return int64(k.Nbytes) != int64(k.Objlen)+int64(k.Keylen)
}

// IsEmbedded reports whether the record holds no payload of its own.
func (k *Key) IsEmbedded() bool {
	return k.Nbytes <= int32(k.Keylen)
}

func (k *Key) String() string {
	return fmt.Sprintf("%s;%d (%s)", k.Name, k.Cycle, k.ClassName)
}

// Object is a fully resolved keyed object.
type Object struct {
	Key   *Key
	Class string
	Value any
	// Padding holds trailing bytes a type's trailer rule accepts.
	Padding     []byte
	Checksum    uint64
	HasChecksum bool
}

// ReadObject fetches, unwraps and decodes the object k frames. With a
// non-nil expected type it decodes with that type, otherwise it dispatches
// on the key's class name.
func (k *Key) ReadObject(ctx context.Context, r Reader, expected *registry.Type) (*Object, error) {
	obj, err := k.readObject(ctx, r, expected)
	if err != nil {
		observability.RecordDecodeFailure("read_object", protocol.KindOf(err))
		return nil, protocol.WithPath(err, k.Name)
	}
	return obj, nil
}

func (k *Key) readObject(ctx context.Context, r Reader, expected *registry.Type) (*Object, error) {
	// Addressed
	if k.Nbytes < int32(k.Keylen) || k.Keylen < 0 || k.Objlen < 0 {
		return nil, &protocol.DecodeError{
			Op: "key", Offset: k.SeekKey, Expected: fmt.Sprintf("fNbytes >= fKeylen (%d)", k.Keylen),
			Found: k.Nbytes, Err: protocol.ErrMalformedHeader,
		}
	}
	c, err := cursor.Load(ctx, r.Fetch, uint64(k.SeekKey)+uint64(k.Keylen), uint64(k.Nbytes-int32(k.Keylen)))
	if err != nil {
		return nil, err
	}

	// Framed / Unwrapped
	if c.Len() != int(k.Objlen) {
		data, err := compression.Decompress(c, uint64(k.Objlen), r.Codecs)
		if err != nil {
			return nil, err
		}
		c = cursor.New(data, protocol.NoOffset, int64(k.Keylen))
	} else {
		c = c.WithRelPos(int64(k.Keylen))
	}

	// Typed
	var t registry.Type
	if expected != nil {
		t = *expected
	} else if t, err = r.Registry.Lookup(k.ClassName); err != nil {
		return nil, err
	}
	value, rest, err := t.Decode(r.Registry, c)
	if err != nil {
		return nil, err
	}

	// Validated
	obj := &Object{Key: k, Class: t.Name, Value: value}
	if err := reconcileTrailer(obj, t.Trailer, rest); err != nil {
		return nil, err
	}
	log.Debug().
		Str("key", k.Name).
		Int16("cycle", k.Cycle).
		Str("class", t.Name).
		Bool("compressed", k.IsCompressed()).
		Msg("object resolved")
	return obj, nil
}

func reconcileTrailer(obj *Object, rule registry.Trailer, rest cursor.Cursor) error {
	switch rule {
	case registry.TrailerPadding:
		obj.Padding, _ = rest.Rest()
		return nil
	case registry.TrailerChecksum:
		if rest.Len() < 8 {
			return protocol.Mismatch("object.checksum", rest.Offset(), protocol.ErrLengthMismatch, ">= 8 trailing bytes", rest.Len())
		}
		pad, rest, err := rest.Consume(rest.Len() - 8)
		if err != nil {
			return err
		}
		if obj.Checksum, _, err = rest.U64(cursor.Big); err != nil {
			return err
		}
		obj.Padding = pad
		obj.HasChecksum = true
		return nil
	default:
		if !rest.Empty() {
			return protocol.Mismatch("object", rest.Offset(), protocol.ErrTrailingData, 0, rest.Len())
		}
		return nil
	}
}

// ErrKeyNotFound is returned when a name has no key in a key list.
var ErrKeyNotFound = errors.New("rootfile: key not found")
