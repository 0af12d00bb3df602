package rootfile

import (
	"fmt"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/registry"
)

// MemberKind is the wire format of one descriptor member.
type MemberKind int

const (
	MemberInt8 MemberKind = iota
	MemberInt16
	MemberInt32
	MemberInt64
	MemberUint8
	MemberUint16
	MemberUint32
	MemberUint64
	MemberFloat32
	MemberFloat64
	MemberBool
	MemberString
	// MemberTObject is the TObject base, which has no byte count.
	MemberTObject
	// MemberObject is an embedded object of a registered class.
	MemberObject
	// MemberPointer is an object pointer, class resolved from the stream.
	MemberPointer
)

var memberKindNames = map[MemberKind]string{
	MemberInt8:    "int8",
	MemberInt16:   "int16",
	MemberInt32:   "int32",
	MemberInt64:   "int64",
	MemberUint8:   "uint8",
	MemberUint16:  "uint16",
	MemberUint32:  "uint32",
	MemberUint64:  "uint64",
	MemberFloat32: "float32",
	MemberFloat64: "float64",
	MemberBool:    "bool",
	MemberString:  "TString",
	MemberTObject: "TObject",
	MemberObject:  "object",
	MemberPointer: "pointer",
}

func (k MemberKind) String() string {
	if s, ok := memberKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("MemberKind(%d)", int(k))
}

// Member is one field of a described class.
type Member struct {
	Name string
	Kind MemberKind
	// Class names the registered class of a MemberObject.
	Class string
}

// Descriptor describes a streamed class as data, so classes discovered at
// runtime can be decoded without generated code.
type Descriptor struct {
	Class   string
	Members []Member
}

// Record is an object decoded through a Descriptor.
type Record struct {
	Class   string
	Version int16
	Values  map[string]any
	Order   []string
}

// Get returns the value of member name.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Type compiles d into a registry entry. The class is read as a versioned,
// byte-counted object.
func (d Descriptor) Type() registry.Type {
	return registry.Type{
		Name: d.Class,
		Decode: func(reg *registry.Registry, c cursor.Cursor) (any, cursor.Cursor, error) {
			return d.read(reg, c)
		},
	}
}

// Register returns a copy of reg that also decodes the described classes.
func Register(reg *registry.Registry, descriptors ...Descriptor) (*registry.Registry, error) {
	return reg.Extend(func(b *registry.Builder) error {
		for _, d := range descriptors {
			if err := d.validate(); err != nil {
				return err
			}
			if err := b.Register(d.Type()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d Descriptor) validate() error {
	seen := make(map[string]struct{}, len(d.Members))
	for _, m := range d.Members {
		if _, ok := memberKindNames[m.Kind]; !ok {
			return fmt.Errorf("descriptor %s: member %s: unknown kind %d", d.Class, m.Name, int(m.Kind))
		}
		if m.Kind == MemberObject && m.Class == "" {
			return fmt.Errorf("descriptor %s: member %s: object member without class", d.Class, m.Name)
		}
		if _, ok := seen[m.Name]; ok {
			return fmt.Errorf("descriptor %s: duplicate member %s", d.Class, m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}

func (d Descriptor) read(reg *registry.Registry, c cursor.Cursor) (*Record, cursor.Cursor, error) {
	rec := &Record{Class: d.Class, Values: make(map[string]any, len(d.Members))}
	h, c, err := ReadVersioned(d.Class, c, func(_ StreamHeader, c cursor.Cursor) (cursor.Cursor, error) {
		for _, m := range d.Members {
			var v any
			var err error
			if v, c, err = readMember(reg, m, c); err != nil {
				return cursor.Cursor{}, fmt.Errorf("%s.%s: %w", d.Class, m.Name, err)
			}
			rec.Values[m.Name] = v
			rec.Order = append(rec.Order, m.Name)
		}
		return c, nil
	})
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	rec.Version = h.Version
	return rec, c, nil
}

func readMember(reg *registry.Registry, m Member, c cursor.Cursor) (any, cursor.Cursor, error) {
	switch m.Kind {
	case MemberInt8:
		return unpackOne[int8](c)
	case MemberInt16:
		return unpackOne[int16](c)
	case MemberInt32:
		return unpackOne[int32](c)
	case MemberInt64:
		return unpackOne[int64](c)
	case MemberUint8:
		return unpackOne[uint8](c)
	case MemberUint16:
		return unpackOne[uint16](c)
	case MemberUint32:
		return unpackOne[uint32](c)
	case MemberUint64:
		return unpackOne[uint64](c)
	case MemberFloat32:
		return unpackOne[float32](c)
	case MemberFloat64:
		return unpackOne[float64](c)
	case MemberBool:
		return unpackOne[bool](c)
	case MemberString:
		return ReadTString(c)
	case MemberTObject:
		return ReadTObject(c)
	case MemberObject:
		return reg.Decode(m.Class, c)
	case MemberPointer:
		return ReadObjectAny(reg, c)
	default:
		return nil, cursor.Cursor{}, protocol.Mismatch("member", c.Offset(), protocol.ErrUnknownType, "member kind", m.Kind)
	}
}

func unpackOne[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64 | bool](c cursor.Cursor) (any, cursor.Cursor, error) {
	var v T
	c, err := c.Unpack(cursor.Big, &v)
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	return v, c, nil
}
