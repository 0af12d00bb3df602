package rootfile

import (
	"fmt"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/registry"
)

const (
	kByteCountMask = 0x40000000
	kClassMask     = 0x80000000
	kNewClassTag   = 0xFFFFFFFF
	kMapOffset     = 2

	// kIsReferenced marks a TObject followed by a process-id index.
	kIsReferenced = 1 << 4
)

// HeaderKind says what a streamed-object header introduced.
type HeaderKind int

const (
	// HeaderVersion is a byte count followed by a class version.
	HeaderVersion HeaderKind = iota
	// HeaderNewClass is a byte count and a class name seen for the first time.
	HeaderNewClass
	// HeaderClassRef is a byte count and a reference to an earlier class name.
	HeaderClassRef
	// HeaderObjectRef refers to an object that was already read; no byte count.
	HeaderObjectRef
	// HeaderNull is a null object pointer.
	HeaderNull
)

// StreamHeader is the byte-count header in front of streamed objects.
type StreamHeader struct {
	Kind      HeaderKind
	ByteCount uint32
	Version   int16
	Class     string
	Ref       uint32
}

// ReadStreamHeader decodes a header. Class names introduced by new-class
// tags are recorded in the cursor's reference table.
func ReadStreamHeader(c cursor.Cursor) (StreamHeader, cursor.Cursor, error) {
	start := c
	count, c, err := c.U32(cursor.Big)
	if err != nil {
		return StreamHeader{}, cursor.Cursor{}, err
	}
	if count&kByteCountMask == 0 {
		if count == 0 {
			return StreamHeader{Kind: HeaderNull}, c, nil
		}
		return StreamHeader{Kind: HeaderObjectRef, Ref: count}, c, nil
	}

	h := StreamHeader{ByteCount: count &^ kByteCountMask}
	hi, c, err := c.U16(cursor.Big)
	if err != nil {
		return StreamHeader{}, cursor.Cursor{}, err
	}
	if hi&0x8000 == 0 {
		h.Kind = HeaderVersion
		h.Version = int16(hi)
		return h, c, nil
	}
	lo, c, err := c.U16(cursor.Big)
	if err != nil {
		return StreamHeader{}, cursor.Cursor{}, err
	}

	tagPos := start.RelPos() + 4
	classInfo := uint32(hi)<<16 | uint32(lo)
	if classInfo == kNewClassTag {
		name, next, err := readCString(c)
		if err != nil {
			return StreamHeader{}, cursor.Cursor{}, err
		}
		c.Refs().Put(tagPos, name)
		h.Kind = HeaderNewClass
		h.Class = name
		return h, next, nil
	}
	ref := int64(classInfo&^kClassMask) - kMapOffset
	name, ok := c.Refs().Get(ref)
	if !ok {
		return StreamHeader{}, cursor.Cursor{}, &protocol.DecodeError{
			Op: "stream_header", Offset: start.Offset(),
			Expected: "known class reference", Found: ref, Err: protocol.ErrConsistency,
		}
	}
	h.Kind = HeaderClassRef
	h.Class = name
	h.Ref = classInfo
	return h, c, nil
}

func (k HeaderKind) String() string {
	switch k {
	case HeaderVersion:
		return "version"
	case HeaderNewClass:
		return "new_class"
	case HeaderClassRef:
		return "class_ref"
	case HeaderObjectRef:
		return "object_ref"
	case HeaderNull:
		return "null"
	default:
		return fmt.Sprintf("HeaderKind(%d)", int(k))
	}
}

// checkByteCount verifies that a streamed object starting at start and ending
// at end spans exactly its declared byte count.
func checkByteCount(op string, start, end cursor.Cursor, h StreamHeader) error {
	consumed := end.RelPos() - start.RelPos()
	want := int64(h.ByteCount) + 4
	if consumed != want {
		return protocol.Mismatch(op, start.Offset(), protocol.ErrLengthMismatch, want, consumed)
	}
	return nil
}

// ReadVersioned reads a byte-counted, versioned object whose members are
// read by members, and checks the byte count.
func ReadVersioned(op string, c cursor.Cursor, members func(h StreamHeader, c cursor.Cursor) (cursor.Cursor, error)) (StreamHeader, cursor.Cursor, error) {
	start := c
	h, c, err := ReadStreamHeader(c)
	if err != nil {
		return StreamHeader{}, cursor.Cursor{}, err
	}
	if h.Kind != HeaderVersion {
		return StreamHeader{}, cursor.Cursor{}, protocol.Mismatch(op, start.Offset(), protocol.ErrMalformedHeader, "versioned header", h.Kind)
	}
	if c, err = members(h, c); err != nil {
		return StreamHeader{}, cursor.Cursor{}, err
	}
	if err := checkByteCount(op, start, c, h); err != nil {
		return StreamHeader{}, cursor.Cursor{}, err
	}
	return h, c, nil
}

// ObjectRef is an object pointer to something already read in this buffer.
type ObjectRef struct {
	Tag uint32
}

// ReadObjectAny reads an object pointer: a header naming the class followed
// by the object, dispatched through reg. Null pointers decode to nil.
func ReadObjectAny(reg *registry.Registry, c cursor.Cursor) (any, cursor.Cursor, error) {
	start := c
	h, c, err := ReadStreamHeader(c)
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	switch h.Kind {
	case HeaderNull:
		return nil, c, nil
	case HeaderObjectRef:
		return ObjectRef{Tag: h.Ref}, c, nil
	case HeaderVersion:
		return nil, cursor.Cursor{}, protocol.Mismatch("object_any", start.Offset(), protocol.ErrMalformedHeader, "class tag", "version header")
	}
	v, c, err := reg.Decode(h.Class, c)
	if err != nil {
		return nil, cursor.Cursor{}, fmt.Errorf("%s: %w", h.Class, err)
	}
	if err := checkByteCount("object_any", start, c, h); err != nil {
		return nil, cursor.Cursor{}, err
	}
	return v, c, nil
}

// TObject is the common base of streamed ROOT classes.
type TObject struct {
	Version  int16
	UniqueID uint32
	Bits     uint32
	PIDIndex uint16
}

// ReadTObject reads the TObject base, which carries no byte count.
func ReadTObject(c cursor.Cursor) (TObject, cursor.Cursor, error) {
	var o TObject
	c, err := c.Unpack(cursor.Big, &o.Version, &o.UniqueID, &o.Bits)
	if err != nil {
		return TObject{}, cursor.Cursor{}, err
	}
	if o.Bits&kIsReferenced != 0 {
		if o.PIDIndex, c, err = c.U16(cursor.Big); err != nil {
			return TObject{}, cursor.Cursor{}, err
		}
	}
	return o, c, nil
}

// TNamed is a TObject with a name and a title.
type TNamed struct {
	Header StreamHeader
	Object TObject
	Name   string
	Title  string
}

func ReadTNamed(c cursor.Cursor) (TNamed, cursor.Cursor, error) {
	var n TNamed
	var err error
	n.Header, c, err = ReadVersioned("tnamed", c, func(_ StreamHeader, c cursor.Cursor) (cursor.Cursor, error) {
		return readNamedMembers(&n, c)
	})
	return n, c, err
}

func readNamedMembers(n *TNamed, c cursor.Cursor) (cursor.Cursor, error) {
	var err error
	if n.Object, c, err = ReadTObject(c); err != nil {
		return cursor.Cursor{}, err
	}
	if n.Name, c, err = ReadTString(c); err != nil {
		return cursor.Cursor{}, err
	}
	n.Title, c, err = ReadTString(c)
	return c, err
}

// TObjString is a streamed string object.
type TObjString struct {
	Header StreamHeader
	Object TObject
	String string
}

func ReadTObjString(c cursor.Cursor) (TObjString, cursor.Cursor, error) {
	var s TObjString
	var err error
	s.Header, c, err = ReadVersioned("tobjstring", c, func(_ StreamHeader, c cursor.Cursor) (cursor.Cursor, error) {
		var err error
		if s.Object, c, err = ReadTObject(c); err != nil {
			return cursor.Cursor{}, err
		}
		s.String, c, err = ReadTString(c)
		return c, err
	})
	return s, c, err
}

// ListItem is one TList entry. Pad is the byte written after every item;
// it has only ever been observed as 0 and its meaning is not known.
type ListItem struct {
	Object any
	Pad    byte
}

// TList is a heterogeneous list of streamed objects.
type TList struct {
	Header StreamHeader
	Object TObject
	Name   string
	Items  []ListItem
}

func ReadTList(reg *registry.Registry, c cursor.Cursor) (TList, cursor.Cursor, error) {
	var l TList
	var err error
	l.Header, c, err = ReadVersioned("tlist", c, func(_ StreamHeader, c cursor.Cursor) (cursor.Cursor, error) {
		var err error
		var n int32
		if l.Object, c, err = ReadTObject(c); err != nil {
			return cursor.Cursor{}, err
		}
		if l.Name, c, err = ReadTString(c); err != nil {
			return cursor.Cursor{}, err
		}
		if n, c, err = c.I32(cursor.Big); err != nil {
			return cursor.Cursor{}, err
		}
		if n < 0 || int(n) > c.Len() {
			return cursor.Cursor{}, protocol.Mismatch("tlist", c.Offset(), protocol.ErrMalformedHeader,
				fmt.Sprintf("0 <= nObjects <= %d", c.Len()), n)
		}
		l.Items = make([]ListItem, 0, n)
		for i := int32(0); i < n; i++ {
			var item ListItem
			if item.Object, c, err = ReadObjectAny(reg, c); err != nil {
				return cursor.Cursor{}, fmt.Errorf("tlist item %d: %w", i, err)
			}
			if item.Pad, c, err = c.U8(); err != nil {
				return cursor.Cursor{}, err
			}
			if item.Pad != 0 {
				return cursor.Cursor{}, protocol.Mismatch("tlist", c.Offset(), protocol.ErrMalformedHeader, byte(0), item.Pad)
			}
			l.Items = append(l.Items, item)
		}
		return c, nil
	})
	return l, c, err
}
