package rntuple

import (
	"fmt"

	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/frame"
)

// ReadRString reads a u32 little-endian length and that many bytes.
func ReadRString(c cursor.Cursor) (string, cursor.Cursor, error) {
	n, c, err := c.U32(cursor.Little)
	if err != nil {
		return "", cursor.Cursor{}, err
	}
	b, c, err := c.ConsumeView(int(n))
	if err != nil {
		return "", cursor.Cursor{}, err
	}
	return string(b), c, nil
}

// ColumnType is the on-disk element type of a column.
type ColumnType uint16

const (
	ColumnBit          ColumnType = 0x00
	ColumnByte         ColumnType = 0x01
	ColumnChar         ColumnType = 0x02
	ColumnInt8         ColumnType = 0x03
	ColumnUInt8        ColumnType = 0x04
	ColumnInt16        ColumnType = 0x05
	ColumnUInt16       ColumnType = 0x06
	ColumnInt32        ColumnType = 0x07
	ColumnUInt32       ColumnType = 0x08
	ColumnInt64        ColumnType = 0x09
	ColumnUInt64       ColumnType = 0x0A
	ColumnReal16       ColumnType = 0x0B
	ColumnReal32       ColumnType = 0x0C
	ColumnReal64       ColumnType = 0x0D
	ColumnIndex32      ColumnType = 0x0E
	ColumnIndex64      ColumnType = 0x0F
	ColumnSwitch       ColumnType = 0x10
	ColumnSplitInt16   ColumnType = 0x11
	ColumnSplitUInt16  ColumnType = 0x12
	ColumnSplitInt32   ColumnType = 0x13
	ColumnSplitUInt32  ColumnType = 0x14
	ColumnSplitInt64   ColumnType = 0x15
	ColumnSplitUInt64  ColumnType = 0x16
	ColumnSplitReal16  ColumnType = 0x17
	ColumnSplitReal32  ColumnType = 0x18
	ColumnSplitReal64  ColumnType = 0x19
	ColumnSplitIndex32 ColumnType = 0x1A
	ColumnSplitIndex64 ColumnType = 0x1B
	ColumnReal32Trunc  ColumnType = 0x1C
	ColumnReal32Quant  ColumnType = 0x1D
)

var columnTypeNames = [...]string{
	"kBit", "kByte", "kChar", "kInt8", "kUInt8", "kInt16", "kUInt16", "kInt32",
	"kUInt32", "kInt64", "kUInt64", "kReal16", "kReal32", "kReal64", "kIndex32", "kIndex64",
	"kSwitch", "kSplitInt16", "kSplitUInt16", "kSplitInt32", "kSplitUInt32", "kSplitInt64", "kSplitUInt64", "kSplitReal16",
	"kSplitReal32", "kSplitReal64", "kSplitIndex32", "kSplitIndex64", "kReal32Trunc", "kReal32Quant",
}

// Known reports whether t is defined by this reader. Newer writers may add
// types without a feature flag; readers skip columns they do not know.
func (t ColumnType) Known() bool {
	return int(t) < len(columnTypeNames)
}

func (t ColumnType) String() string {
	if t.Known() {
		return columnTypeNames[t]
	}
	return fmt.Sprintf("ColumnType(%#02x)", uint16(t))
}

// Field flags.
const (
	FieldRepetitive  = 0x01
	FieldProjected   = 0x02
	FieldHasChecksum = 0x04
)

// Column flags.
const (
	ColumnDeferred  = 0x01
	ColumnWithRange = 0x02
)

// FieldDescription is one node of the schema tree. Its field ID is its
// position in the concatenated header and extension lists.
type FieldDescription struct {
	frame.Record
	FieldVersion   uint32
	TypeVersion    uint32
	ParentFieldID  uint32
	StructuralRole uint16
	Flags          uint16
	FieldName      string
	TypeName       string
	TypeAlias      string
	Description    string
	ArraySize      *uint64
	SourceFieldID  *uint32
	TypeChecksum   *uint32
}

func readFieldDescription(c cursor.Cursor) (FieldDescription, cursor.Cursor, error) {
	var f FieldDescription
	rec, c, err := frame.ReadRecord(c, func(c cursor.Cursor) (cursor.Cursor, error) {
		c, err := c.Unpack(cursor.Little, &f.FieldVersion, &f.TypeVersion, &f.ParentFieldID, &f.StructuralRole, &f.Flags)
		if err != nil {
			return cursor.Cursor{}, err
		}
		for _, s := range []*string{&f.FieldName, &f.TypeName, &f.TypeAlias, &f.Description} {
			if *s, c, err = ReadRString(c); err != nil {
				return cursor.Cursor{}, err
			}
		}
		if f.Flags&FieldRepetitive != 0 {
			f.ArraySize = new(uint64)
			if c, err = c.Unpack(cursor.Little, f.ArraySize); err != nil {
				return cursor.Cursor{}, err
			}
		}
		if f.Flags&FieldProjected != 0 {
			f.SourceFieldID = new(uint32)
			if c, err = c.Unpack(cursor.Little, f.SourceFieldID); err != nil {
				return cursor.Cursor{}, err
			}
		}
		if f.Flags&FieldHasChecksum != 0 {
			f.TypeChecksum = new(uint32)
			if c, err = c.Unpack(cursor.Little, f.TypeChecksum); err != nil {
				return cursor.Cursor{}, err
			}
		}
		return c, nil
	})
	f.Record = rec
	return f, c, err
}

// ColumnRange is the inclusive value range of a column with range.
type ColumnRange struct {
	Min, Max float64
}

// ColumnDescription is one physical column. Its column ID is its position
// in the concatenated header and extension lists.
type ColumnDescription struct {
	frame.Record
	Type                ColumnType
	BitsOnStorage       uint16
	FieldID             uint32
	Flags               uint16
	RepresentationIndex uint16
	FirstElementIndex   *int64
	Range               *ColumnRange
}

func readColumnDescription(c cursor.Cursor) (ColumnDescription, cursor.Cursor, error) {
	var col ColumnDescription
	rec, c, err := frame.ReadRecord(c, func(c cursor.Cursor) (cursor.Cursor, error) {
		c, err := c.Unpack(cursor.Little, (*uint16)(&col.Type), &col.BitsOnStorage, &col.FieldID, &col.Flags, &col.RepresentationIndex)
		if err != nil {
			return cursor.Cursor{}, err
		}
		if col.Flags&ColumnDeferred != 0 {
			col.FirstElementIndex = new(int64)
			if c, err = c.Unpack(cursor.Little, col.FirstElementIndex); err != nil {
				return cursor.Cursor{}, err
			}
		}
		if col.Flags&ColumnWithRange != 0 {
			col.Range = &ColumnRange{}
			if c, err = c.Unpack(cursor.Little, &col.Range.Min, &col.Range.Max); err != nil {
				return cursor.Cursor{}, err
			}
		}
		return c, nil
	})
	col.Record = rec
	return col, c, err
}

// AliasColumn maps a projected field onto an existing physical column.
type AliasColumn struct {
	frame.Record
	PhysicalColumnID uint32
	FieldID          uint32
}

func readAliasColumn(c cursor.Cursor) (AliasColumn, cursor.Cursor, error) {
	var a AliasColumn
	rec, c, err := frame.ReadRecord(c, func(c cursor.Cursor) (cursor.Cursor, error) {
		return c.Unpack(cursor.Little, &a.PhysicalColumnID, &a.FieldID)
	})
	a.Record = rec
	return a, c, err
}

// ExtraTypeInfo carries type information outside the field tree; content
// identifier 0 is streamer info for fields stored with the ROOT streamer.
type ExtraTypeInfo struct {
	frame.Record
	ContentID   uint32
	TypeVersion uint32
	TypeName    string
}

func readExtraTypeInfo(c cursor.Cursor) (ExtraTypeInfo, cursor.Cursor, error) {
	var x ExtraTypeInfo
	rec, c, err := frame.ReadRecord(c, func(c cursor.Cursor) (cursor.Cursor, error) {
		c, err := c.Unpack(cursor.Little, &x.ContentID, &x.TypeVersion)
		if err != nil {
			return cursor.Cursor{}, err
		}
		x.TypeName, c, err = ReadRString(c)
		return c, err
	})
	x.Record = rec
	return x, c, err
}

// SchemaLists are the four schema list frames shared by the header and the
// footer's schema extension.
type SchemaLists struct {
	Fields     frame.ListFrame[FieldDescription]
	Columns    frame.ListFrame[ColumnDescription]
	Aliases    frame.ListFrame[AliasColumn]
	ExtraTypes frame.ListFrame[ExtraTypeInfo]
}

func readSchemaLists(c cursor.Cursor) (SchemaLists, cursor.Cursor, error) {
	var s SchemaLists
	var err error
	if s.Fields, c, err = frame.ReadList(c, readFieldDescription); err != nil {
		return SchemaLists{}, cursor.Cursor{}, fmt.Errorf("fields: %w", err)
	}
	if s.Columns, c, err = frame.ReadList(c, readColumnDescription); err != nil {
		return SchemaLists{}, cursor.Cursor{}, fmt.Errorf("columns: %w", err)
	}
	if s.Aliases, c, err = frame.ReadList(c, readAliasColumn); err != nil {
		return SchemaLists{}, cursor.Cursor{}, fmt.Errorf("alias columns: %w", err)
	}
	if s.ExtraTypes, c, err = frame.ReadList(c, readExtraTypeInfo); err != nil {
		return SchemaLists{}, cursor.Cursor{}, fmt.Errorf("extra type info: %w", err)
	}
	return s, c, nil
}

// Schema is the full schema: header lists followed by the extension lists.
type Schema struct {
	Fields     []FieldDescription
	Columns    []ColumnDescription
	Aliases    []AliasColumn
	ExtraTypes []ExtraTypeInfo
}

// MergeSchema appends the extension lists to the header lists.
func MergeSchema(header, extension SchemaLists) Schema {
	return Schema{
		Fields:     append(append([]FieldDescription(nil), header.Fields.Items...), extension.Fields.Items...),
		Columns:    append(append([]ColumnDescription(nil), header.Columns.Items...), extension.Columns.Items...),
		Aliases:    append(append([]AliasColumn(nil), header.Aliases.Items...), extension.Aliases.Items...),
		ExtraTypes: append(append([]ExtraTypeInfo(nil), header.ExtraTypes.Items...), extension.ExtraTypes.Items...),
	}
}

// ColumnsOf returns the IDs of the physical columns of field id.
func (s Schema) ColumnsOf(id uint32) []int {
	var out []int
	for i, c := range s.Columns {
		if c.FieldID == id {
			out = append(out, i)
		}
	}
	return out
}
