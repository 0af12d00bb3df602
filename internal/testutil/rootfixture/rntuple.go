package rootfixture

import "fmt"

// Record wraps body in a record frame.
func Record(body ...[]byte) []byte {
	n := 8
	for _, b := range body {
		n += len(b)
	}
	w := LE().I64(int64(n))
	for _, b := range body {
		w.Raw(b)
	}
	return w.Bytes()
}

// List wraps items in a list frame.
func List(items ...[]byte) []byte {
	return ListTail(nil, items...)
}

// ListTail wraps items in a list frame that ends with tail.
func ListTail(tail []byte, items ...[]byte) []byte {
	n := 12 + len(tail)
	for _, it := range items {
		n += len(it)
	}
	w := LE().I64(-int64(n)).U32(uint32(len(items)))
	for _, it := range items {
		w.Raw(it)
	}
	return w.Raw(tail).Bytes()
}

// Envelope wraps payload in an envelope of the given type.
func Envelope(typeID uint16, payload []byte, checksum uint64) []byte {
	length := uint64(16 + len(payload))
	return LE().U64(length<<16 | uint64(typeID)).Raw(payload).U64(checksum).Bytes()
}

// StandardLocator encodes a 32-bit size and 64-bit offset.
func StandardLocator(size uint32, offset uint64) []byte {
	return LE().U32(size).U64(offset).Bytes()
}

// FieldRecord encodes a field description without optional members.
func FieldRecord(parent uint32, name, typeName string) []byte {
	return Record(LE().U32(0).U32(0).U32(parent).U16(0).U16(0).RString(name).RString(typeName).RString("").RString("").Bytes())
}

// ColumnRecord encodes a column description without optional members.
func ColumnRecord(typ, bits uint16, field uint32) []byte {
	return Record(LE().U16(typ).U16(bits).U32(field).U16(0).U16(0).Bytes())
}

// Checksums of the contributors RNTuple.
const (
	ContributorsHeaderChecksum   uint64 = 9346497350689737328
	ContributorsFooterChecksum   uint64 = 9038192899957947137
	ContributorsPageListChecksum uint64 = 12340257838343085244
)

// Offsets of the contributors RNTuple relative to its header envelope.
const (
	contributorsPageList = 1155
	contributorsFooter   = 1433
	contributorsSpan     = 1581
)

// PageRef is where a built page lives.
type PageRef struct {
	Offset    uint64
	Size      uint32
	NElements int32
	Checksum  uint64
}

// NTuple records where Contributors put its envelopes.
type NTuple struct {
	SeekHeader, NBytesHeader     uint64
	SeekFooter, NBytesFooter     uint64
	SeekPageList, NBytesPageList uint64
	Pages                        []PageRef
}

// Anchor encodes the ROOT::RNTuple object pointing at n, followed by its
// checksum.
func (n *NTuple) Anchor(checksum uint64) []byte {
	w := BE().U32(0x40000000 | (2 + 8 + 56)).I16(2)
	w.U16(1).U16(0).U16(0).U16(0)
	w.U64(n.SeekHeader).U64(n.NBytesHeader).U64(n.NBytesHeader)
	w.U64(n.SeekFooter).U64(n.NBytesFooter).U64(n.NBytesFooter)
	w.U64(1 << 30)
	return w.U64(checksum).Bytes()
}

// Contributors builds the two-field, one-cluster RNTuple ROOT writes for
// its first test file, with the header envelope at file offset base. The
// returned bytes cover the header through the end of the footer; with
// base 254 every offset matches the original file.
func Contributors(base uint64) ([]byte, *NTuple) {
	n := &NTuple{
		SeekHeader:     base,
		SeekFooter:     base + contributorsFooter,
		SeekPageList:   base + contributorsPageList,
		NBytesPageList: 244,
	}
	buf := make([]byte, contributorsSpan)

	header := LE().U64(0).RString("Contributors").RString("The first ever RNTuple.").RString("ROOT v6.35.001")
	header.Raw(List(FieldRecord(0, "firstName", "std::string"), FieldRecord(1, "lastName", "std::string")))
	header.Raw(List(
		ColumnRecord(0x0F, 64, 0),
		ColumnRecord(0x02, 8, 0),
		ColumnRecord(0x0F, 64, 1),
		ColumnRecord(0x02, 8, 1),
	))
	header.Raw(List()).Raw(List())
	h := Envelope(1, header.Bytes(), ContributorsHeaderChecksum)
	n.NBytesHeader = uint64(len(h))
	copy(buf, h)

	specs := []struct {
		rel   uint64
		size  uint32
		nelem int32
	}{
		{366, 176, -22},
		{550, 178, -178},
		{736, 176, -22},
		{920, 193, -193},
	}
	var locs [][]byte
	for i, s := range specs {
		page := make([]byte, s.size)
		for j := range page {
			page[j] = byte(i*31 + j)
		}
		copy(buf[s.rel:], page)
		sum := uint64(0xC0FFEE00 + i)
		copy(buf[s.rel+uint64(s.size):], LE().U64(sum).Bytes())
		ref := PageRef{Offset: base + s.rel, Size: s.size, NElements: s.nelem, Checksum: sum}
		n.Pages = append(n.Pages, ref)
		desc := LE().I32(s.nelem).Raw(StandardLocator(s.size, ref.Offset)).Bytes()
		locs = append(locs, ListTail(LE().I64(0).U32(0).Bytes(), desc))
	}

	pagelist := LE().U64(ContributorsHeaderChecksum)
	pagelist.Raw(List(Record(LE().U64(0).U64(22).Bytes())))
	pagelist.Raw(List(List(locs...)))
	pl := Envelope(3, pagelist.Bytes(), ContributorsPageListChecksum)
	if uint64(len(pl)) != n.NBytesPageList {
		panic(fmt.Sprintf("page list envelope is %d bytes", len(pl)))
	}
	copy(buf[contributorsPageList:], pl)

	footer := LE().U64(0).U64(ContributorsHeaderChecksum)
	footer.Raw(Record(List(), List(), List(), List()))
	group := LE().U64(0).U64(22).U32(1).U64(n.NBytesPageList).Raw(StandardLocator(uint32(n.NBytesPageList), n.SeekPageList))
	footer.Raw(List(Record(group.Bytes())))
	f := Envelope(2, footer.Bytes(), ContributorsFooterChecksum)
	n.NBytesFooter = uint64(len(f))
	copy(buf[contributorsFooter:], f)
	return buf, n
}

// ContributorsFile builds a ROOT file holding the contributors RNTuple
// under the key "Contributors", next to any keys in spec.
func ContributorsFile(spec FileSpec) ([]byte, *NTuple, error) {
	anchorKey := KeySpec{Class: "ROOT::RNTuple", Name: "Contributors", Cycle: 1}
	// The anchor size does not depend on the offsets it holds, so a draft
	// with a zero anchor gives the final file length.
	draft := spec
	draft.Keys = append(append([]KeySpec(nil), spec.Keys...), KeySpec{Class: anchorKey.Class, Name: anchorKey.Name, Cycle: 1, Payload: (&NTuple{}).Anchor(0)})
	data, _, err := BuildFile(draft)
	if err != nil {
		return nil, nil, err
	}
	blob, nt := Contributors(uint64(len(data)))
	anchorKey.Payload = nt.Anchor(0x5A5A5A5A)
	final := spec
	final.Keys = append(append([]KeySpec(nil), spec.Keys...), anchorKey)
	if data, _, err = BuildFile(final); err != nil {
		return nil, nil, err
	}
	return append(data, blob...), nt, nil
}
