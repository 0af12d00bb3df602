package rntuple

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/compression"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/envelope"
	"github.com/danmuck/rootio/internal/protocol/locator"
	"github.com/danmuck/rootio/internal/rootfile"
	"github.com/danmuck/rootio/internal/testutil/rootfixture"
	"github.com/danmuck/rootio/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = 254

func contributors(t *testing.T, mutate func(blob []byte)) (*rootfile.Anchor, cursor.Fetcher, []byte) {
	t.Helper()
	blob, nt := rootfixture.Contributors(base)
	if mutate != nil {
		mutate(blob)
	}
	a, _, err := rootfile.ReadAnchor(cursor.FromBytes(nt.Anchor(0)))
	require.NoError(t, err)
	return a, cursor.Window(blob, base), blob
}

func TestAnchorLinks(t *testing.T) {
	testlog.Start(t)
	a, _, _ := contributors(t, nil)
	assert.Equal(t, "1.0.0.0", a.Version())
	assert.Equal(t, uint64(254), a.SeekHeader)
	assert.Equal(t, uint64(332), a.NBytesHeader)
	assert.Equal(t, uint64(332), a.LenHeader)
	assert.Equal(t, uint64(1687), a.SeekFooter)
	assert.Equal(t, uint64(148), a.NBytesFooter)
	assert.Equal(t, uint64(148), a.LenFooter)
	assert.Equal(t, uint64(1073741824), a.MaxKeySize)
	assert.Equal(t, envelope.Link{Length: 332, Locator: locator.Large(332, 254)}, HeaderLink(a))
	assert.Equal(t, envelope.Link{Length: 148, Locator: locator.Large(148, 1687)}, FooterLink(a))
}

func TestOpenContributors(t *testing.T) {
	testlog.Start(t)
	a, f, _ := contributors(t, nil)
	nt, err := Open(context.Background(), a, f, Options{})
	require.NoError(t, err)

	h := nt.Header
	assert.Equal(t, envelope.TypeHeader, h.TypeID)
	assert.Equal(t, uint64(332), h.Length)
	assert.Equal(t, rootfixture.ContributorsHeaderChecksum, h.Checksum)
	assert.Empty(t, h.Unknown)
	assert.Equal(t, uint64(0), h.Payload.FeatureFlags)
	assert.Equal(t, "Contributors", nt.Name())
	assert.Equal(t, "The first ever RNTuple.", h.Payload.Description)
	assert.Equal(t, "ROOT v6.35.001", h.Payload.Library)

	fields := h.Payload.Fields
	assert.Equal(t, uint64(131), fields.Size)
	require.Len(t, fields.Items, 2)
	assert.Equal(t, uint64(60), fields.Items[0].Size)
	assert.Equal(t, "firstName", fields.Items[0].FieldName)
	assert.Equal(t, uint32(0), fields.Items[0].ParentFieldID)
	assert.Equal(t, uint64(59), fields.Items[1].Size)
	assert.Equal(t, "lastName", fields.Items[1].FieldName)
	assert.Equal(t, uint32(1), fields.Items[1].ParentFieldID)
	for _, fd := range fields.Items {
		assert.Equal(t, "std::string", fd.TypeName)
		assert.Empty(t, fd.TypeAlias)
		assert.Empty(t, fd.Description)
		assert.Nil(t, fd.ArraySize)
		assert.Nil(t, fd.SourceFieldID)
		assert.Nil(t, fd.TypeChecksum)
	}

	cols := h.Payload.Columns
	assert.Equal(t, uint64(92), cols.Size)
	require.Len(t, cols.Items, 4)
	wantCols := []struct {
		typ   ColumnType
		bits  uint16
		field uint32
	}{
		{ColumnIndex64, 64, 0},
		{ColumnChar, 8, 0},
		{ColumnIndex64, 64, 1},
		{ColumnChar, 8, 1},
	}
	for i, w := range wantCols {
		col := cols.Items[i]
		assert.Equal(t, uint64(20), col.Size)
		assert.Equal(t, w.typ, col.Type)
		assert.Equal(t, w.bits, col.BitsOnStorage)
		assert.Equal(t, w.field, col.FieldID)
		assert.Nil(t, col.FirstElementIndex)
		assert.Nil(t, col.Range)
	}
	assert.Equal(t, uint64(12), h.Payload.Aliases.Size)
	assert.Equal(t, uint64(12), h.Payload.ExtraTypes.Size)

	ft := nt.Footer
	assert.Equal(t, envelope.TypeFooter, ft.TypeID)
	assert.Equal(t, uint64(148), ft.Length)
	assert.Equal(t, rootfixture.ContributorsFooterChecksum, ft.Checksum)
	assert.Equal(t, rootfixture.ContributorsHeaderChecksum, ft.Payload.HeaderChecksum)
	assert.Equal(t, uint64(56), ft.Payload.Extension.Size)
	assert.Equal(t, uint64(60), ft.Payload.ClusterGroups.Size)
	require.Len(t, ft.Payload.ClusterGroups.Items, 1)
	g := ft.Payload.ClusterGroups.Items[0]
	assert.Equal(t, uint64(48), g.Size)
	assert.Equal(t, uint64(0), g.MinEntry)
	assert.Equal(t, uint64(22), g.EntrySpan)
	assert.Equal(t, uint32(1), g.NClusters)
	assert.Equal(t, envelope.Link{Length: 244, Locator: locator.Standard(244, 1409)}, g.PageList)
	assert.Equal(t, uint64(22), nt.Entries())

	require.Len(t, nt.PageLists, 1)
	pl := nt.PageLists[0]
	assert.Equal(t, envelope.TypePageList, pl.TypeID)
	assert.Equal(t, uint64(244), pl.Length)
	assert.Equal(t, rootfixture.ContributorsPageListChecksum, pl.Checksum)
	assert.Equal(t, rootfixture.ContributorsHeaderChecksum, pl.Payload.HeaderChecksum)
	assert.Equal(t, uint64(36), pl.Payload.Clusters.Size)
	require.Len(t, pl.Payload.Clusters.Items, 1)
	cs := pl.Payload.Clusters.Items[0]
	assert.Equal(t, uint64(24), cs.Size)
	assert.Equal(t, uint64(0), cs.FirstEntry)
	assert.Equal(t, uint64(22), cs.NEntriesAndFlags)
	assert.Equal(t, uint64(22), cs.NEntries())
	assert.Equal(t, uint8(0), cs.Flags())

	assert.Equal(t, uint64(184), pl.Payload.Locations.Size)
	require.Len(t, pl.Payload.Locations.Items, 1)
	columns := pl.Payload.Locations.Items[0]
	assert.Equal(t, uint64(172), columns.Size)
	require.Len(t, columns.Items, 4)
	wantPages := []PageDescription{
		{NElements: -22, Locator: locator.Standard(176, 620)},
		{NElements: -178, Locator: locator.Standard(178, 804)},
		{NElements: -22, Locator: locator.Standard(176, 990)},
		{NElements: -193, Locator: locator.Standard(193, 1174)},
	}
	for i, locs := range columns.Items {
		assert.Equal(t, uint64(40), locs.Size)
		assert.Equal(t, []PageDescription{wantPages[i]}, locs.Items)
		assert.Equal(t, int64(0), locs.ElementOffset)
		assert.True(t, locs.HasCompression)
		assert.Equal(t, uint32(0), locs.Compression)
		assert.False(t, locs.Suppressed())
		assert.Empty(t, locs.Unknown)
	}
}

func TestSchemaAndPages(t *testing.T) {
	testlog.Start(t)
	a, f, blob := contributors(t, nil)
	ctx := context.Background()
	nt, err := Open(ctx, a, f, Options{Parallelism: 1})
	require.NoError(t, err)

	schema := nt.Schema()
	assert.Len(t, schema.Fields, 2)
	assert.Len(t, schema.Columns, 4)
	assert.Equal(t, []int{2, 3}, schema.ColumnsOf(1))

	pages, err := nt.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 4)
	wantSizes := []uint64{176, 178, 176, 193}
	wantTypes := []ColumnType{ColumnIndex64, ColumnChar, ColumnIndex64, ColumnChar}
	for i, p := range pages {
		assert.Equal(t, i, p.Column)
		assert.Equal(t, wantSizes[i], p.UncompressedSize)
		assert.Equal(t, wantTypes[i], p.Type)
		assert.True(t, p.HasChecksum())

		data, err := ReadPage(ctx, f, compression.DefaultCodecs(), p)
		require.NoError(t, err)
		start := p.Locator.Offset - base
		assert.Equal(t, blob[start:start+p.Locator.Size], data)

		sum, err := ReadPageChecksum(ctx, f, p.PageDescription)
		require.NoError(t, err)
		assert.Equal(t, uint64(0xC0FFEE00+i), sum)
	}
}

func TestChecksumPropagation(t *testing.T) {
	testlog.Start(t)
	cases := map[string]int{
		// footer preamble + feature flags
		"footer": 1433 + 16,
		// page list preamble
		"page list": 1155 + 8,
	}
	for name, off := range cases {
		t.Run(name, func(t *testing.T) {
			a, f, _ := contributors(t, func(blob []byte) {
				binary.LittleEndian.PutUint64(blob[off:], 42)
			})
			_, err := Open(context.Background(), a, f, Options{})
			assert.ErrorIs(t, err, protocol.ErrConsistency)
		})
	}
}

func TestUnsupportedFeatures(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()

	a, f, _ := contributors(t, func(blob []byte) {
		// header feature flags follow the preamble
		binary.LittleEndian.PutUint64(blob[8:], 1)
	})
	_, err := Open(ctx, a, f, Options{})
	assert.ErrorIs(t, err, protocol.ErrUnsupportedFeature)
	var ufe protocol.UnsupportedFeatureError
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, protocol.FeatureFlags, ufe.Feature)

	a, f, _ = contributors(t, func(blob []byte) {
		// high byte of fNEntriesAndFeatureFlag in the first cluster summary
		blob[1155+8+8+12+8+8+7] = ClusterSharded
	})
	_, err = Open(ctx, a, f, Options{})
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, protocol.FeatureShardedClusters, ufe.Feature)

	a, f, _ = contributors(t, nil)
	a.NBytesFooter = 100
	_, err = Open(ctx, a, f, Options{})
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, protocol.FeatureCompressedEnvelope, ufe.Feature)
}

func TestEnvelopeTypeMismatch(t *testing.T) {
	testlog.Start(t)
	a, f, _ := contributors(t, nil)
	a.SeekFooter, a.NBytesFooter, a.LenFooter = a.SeekHeader, a.NBytesHeader, a.LenHeader
	_, err := Open(context.Background(), a, f, Options{})
	assert.ErrorIs(t, err, protocol.ErrEnvelopeTypeMismatch)
	assert.ErrorIs(t, err, protocol.ErrMalformedHeader)
}

func TestReadPageDecompresses(t *testing.T) {
	testlog.Start(t)
	values := rootfixture.LE()
	for i := 0; i < 100; i++ {
		values.F64(float64(i) / 4)
	}
	block, err := rootfixture.CompressBlock("ZS", values.Bytes())
	require.NoError(t, err)
	p := Page{
		PageDescription:  PageDescription{NElements: 100, Locator: locator.Standard(uint32(len(block)), 0)},
		Type:             ColumnReal64,
		UncompressedSize: 800,
	}
	data, err := ReadPage(context.Background(), cursor.Window(block, 0), compression.DefaultCodecs(), p)
	require.NoError(t, err)
	assert.Equal(t, values.Bytes(), data)

	_, err = ReadPageChecksum(context.Background(), cursor.Window(block, 0), p.PageDescription)
	assert.ErrorIs(t, err, protocol.ErrOutOfRange)
}

func TestOptionalSchemaMembers(t *testing.T) {
	testlog.Start(t)
	field := rootfixture.Record(
		rootfixture.LE().U32(1).U32(2).U32(0).U16(1).U16(FieldRepetitive|FieldProjected|FieldHasChecksum).Bytes(),
		rootfixture.LE().RString("arr").RString("std::array<float,3>").RString("").RString("doc").Bytes(),
		rootfixture.LE().U64(3).U32(9).U32(0xABCD).Bytes(),
		[]byte{0xEE, 0xFF},
	)
	fd, rest, err := readFieldDescription(cursor.FromBytes(field))
	require.NoError(t, err)
	assert.True(t, rest.Empty())
	require.NotNil(t, fd.ArraySize)
	assert.Equal(t, uint64(3), *fd.ArraySize)
	assert.Equal(t, uint32(9), *fd.SourceFieldID)
	assert.Equal(t, uint32(0xABCD), *fd.TypeChecksum)
	assert.Equal(t, "doc", fd.Description)
	assert.Equal(t, []byte{0xEE, 0xFF}, fd.Unknown)

	col := rootfixture.Record(
		rootfixture.LE().U16(uint16(ColumnReal32Quant)).U16(20).U32(0).U16(ColumnDeferred|ColumnWithRange).U16(1).Bytes(),
		rootfixture.LE().I64(1000).F64(-1).F64(1).Bytes(),
	)
	cd, _, err := readColumnDescription(cursor.FromBytes(col))
	require.NoError(t, err)
	assert.Equal(t, "kReal32Quant", cd.Type.String())
	assert.Equal(t, int64(1000), *cd.FirstElementIndex)
	assert.Equal(t, &ColumnRange{Min: -1, Max: 1}, cd.Range)
	assert.Equal(t, uint16(1), cd.RepresentationIndex)
	assert.Equal(t, "ColumnType(0x40)", ColumnType(0x40).String())
}

func TestSuppressedColumnHasNoCompression(t *testing.T) {
	testlog.Start(t)
	raw := rootfixture.ListTail(rootfixture.LE().I64(-1).Bytes())
	locs, rest, err := readPageLocations(cursor.FromBytes(raw))
	require.NoError(t, err)
	assert.True(t, rest.Empty())
	assert.True(t, locs.Suppressed())
	assert.False(t, locs.HasCompression)
	assert.Equal(t, 0, locs.Len())
}

func TestFromFile(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	data, ref, err := rootfixture.ContributorsFile(rootfixture.FileSpec{
		Name: "contributors.root",
		Keys: []rootfixture.KeySpec{
			{Class: "TObjString", Name: "note", Cycle: 1, Payload: rootfixture.TObjString("hello")},
		},
	})
	require.NoError(t, err)
	file, err := rootfile.Open(ctx, rootfile.NewReader(cursor.Window(data, 0)))
	require.NoError(t, err)

	nt, err := FromFile(ctx, file, "Contributors", Options{Parallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, "Contributors", nt.Name())
	assert.Equal(t, ref.SeekHeader, nt.Anchor.SeekHeader)
	assert.Equal(t, ref.SeekFooter, nt.Anchor.SeekFooter)
	assert.Equal(t, uint64(22), nt.Entries())

	pages, err := nt.Pages()
	require.NoError(t, err)
	require.Len(t, pages, len(ref.Pages))
	for i, p := range pages {
		assert.Equal(t, ref.Pages[i].Offset, p.Locator.Offset)
		sum, err := ReadPageChecksum(ctx, file.Reader().Fetch, p.PageDescription)
		require.NoError(t, err)
		assert.Equal(t, ref.Pages[i].Checksum, sum)
	}

	_, err = FromFile(ctx, file, "note", Options{})
	assert.ErrorIs(t, err, protocol.ErrConsistency)
	_, err = FromFile(ctx, file, "missing", Options{})
	assert.ErrorIs(t, err, rootfile.ErrKeyNotFound)
}
