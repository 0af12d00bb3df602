package rntuple

import (
	"fmt"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/envelope"
	"github.com/danmuck/rootio/internal/protocol/frame"
	"github.com/danmuck/rootio/internal/protocol/locator"
)

// Header is the header envelope payload.
type Header struct {
	FeatureFlags uint64
	Name         string
	Description  string
	Library      string
	SchemaLists
}

func readHeader(c cursor.Cursor) (Header, cursor.Cursor, error) {
	var h Header
	var err error
	if h.FeatureFlags, c, err = envelope.ReadFeatureFlags(c); err != nil {
		return Header{}, cursor.Cursor{}, err
	}
	for _, s := range []*string{&h.Name, &h.Description, &h.Library} {
		if *s, c, err = ReadRString(c); err != nil {
			return Header{}, cursor.Cursor{}, err
		}
	}
	if h.SchemaLists, c, err = readSchemaLists(c); err != nil {
		return Header{}, cursor.Cursor{}, err
	}
	return h, c, nil
}

// HeaderKind decodes header envelopes.
var HeaderKind = envelope.Kind[Header]{TypeID: envelope.TypeHeader, Name: "header", Read: readHeader}

// SchemaExtension holds schema records added after the header was written.
type SchemaExtension struct {
	frame.Record
	SchemaLists
}

// ClusterGroup points at the page list of a run of clusters.
type ClusterGroup struct {
	frame.Record
	MinEntry  uint64
	EntrySpan uint64
	NClusters uint32
	PageList  envelope.Link
}

func readClusterGroup(c cursor.Cursor) (ClusterGroup, cursor.Cursor, error) {
	var g ClusterGroup
	rec, c, err := frame.ReadRecord(c, func(c cursor.Cursor) (cursor.Cursor, error) {
		c, err := c.Unpack(cursor.Little, &g.MinEntry, &g.EntrySpan, &g.NClusters)
		if err != nil {
			return cursor.Cursor{}, err
		}
		g.PageList, c, err = envelope.ReadLink(c)
		return c, err
	})
	g.Record = rec
	return g, c, err
}

// Footer is the footer envelope payload.
type Footer struct {
	FeatureFlags   uint64
	HeaderChecksum uint64
	Extension      SchemaExtension
	ClusterGroups  frame.ListFrame[ClusterGroup]
}

func readFooter(c cursor.Cursor) (Footer, cursor.Cursor, error) {
	var f Footer
	var err error
	if f.FeatureFlags, c, err = envelope.ReadFeatureFlags(c); err != nil {
		return Footer{}, cursor.Cursor{}, err
	}
	if f.HeaderChecksum, c, err = c.U64(cursor.Little); err != nil {
		return Footer{}, cursor.Cursor{}, err
	}
	f.Extension.Record, c, err = frame.ReadRecord(c, func(c cursor.Cursor) (cursor.Cursor, error) {
		var err error
		f.Extension.SchemaLists, c, err = readSchemaLists(c)
		return c, err
	})
	if err != nil {
		return Footer{}, cursor.Cursor{}, fmt.Errorf("schema extension: %w", err)
	}
	if f.ClusterGroups, c, err = frame.ReadList(c, readClusterGroup); err != nil {
		return Footer{}, cursor.Cursor{}, fmt.Errorf("cluster groups: %w", err)
	}
	return f, c, nil
}

// FooterKind decodes footer envelopes.
var FooterKind = envelope.Kind[Footer]{TypeID: envelope.TypeFooter, Name: "footer", Read: readFooter}

const (
	entriesMask = 1<<56 - 1
	// ClusterSharded is reserved for sharded clusters, which readers must
	// refuse until the format defines them.
	ClusterSharded = 0x01
)

// ClusterSummary is the entry range of one cluster.
type ClusterSummary struct {
	frame.Record
	FirstEntry       uint64
	NEntriesAndFlags uint64
}

// NEntries is the number of entries, the low 56 bits.
func (s ClusterSummary) NEntries() uint64 {
	return s.NEntriesAndFlags & entriesMask
}

// Flags is the cluster feature flag byte, the high 8 bits.
func (s ClusterSummary) Flags() uint8 {
	return uint8(s.NEntriesAndFlags >> 56)
}

func readClusterSummary(c cursor.Cursor) (ClusterSummary, cursor.Cursor, error) {
	var s ClusterSummary
	start := c.Offset()
	rec, c, err := frame.ReadRecord(c, func(c cursor.Cursor) (cursor.Cursor, error) {
		return c.Unpack(cursor.Little, &s.FirstEntry, &s.NEntriesAndFlags)
	})
	if err != nil {
		return ClusterSummary{}, cursor.Cursor{}, err
	}
	s.Record = rec
	if s.Flags()&ClusterSharded != 0 {
		return ClusterSummary{}, cursor.Cursor{}, protocol.NotImplemented(protocol.FeatureShardedClusters,
			fmt.Sprintf("cluster at entry %d, offset %d", s.FirstEntry, start))
	}
	return s, c, nil
}

// PageDescription locates one page. A negative element count marks a page
// followed by an 8-byte checksum.
type PageDescription struct {
	NElements int32
	Locator   locator.Locator
}

// Elements is the number of elements in the page.
func (p PageDescription) Elements() uint64 {
	if p.NElements < 0 {
		return uint64(-int64(p.NElements))
	}
	return uint64(p.NElements)
}

// HasChecksum reports whether the page is followed by a checksum.
func (p PageDescription) HasChecksum() bool {
	return p.NElements < 0
}

func readPageDescription(c cursor.Cursor) (PageDescription, cursor.Cursor, error) {
	var p PageDescription
	var err error
	if p.NElements, c, err = c.I32(cursor.Little); err != nil {
		return PageDescription{}, cursor.Cursor{}, err
	}
	if p.Locator, c, err = locator.Read(c); err != nil {
		return PageDescription{}, cursor.Cursor{}, err
	}
	return p, c, nil
}

// PageLocations are the pages of one column in one cluster, followed by
// the column's element offset and, unless the column is suppressed
// (negative offset), its compression settings.
type PageLocations struct {
	frame.ListFrame[PageDescription]
	ElementOffset  int64
	Compression    uint32
	HasCompression bool
}

// Suppressed reports whether the column has no pages in this cluster.
func (l PageLocations) Suppressed() bool {
	return l.ElementOffset < 0
}

func readPageLocations(c cursor.Cursor) (PageLocations, cursor.Cursor, error) {
	var l PageLocations
	list, c, err := frame.ReadListTail(c, readPageDescription, func(c cursor.Cursor) (cursor.Cursor, error) {
		var err error
		if l.ElementOffset, c, err = c.I64(cursor.Little); err != nil {
			return cursor.Cursor{}, err
		}
		if l.ElementOffset >= 0 {
			if l.Compression, c, err = c.U32(cursor.Little); err != nil {
				return cursor.Cursor{}, err
			}
			l.HasCompression = true
		}
		return c, nil
	})
	l.ListFrame = list
	return l, c, err
}

func readColumnPages(c cursor.Cursor) (frame.ListFrame[PageLocations], cursor.Cursor, error) {
	return frame.ReadList(c, readPageLocations)
}

// PageList is the page-list envelope payload. Locations is indexed by
// cluster, then column, then page.
type PageList struct {
	HeaderChecksum uint64
	Clusters       frame.ListFrame[ClusterSummary]
	Locations      frame.ListFrame[frame.ListFrame[PageLocations]]
}

func readPageList(c cursor.Cursor) (PageList, cursor.Cursor, error) {
	var p PageList
	var err error
	if p.HeaderChecksum, c, err = c.U64(cursor.Little); err != nil {
		return PageList{}, cursor.Cursor{}, err
	}
	if p.Clusters, c, err = frame.ReadList(c, readClusterSummary); err != nil {
		return PageList{}, cursor.Cursor{}, fmt.Errorf("cluster summaries: %w", err)
	}
	if p.Locations, c, err = frame.ReadList(c, readColumnPages); err != nil {
		return PageList{}, cursor.Cursor{}, fmt.Errorf("page locations: %w", err)
	}
	return p, c, nil
}

// PageListKind decodes page-list envelopes.
var PageListKind = envelope.Kind[PageList]{TypeID: envelope.TypePageList, Name: "page_list", Read: readPageList}
