package rntuple

import (
	"context"
	"fmt"

	"github.com/danmuck/rootio/internal/observability"
	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/compression"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/envelope"
	"github.com/danmuck/rootio/internal/protocol/locator"
	"github.com/danmuck/rootio/internal/rootfile"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// RNTuple is an assembled RNTuple: the anchor and every envelope it
// reaches.
type RNTuple struct {
	Anchor    *rootfile.Anchor
	Header    envelope.Envelope[Header]
	Footer    envelope.Envelope[Footer]
	PageLists []envelope.Envelope[PageList]
}

// Options tunes Open.
type Options struct {
	// Parallelism bounds concurrent page-list fetches; <= 0 means one per
	// cluster group.
	Parallelism int
}

// HeaderLink addresses the header envelope of a.
func HeaderLink(a *rootfile.Anchor) envelope.Link {
	return envelope.Link{Length: a.LenHeader, Locator: locator.Large(a.NBytesHeader, a.SeekHeader)}
}

// FooterLink addresses the footer envelope of a.
func FooterLink(a *rootfile.Anchor) envelope.Link {
	return envelope.Link{Length: a.LenFooter, Locator: locator.Large(a.NBytesFooter, a.SeekFooter)}
}

// Open reads the header, footer and page-list envelopes of the RNTuple
// anchored by a, and cross-checks the header checksum each one records.
func Open(ctx context.Context, a *rootfile.Anchor, f cursor.Fetcher, opts Options) (*RNTuple, error) {
	nt, err := open(ctx, a, f, opts)
	if err != nil {
		observability.RecordDecodeFailure("rntuple", protocol.KindOf(err))
		return nil, err
	}
	return nt, nil
}

func open(ctx context.Context, a *rootfile.Anchor, f cursor.Fetcher, opts Options) (*RNTuple, error) {
	header, err := envelope.Resolve(ctx, f, HeaderLink(a), HeaderKind)
	if err != nil {
		return nil, protocol.WithPath(err, "header")
	}
	footer, err := envelope.Resolve(ctx, f, FooterLink(a), FooterKind)
	if err != nil {
		return nil, protocol.WithPath(err, "footer")
	}
	if footer.Payload.HeaderChecksum != header.Checksum {
		return nil, &protocol.DecodeError{
			Op: "rntuple", Path: "footer", Offset: int64(a.SeekFooter),
			Expected: header.Checksum, Found: footer.Payload.HeaderChecksum, Err: protocol.ErrConsistency,
		}
	}
	nt := &RNTuple{Anchor: a, Header: header, Footer: footer}
	if err := envelope.CheckFeatureFlags(nt.FeatureFlags()); err != nil {
		return nil, err
	}

	groups := footer.Payload.ClusterGroups.Items
	nt.PageLists = make([]envelope.Envelope[PageList], len(groups))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			path := fmt.Sprintf("page_list[%d]", i)
			pl, err := envelope.Resolve(gctx, f, group.PageList, PageListKind)
			if err != nil {
				return protocol.WithPath(err, path)
			}
			if pl.Payload.HeaderChecksum != header.Checksum {
				return &protocol.DecodeError{
					Op: "rntuple", Path: path, Offset: int64(group.PageList.Locator.Offset),
					Expected: header.Checksum, Found: pl.Payload.HeaderChecksum, Err: protocol.ErrConsistency,
				}
			}
			nt.PageLists[i] = pl
			log.Debug().
				Int("group", i).
				Int("clusters", pl.Payload.Clusters.Len()).
				Str("locator", group.PageList.Locator.String()).
				Msg("page list read")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debug().
		Str("name", header.Payload.Name).
		Int("fields", header.Payload.Fields.Len()).
		Int("columns", header.Payload.Columns.Len()).
		Int("cluster_groups", len(groups)).
		Msg("rntuple opened")
	return nt, nil
}

// FromFile resolves the anchor stored under path in file and opens it.
func FromFile(ctx context.Context, file *rootfile.File, path string, opts Options) (*RNTuple, error) {
	obj, err := file.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	a, ok := obj.Value.(*rootfile.Anchor)
	if !ok {
		return nil, &protocol.DecodeError{
			Op: "rntuple", Path: path, Offset: obj.Key.SeekKey,
			Expected: rootfile.AnchorClass, Found: obj.Class, Err: protocol.ErrConsistency,
		}
	}
	return Open(ctx, a, file.Reader().Fetch, opts)
}

// Name is the RNTuple name recorded in the header.
func (nt *RNTuple) Name() string {
	return nt.Header.Payload.Name
}

// FeatureFlags is the union of the header and footer feature flags.
func (nt *RNTuple) FeatureFlags() uint64 {
	return nt.Header.Payload.FeatureFlags | nt.Footer.Payload.FeatureFlags
}

// Schema merges the header schema with the footer's extension.
func (nt *RNTuple) Schema() Schema {
	return MergeSchema(nt.Header.Payload.SchemaLists, nt.Footer.Payload.Extension.SchemaLists)
}

// Entries is the total entry count over all cluster groups.
func (nt *RNTuple) Entries() uint64 {
	var n uint64
	for _, g := range nt.Footer.Payload.ClusterGroups.Items {
		n += g.EntrySpan
	}
	return n
}

// Page is a page description tied to its column, with its position in the
// page-list hierarchy.
type Page struct {
	PageDescription
	Group   int
	Cluster int
	Column  int
	Index   int
	Type    ColumnType
	// UncompressedSize is ceil(elements * bitsOnStorage / 8).
	UncompressedSize uint64
}

// Pages lists every page of every column in every cluster. Columns are
// matched to the schema by position.
func (nt *RNTuple) Pages() ([]Page, error) {
	columns := nt.Schema().Columns
	var pages []Page
	for gi, pl := range nt.PageLists {
		for ci, cluster := range pl.Payload.Locations.Items {
			if len(cluster.Items) > len(columns) {
				return nil, &protocol.DecodeError{
					Op: "rntuple.pages", Path: fmt.Sprintf("page_list[%d]/cluster[%d]", gi, ci), Offset: protocol.NoOffset,
					Expected: fmt.Sprintf("<= %d columns", len(columns)), Found: len(cluster.Items), Err: protocol.ErrConsistency,
				}
			}
			for col, locs := range cluster.Items {
				desc := columns[col]
				for pi, p := range locs.Items {
					pages = append(pages, Page{
						PageDescription:  p,
						Group:            gi,
						Cluster:          ci,
						Column:           col,
						Index:            pi,
						Type:             desc.Type,
						UncompressedSize: (p.Elements()*uint64(desc.BitsOnStorage) + 7) / 8,
					})
				}
			}
		}
	}
	return pages, nil
}

// ReadPage fetches a page and decompresses it when its stored size differs
// from its uncompressed size.
func ReadPage(ctx context.Context, f cursor.Fetcher, codecs compression.Codecs, p Page) ([]byte, error) {
	c, err := p.Locator.Load(ctx, f)
	if err != nil {
		return nil, err
	}
	if uint64(c.Len()) == p.UncompressedSize {
		out, _ := c.Rest()
		return out, nil
	}
	return compression.Decompress(c, p.UncompressedSize, codecs)
}

// ReadPageChecksum reads the checksum stored after a page.
func ReadPageChecksum(ctx context.Context, f cursor.Fetcher, p PageDescription) (uint64, error) {
	if !p.HasChecksum() {
		return 0, fmt.Errorf("%w: page at %d has no checksum", protocol.ErrOutOfRange, p.Locator.Offset)
	}
	c, err := cursor.Load(ctx, f, p.Locator.Offset+p.Locator.Size, envelope.ChecksumLen)
	if err != nil {
		return 0, err
	}
	sum, _, err := c.U64(cursor.Little)
	return sum, err
}
