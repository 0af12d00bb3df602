package server

import (
	"time"

	"github.com/danmuck/rootio/internal/rntuple"
	"github.com/danmuck/rootio/internal/rootfile"
)

type FileView struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Version     string `json:"version"`
	Begin       int32  `json:"begin"`
	End         int64  `json:"end"`
	Compression int32  `json:"compression"`
	SeekInfo    int64  `json:"seek_info"`
	UUID        string `json:"uuid"`
}

func describeFile(f *rootfile.File) FileView {
	h := f.Header
	return FileView{
		Name:        f.Top.Name,
		Title:       f.Top.Title,
		Version:     h.Version.String(),
		Begin:       h.Begin,
		End:         h.End,
		Compression: h.Compress,
		SeekInfo:    h.SeekInfo,
		UUID:        h.UUID.ID.String(),
	}
}

type KeyView struct {
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	Class      string    `json:"class"`
	Cycle      int16     `json:"cycle"`
	Nbytes     int32     `json:"nbytes"`
	Objlen     int32     `json:"objlen"`
	Keylen     int16     `json:"keylen"`
	SeekKey    int64     `json:"seek_key"`
	Compressed bool      `json:"compressed"`
	Written    time.Time `json:"written"`
}

func describeKeys(keys *rootfile.KeyList) []KeyView {
	out := make([]KeyView, 0, keys.Len())
	for _, k := range keys.Keys {
		out = append(out, KeyView{
			Name:       k.Name,
			Title:      k.Title,
			Class:      k.ClassName,
			Cycle:      k.Cycle,
			Nbytes:     k.Nbytes,
			Objlen:     k.Objlen,
			Keylen:     k.Keylen,
			SeekKey:    k.SeekKey,
			Compressed: k.IsCompressed(),
			Written:    k.Datime.Time(),
		})
	}
	return out
}

type FieldView struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Parent   uint32 `json:"parent"`
	Role     uint16 `json:"role"`
	Flags    uint16 `json:"flags"`
	Columns  []int  `json:"columns"`
	TypeDesc string `json:"description,omitempty"`
}

type ColumnView struct {
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Bits  uint16 `json:"bits"`
	Field uint32 `json:"field"`
}

type ClusterGroupView struct {
	MinEntry  uint64 `json:"min_entry"`
	EntrySpan uint64 `json:"entry_span"`
	Clusters  uint32 `json:"clusters"`
	PageList  string `json:"page_list"`
}

type ClusterView struct {
	Group      int    `json:"group"`
	FirstEntry uint64 `json:"first_entry"`
	Entries    uint64 `json:"entries"`
}

type PageView struct {
	Group        int    `json:"group"`
	Cluster      int    `json:"cluster"`
	Column       int    `json:"column"`
	Elements     uint64 `json:"elements"`
	Offset       uint64 `json:"offset"`
	Size         uint64 `json:"size"`
	Uncompressed uint64 `json:"uncompressed"`
	Checksum     bool   `json:"checksum"`
}

type RNTupleView struct {
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Library       string             `json:"library"`
	Version       string             `json:"version"`
	Entries       uint64             `json:"entries"`
	Fields        []FieldView        `json:"fields"`
	Columns       []ColumnView       `json:"columns"`
	ClusterGroups []ClusterGroupView `json:"cluster_groups"`
	Clusters      []ClusterView      `json:"clusters"`
	Pages         []PageView         `json:"pages"`
}

func describeRNTuple(nt *rntuple.RNTuple) (RNTupleView, error) {
	pages, err := nt.Pages()
	if err != nil {
		return RNTupleView{}, err
	}
	h := nt.Header.Payload
	schema := nt.Schema()
	view := RNTupleView{
		Name:        h.Name,
		Description: h.Description,
		Library:     h.Library,
		Version:     nt.Anchor.Version(),
		Entries:     nt.Entries(),
	}
	for i, f := range schema.Fields {
		view.Fields = append(view.Fields, FieldView{
			ID:       i,
			Name:     f.FieldName,
			Type:     f.TypeName,
			Parent:   f.ParentFieldID,
			Role:     f.StructuralRole,
			Flags:    f.Flags,
			Columns:  schema.ColumnsOf(uint32(i)),
			TypeDesc: f.Description,
		})
	}
	for i, c := range schema.Columns {
		view.Columns = append(view.Columns, ColumnView{ID: i, Type: c.Type.String(), Bits: c.BitsOnStorage, Field: c.FieldID})
	}
	for _, g := range nt.Footer.Payload.ClusterGroups.Items {
		view.ClusterGroups = append(view.ClusterGroups, ClusterGroupView{
			MinEntry:  g.MinEntry,
			EntrySpan: g.EntrySpan,
			Clusters:  g.NClusters,
			PageList:  g.PageList.Locator.String(),
		})
	}
	for gi, pl := range nt.PageLists {
		for _, cs := range pl.Payload.Clusters.Items {
			view.Clusters = append(view.Clusters, ClusterView{Group: gi, FirstEntry: cs.FirstEntry, Entries: cs.NEntries()})
		}
	}
	for _, p := range pages {
		view.Pages = append(view.Pages, PageView{
			Group:        p.Group,
			Cluster:      p.Cluster,
			Column:       p.Column,
			Elements:     p.Elements(),
			Offset:       p.Locator.Offset,
			Size:         p.Locator.Size,
			Uncompressed: p.UncompressedSize,
			Checksum:     p.HasChecksum(),
		})
	}
	return view, nil
}
