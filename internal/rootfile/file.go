package rootfile

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/registry"
	"github.com/rs/zerolog/log"
)

const (
	magic = "root"

	// headerProbe is fetched first; fBEGIN is 100 for every writer since
	// 6.22, and smaller for older files.
	headerProbe = 100

	// largeFileVersion is added to the file version when seeks are 64-bit.
	largeFileVersion = 1000000
)

// FileVersion is the writer release recorded in the file header.
type FileVersion struct {
	Major, Minor, Cycle int
	Large               bool
}

func parseFileVersion(v uint32) FileVersion {
	return FileVersion{
		Major: int(v / 10000 % 100),
		Minor: int(v / 100 % 100),
		Cycle: int(v % 100),
		Large: v > largeFileVersion,
	}
}

// legacy reports releases up to 6.02/02, whose header stores the UUID as 16
// raw bytes.
func (v FileVersion) legacy() bool {
	return v.Major < 6 || (v.Major == 6 && (v.Minor < 2 || (v.Minor == 2 && v.Cycle <= 2)))
}

func (v FileVersion) String() string {
	return fmt.Sprintf("%d.%02d/%02d", v.Major, v.Minor, v.Cycle)
}

// FileHeader is the fixed record at offset 0.
type FileHeader struct {
	Version    FileVersion
	RawVersion uint32
	Begin      int32
	End        int64
	SeekFree   int64
	NbytesFree int32
	NFree      int32
	NbytesName int32
	Units      uint8
	Compress   int32
	SeekInfo   int64
	NbytesInfo int32
	UUID       UUID
	Padding    []byte
}

// ReadFileHeader decodes the header and the padding up to fBEGIN. c must
// start at file offset 0 and hold at least fBEGIN bytes.
func ReadFileHeader(c cursor.Cursor) (*FileHeader, cursor.Cursor, error) {
	start := c
	m, c, err := c.ConsumeView(len(magic))
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	if string(m) != magic {
		return nil, cursor.Cursor{}, protocol.Mismatch("file_header", start.Offset(), protocol.ErrMalformedHeader, magic, fmt.Sprintf("%q", m))
	}
	h := &FileHeader{}
	if h.RawVersion, c, err = c.U32(cursor.Big); err != nil {
		return nil, cursor.Cursor{}, err
	}
	h.Version = parseFileVersion(h.RawVersion)

	if h.Version.Large {
		c, err = c.Unpack(cursor.Big, &h.Begin, &h.End, &h.SeekFree, &h.NbytesFree, &h.NFree, &h.NbytesName, &h.Units, &h.Compress, &h.SeekInfo, &h.NbytesInfo)
	} else {
		var end, seekFree, seekInfo int32
		c, err = c.Unpack(cursor.Big, &h.Begin, &end, &seekFree, &h.NbytesFree, &h.NFree, &h.NbytesName, &h.Units, &h.Compress, &seekInfo, &h.NbytesInfo)
		h.End, h.SeekFree, h.SeekInfo = int64(end), int64(seekFree), int64(seekInfo)
	}
	if err != nil {
		return nil, cursor.Cursor{}, err
	}

	if h.Version.legacy() {
		var raw []byte
		if raw, c, err = c.Consume(16); err != nil {
			return nil, cursor.Cursor{}, err
		}
		copy(h.UUID.ID[:], raw)
	} else if h.UUID, c, err = ReadUUID(c); err != nil {
		return nil, cursor.Cursor{}, err
	}

	pad := int64(h.Begin) - (c.RelPos() - start.RelPos())
	if pad < 0 {
		return nil, cursor.Cursor{}, protocol.Mismatch("file_header", start.Offset(), protocol.ErrMalformedHeader,
			fmt.Sprintf("fBEGIN >= %d", c.RelPos()-start.RelPos()), h.Begin)
	}
	if h.Padding, c, err = c.Consume(int(pad)); err != nil {
		return nil, cursor.Cursor{}, err
	}
	return h, c, nil
}

// TFile is the top directory record, which carries its own name and title.
type TFile struct {
	Name      string
	Title     string
	Directory *Directory
}

func ReadTFile(c cursor.Cursor) (*TFile, cursor.Cursor, error) {
	f := &TFile{}
	var err error
	if f.Name, c, err = ReadTString(c); err != nil {
		return nil, cursor.Cursor{}, err
	}
	if f.Title, c, err = ReadTString(c); err != nil {
		return nil, cursor.Cursor{}, err
	}
	if f.Directory, c, err = ReadDirectory(c); err != nil {
		return nil, cursor.Cursor{}, err
	}
	return f, c, nil
}

// File is an opened ROOT file: the header and the top directory.
type File struct {
	Header *FileHeader
	Key    *Key
	Top    *TFile

	r Reader
}

// Open reads the file header and the top directory through r.
func Open(ctx context.Context, r Reader) (*File, error) {
	c, err := cursor.Load(ctx, r.Fetch, 0, headerProbe)
	if err != nil {
		return nil, fmt.Errorf("file header: %w", err)
	}
	if begin, err := peekBegin(c); err == nil && begin > headerProbe {
		extra, err := cursor.Load(ctx, r.Fetch, headerProbe, uint64(begin-headerProbe))
		if err != nil {
			return nil, fmt.Errorf("file header: %w", err)
		}
		c = cursor.New(append(c.Bytes()[:headerProbe:headerProbe], extra.Bytes()...), 0, 0)
	}
	header, _, err := ReadFileHeader(c)
	if err != nil {
		return nil, protocol.WithPath(err, "file_header")
	}

	kc, err := cursor.Load(ctx, r.Fetch, uint64(header.Begin), uint64(header.NbytesName))
	if err != nil {
		return nil, fmt.Errorf("top key: %w", err)
	}
	key, _, err := ReadKey(kc)
	if err != nil {
		return nil, err
	}
	if key.SeekKey != int64(header.Begin) {
		return nil, &protocol.DecodeError{
			Op: "open", Path: key.Name, Offset: int64(header.Begin),
			Expected: fmt.Sprintf("fSeekKey == fBEGIN (%d)", header.Begin), Found: key.SeekKey, Err: protocol.ErrConsistency,
		}
	}
	if key.SeekPdir != 0 {
		return nil, &protocol.DecodeError{
			Op: "open", Path: key.Name, Offset: int64(header.Begin),
			Expected: "fSeekPdir == 0", Found: key.SeekPdir, Err: protocol.ErrConsistency,
		}
	}
	obj, err := key.ReadObject(ctx, r, &tfileType)
	if err != nil {
		return nil, err
	}
	top := obj.Value.(*TFile)
	log.Debug().
		Str("version", header.Version.String()).
		Str("name", top.Name).
		Int64("seek_keys", top.Directory.SeekKeys).
		Msg("file opened")
	return &File{Header: header, Key: key, Top: top, r: r}, nil
}

func peekBegin(c cursor.Cursor) (int32, error) {
	c, err := c.Skip(len(magic) + 4)
	if err != nil {
		return 0, err
	}
	begin, _, err := c.I32(cursor.Big)
	return begin, err
}

// Reader returns the reader the file was opened with.
func (f *File) Reader() Reader {
	return f.r
}

// Keys lists the top directory.
func (f *File) Keys(ctx context.Context) (*KeyList, error) {
	return f.Top.Directory.Keys(ctx, f.r)
}

// Dir resolves a slash-separated subdirectory path. The empty path is the
// top directory.
func (f *File) Dir(ctx context.Context, path string) (*Directory, error) {
	dir := f.Top.Directory
	walked := ""
	for _, part := range splitPath(path) {
		parent := walked
		walked = joinPath(walked, part)
		keys, err := dir.Keys(ctx, f.r)
		if err != nil {
			return nil, protocol.WithPath(err, walked)
		}
		key, err := keys.Lookup(part)
		if err != nil {
			return nil, protocol.WithPath(err, walked)
		}
		obj, err := key.ReadObject(ctx, f.r, nil)
		if err != nil {
			return nil, protocol.WithPath(err, parent)
		}
		sub, ok := obj.Value.(*Directory)
		if !ok {
			return nil, &protocol.DecodeError{
				Op: "dir", Path: walked, Offset: key.SeekKey,
				Expected: "directory", Found: key.ClassName, Err: protocol.ErrConsistency,
			}
		}
		dir = sub
	}
	return dir, nil
}

// Get resolves "a/b/name" to the highest cycle of name in directory a/b and
// decodes it.
func (f *File) Get(ctx context.Context, path string) (*Object, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrKeyNotFound)
	}
	dirPath := strings.Join(parts[:len(parts)-1], "/")
	name := parts[len(parts)-1]
	key, err := f.Lookup(ctx, dirPath, name)
	if err != nil {
		return nil, err
	}
	obj, err := key.ReadObject(ctx, f.r, nil)
	if err != nil {
		return nil, protocol.WithPath(err, dirPath)
	}
	return obj, nil
}

// Lookup returns the most recent key named name in directory dirPath.
func (f *File) Lookup(ctx context.Context, dirPath, name string) (*Key, error) {
	dir, err := f.Dir(ctx, dirPath)
	if err != nil {
		return nil, err
	}
	keys, err := dir.Keys(ctx, f.r)
	if err != nil {
		return nil, protocol.WithPath(err, dirPath)
	}
	key, err := keys.Lookup(name)
	if err != nil {
		return nil, protocol.WithPath(err, joinPath(dirPath, name))
	}
	return key, nil
}

// StreamerInfo returns the decompressed payload of the streamer-info record,
// for schema resolution outside this package.
func (f *File) StreamerInfo(ctx context.Context) ([]byte, *Key, error) {
	h := f.Header
	c, err := cursor.Load(ctx, f.r.Fetch, uint64(h.SeekInfo), uint64(h.NbytesInfo))
	if err != nil {
		return nil, nil, fmt.Errorf("streamer info: %w", err)
	}
	block := c.Bytes()
	key, _, err := ReadKey(c)
	if err != nil {
		return nil, nil, err
	}
	if key.SeekKey != h.SeekInfo {
		return nil, nil, &protocol.DecodeError{
			Op: "streamer_info", Path: key.Name, Offset: h.SeekInfo,
			Expected: fmt.Sprintf("fSeekKey == fSeekInfo (%d)", h.SeekInfo), Found: key.SeekKey, Err: protocol.ErrConsistency,
		}
	}
	if key.Nbytes != h.NbytesInfo {
		return nil, nil, &protocol.DecodeError{
			Op: "streamer_info", Path: key.Name, Offset: h.SeekInfo,
			Expected: fmt.Sprintf("fNbytes == fNbytesInfo (%d)", h.NbytesInfo), Found: key.Nbytes, Err: protocol.ErrConsistency,
		}
	}
	obj, err := key.ReadObject(ctx, f.r.WithFetcher(cursor.Window(block, uint64(h.SeekInfo))), &RawType)
	if err != nil {
		return nil, nil, err
	}
	return obj.Value.([]byte), key, nil
}

// RawType decodes any payload to its bytes.
var RawType = registry.Type{
	Name: "raw",
	Decode: func(_ *registry.Registry, c cursor.Cursor) (any, cursor.Cursor, error) {
		b, rest := c.Rest()
		return b, rest, nil
	},
}

var tfileType = registry.Type{
	Name: "TFile",
	Decode: func(_ *registry.Registry, c cursor.Cursor) (any, cursor.Cursor, error) {
		return ReadTFile(c)
	},
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
