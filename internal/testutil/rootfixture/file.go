package rootfixture

import "fmt"

const (
	// Begin is fBEGIN of built files.
	Begin = 100
	// FileVersion is the writer release stamped into built files (6.22/06).
	FileVersion = 62206
	// KeyVersion is the small-seek TKey class version.
	KeyVersion = 4
	// DirVersion is the small-seek TDirectory class version.
	DirVersion = 5

	// Datime is 2024-05-17 12:30:15.
	Datime = uint32(29)<<26 | 5<<22 | 17<<17 | 12<<12 | 30<<6 | 15
)

// KeySpec describes one keyed object.
type KeySpec struct {
	Class, Name, Title string
	Cycle              int16
	Payload            []byte
	// Compress is an algorithm tag; empty stores the payload as is.
	Compress string
}

// DirSpec is a subdirectory and its keys.
type DirSpec struct {
	Name string
	Keys []KeySpec
}

// FileSpec describes a whole file.
type FileSpec struct {
	Name, Title string
	Keys        []KeySpec
	Dirs        []DirSpec
}

// Layout records where a built file put its records.
type Layout struct {
	SeekKeys   int64
	NbytesKeys int32
	NbytesName int32
	SeekInfo   int64
	NbytesInfo int32
	// Keys maps "dir/name;cycle" to the key offset.
	Keys map[string]int64
	// Dirs maps a subdirectory name to its key offset.
	Dirs map[string]int64
}

func tstringLen(s string) int {
	if len(s) < 255 {
		return 1 + len(s)
	}
	return 5 + len(s)
}

// KeyLen is fKeylen of a small-seek key.
func KeyLen(class, name, title string) int {
	return 26 + tstringLen(class) + tstringLen(name) + tstringLen(title)
}

// KeyHeader encodes a small-seek key header.
func KeyHeader(class, name, title string, cycle int16, nbytes, objlen int32, seekKey, seekPdir int64) []byte {
	w := BE()
	w.I32(nbytes).I16(KeyVersion).I32(objlen).U32(Datime)
	w.I16(int16(KeyLen(class, name, title))).I16(cycle)
	w.I32(int32(seekKey)).I32(int32(seekPdir))
	w.TString(class).TString(name).TString(title)
	return w.Bytes()
}

type fileBuilder struct {
	w      *Writer
	layout *Layout
}

// writeKey appends spec at the current end with parent pdir and returns the
// key header bytes.
func (b *fileBuilder) writeKey(spec KeySpec, pdir int64) ([]byte, error) {
	data := spec.Payload
	if spec.Compress != "" {
		var err error
		if data, err = CompressBlock(spec.Compress, spec.Payload); err != nil {
			return nil, fmt.Errorf("key %s: %w", spec.Name, err)
		}
	}
	keylen := KeyLen(spec.Class, spec.Name, spec.Title)
	seek := int64(b.w.Len())
	h := KeyHeader(spec.Class, spec.Name, spec.Title, spec.Cycle, int32(keylen+len(data)), int32(len(spec.Payload)), seek, pdir)
	b.w.Raw(h).Raw(data)
	return h, nil
}

// DirRecord encodes a small-seek TDirectory record with a zero UUID.
func DirRecord(nbytesKeys, nbytesName int32, seekDir, seekParent, seekKeys int64) []byte {
	w := BE()
	w.I16(DirVersion).U32(Datime).U32(Datime).I32(nbytesKeys).I32(nbytesName)
	w.I32(int32(seekDir)).I32(int32(seekParent)).I32(int32(seekKeys))
	w.U16(1).Zeros(16)
	w.Zeros(12)
	return w.Bytes()
}

// dirRecordSeekKeys is the offset of fSeekKeys inside DirRecord; fNbytesKeys
// is at offset 10.
const (
	dirRecordNbytesKeys = 10
	dirRecordSeekKeys   = 26
)

// writeKeyList appends the key list of a directory at seekDir and patches
// the directory record at recordOff.
func (b *fileBuilder) writeKeyList(name string, headers [][]byte, seekDir int64, recordOff int) error {
	payload := BE().I32(int32(len(headers)))
	for _, h := range headers {
		payload.Raw(h)
	}
	seek := b.w.Len()
	h, err := b.writeKey(KeySpec{Class: "TFile", Name: name, Cycle: 1, Payload: payload.Bytes()}, seekDir)
	if err != nil {
		return err
	}
	nbytes := int32(len(h) + payload.Len())
	b.w.PutU32At(recordOff+dirRecordNbytesKeys, uint32(nbytes))
	b.w.PutU32At(recordOff+dirRecordSeekKeys, uint32(seek))
	if seekDir == Begin {
		b.layout.SeekKeys = int64(seek)
		b.layout.NbytesKeys = nbytes
	}
	return nil
}

// BuildFile lays out a small-seek ROOT file: header, top directory key,
// object keys, subdirectories with their own key lists, the top key list, an
// empty streamer-info list and a free-segments gap.
func BuildFile(spec FileSpec) ([]byte, *Layout, error) {
	b := &fileBuilder{w: BE(), layout: &Layout{Keys: map[string]int64{}, Dirs: map[string]int64{}}}
	b.w.Zeros(Begin)

	// Top directory.
	topNamed := tstringLen(spec.Name) + tstringLen(spec.Title)
	topKeylen := KeyLen("TFile", spec.Name, spec.Title)
	nbytesName := int32(topKeylen + topNamed)
	b.layout.NbytesName = nbytesName
	topPayload := BE().TString(spec.Name).TString(spec.Title).Raw(DirRecord(0, nbytesName, Begin, 0, 0)).Bytes()
	if _, err := b.writeKey(KeySpec{Class: "TFile", Name: spec.Name, Title: spec.Title, Cycle: 1, Payload: topPayload}, 0); err != nil {
		return nil, nil, err
	}
	topRecord := Begin + topKeylen + topNamed

	var topHeaders [][]byte
	for _, k := range spec.Keys {
		b.layout.Keys[fmt.Sprintf("%s;%d", k.Name, k.Cycle)] = int64(b.w.Len())
		h, err := b.writeKey(k, Begin)
		if err != nil {
			return nil, nil, err
		}
		topHeaders = append(topHeaders, h)
	}

	for _, d := range spec.Dirs {
		seekDir := int64(b.w.Len())
		b.layout.Dirs[d.Name] = seekDir
		keylen := KeyLen("TDirectory", d.Name, "")
		h, err := b.writeKey(KeySpec{Class: "TDirectory", Name: d.Name, Cycle: 1, Payload: DirRecord(0, int32(keylen), seekDir, Begin, 0)}, Begin)
		if err != nil {
			return nil, nil, err
		}
		topHeaders = append(topHeaders, h)
		record := int(seekDir) + keylen

		var headers [][]byte
		for _, k := range d.Keys {
			b.layout.Keys[fmt.Sprintf("%s/%s;%d", d.Name, k.Name, k.Cycle)] = int64(b.w.Len())
			kh, err := b.writeKey(k, seekDir)
			if err != nil {
				return nil, nil, err
			}
			headers = append(headers, kh)
		}
		if err := b.writeKeyList(d.Name, headers, seekDir, record); err != nil {
			return nil, nil, err
		}
	}

	if err := b.writeKeyList(spec.Name, topHeaders, Begin, topRecord); err != nil {
		return nil, nil, err
	}

	// Streamer info: an empty TList.
	b.layout.SeekInfo = int64(b.w.Len())
	list := Versioned(5, BE().Raw(TObject()).TString("").I32(0).Bytes())
	h, err := b.writeKey(KeySpec{Class: "TList", Name: "StreamerInfo", Title: "Doubly linked list", Cycle: 1, Payload: list}, Begin)
	if err != nil {
		return nil, nil, err
	}
	b.layout.NbytesInfo = int32(len(h) + len(list))

	seekFree := b.w.Len()
	b.w.Zeros(int(nbytesName) + 64)
	end := b.w.Len()

	hw := BE().Raw([]byte("root")).U32(FileVersion)
	hw.I32(Begin).I32(int32(end)).I32(int32(seekFree)).I32(int32(end - seekFree)).I32(1)
	hw.I32(nbytesName).U8(4).I32(1).I32(int32(b.layout.SeekInfo)).I32(b.layout.NbytesInfo)
	hw.U16(4).Raw([]byte("0123456789abcdef"))
	out := b.w.Bytes()
	copy(out, hw.Bytes())
	return out, b.layout, nil
}

// TObject encodes a TObject base with no reference bits.
func TObject() []byte {
	return BE().I16(1).U32(0).U32(0x03000000).Bytes()
}

// Versioned prefixes body with a byte count and a class version.
func Versioned(version int16, body []byte) []byte {
	return BE().U32(uint32(len(body)+2) | 0x40000000).I16(version).Raw(body).Bytes()
}

// NewClass prefixes obj with a byte count and a new-class tag for class.
func NewClass(class string, obj []byte) []byte {
	n := 4 + len(class) + 1 + len(obj)
	return BE().U32(uint32(n) | 0x40000000).U32(0xFFFFFFFF).Raw([]byte(class)).U8(0).Raw(obj).Bytes()
}

// ClassRef prefixes obj with a byte count and a reference to the class tag
// at tagPos.
func ClassRef(tagPos int64, obj []byte) []byte {
	return BE().U32(uint32(4+len(obj)) | 0x40000000).U32(uint32(tagPos+2) | 0x80000000).Raw(obj).Bytes()
}

// TNamed encodes a TNamed.
func TNamed(name, title string) []byte {
	return Versioned(1, BE().Raw(TObject()).TString(name).TString(title).Bytes())
}

// TObjString encodes a TObjString.
func TObjString(s string) []byte {
	return Versioned(1, BE().Raw(TObject()).TString(s).Bytes())
}
