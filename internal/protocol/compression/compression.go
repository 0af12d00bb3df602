// Package compression unwraps ROOT compression blocks.
//
// A block is a 9-byte header (2-byte algorithm tag, method byte, 3-byte
// little-endian compressed size, 3-byte little-endian uncompressed size)
// followed by the compressed bytes. LZ4 blocks carry an extra 8-byte XXH64
// checksum of the compressed bytes right after the header, counted in the
// compressed size.
package compression

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/danmuck/rootio/internal/observability"
	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/rs/zerolog/log"
)

const (
	HeaderSize   = 9
	ChecksumSize = 8
	// MaxBlockSize is the largest size the 3-byte fields can express.
	MaxBlockSize = 1<<24 - 1
)

// Algorithm is the two-character tag that opens a block.
type Algorithm string

const (
	Zlib Algorithm = "ZL"
	XZ   Algorithm = "XZ"
	LZ4  Algorithm = "L4"
	Zstd Algorithm = "ZS"
)

// HasChecksum reports whether blocks of a carry an inline checksum.
func (a Algorithm) HasChecksum() bool {
	return a == LZ4
}

// Header is the fixed block header.
type Header struct {
	Algorithm        Algorithm
	Method           uint8
	CompressedSize   uint32
	UncompressedSize uint32
}

// Block is one unwrapped compression block.
type Block struct {
	Header
	Checksum    uint64
	HasChecksum bool
	Data        []byte
}

// ReadHeader decodes the fixed block header.
func ReadHeader(c cursor.Cursor) (Header, cursor.Cursor, error) {
	tag, c, err := c.ConsumeView(2)
	if err != nil {
		return Header{}, cursor.Cursor{}, err
	}
	h := Header{Algorithm: Algorithm(tag)}
	if h.Method, c, err = c.U8(); err != nil {
		return Header{}, cursor.Cursor{}, err
	}
	if h.CompressedSize, c, err = c.U24LE(); err != nil {
		return Header{}, cursor.Cursor{}, err
	}
	if h.UncompressedSize, c, err = c.U24LE(); err != nil {
		return Header{}, cursor.Cursor{}, err
	}
	return h, c, nil
}

// Unwrap reads one block from c and decompresses it with the codec
// registered for its algorithm tag.
func Unwrap(c cursor.Cursor, codecs Codecs) (Block, cursor.Cursor, error) {
	start := c.Offset()
	h, c, err := ReadHeader(c)
	if err != nil {
		return Block{}, cursor.Cursor{}, err
	}
	block := Block{Header: h}
	size := int(h.CompressedSize)
	if h.Algorithm.HasChecksum() {
		if size < ChecksumSize {
			return Block{}, cursor.Cursor{}, protocol.Mismatch("compression.header", start, protocol.ErrMalformedHeader,
				fmt.Sprintf("compressed size >= %d", ChecksumSize), size)
		}
		if block.Checksum, c, err = c.U64(cursor.Big); err != nil {
			return Block{}, cursor.Cursor{}, err
		}
		block.HasChecksum = true
		size -= ChecksumSize
	}
	payload, c, err := c.ConsumeView(size)
	if err != nil {
		return Block{}, cursor.Cursor{}, err
	}
	if block.HasChecksum {
		if sum := xxhash.Sum64(payload); sum != block.Checksum {
			observability.RecordDecompression(string(h.Algorithm), false)
			return Block{}, cursor.Cursor{}, protocol.Mismatch("compression.checksum", start, protocol.ErrChecksumMismatch, block.Checksum, sum)
		}
	}

	codec, ok := codecs[h.Algorithm]
	if !ok {
		return Block{}, cursor.Cursor{}, protocol.NotImplemented("CompressionAlgorithm", fmt.Sprintf("%q", string(h.Algorithm)))
	}
	out, err := codec.Decompress(payload, int(h.UncompressedSize))
	if err != nil {
		observability.RecordDecompression(string(h.Algorithm), false)
		return Block{}, cursor.Cursor{}, &protocol.DecodeError{
			Op:     "compression." + string(h.Algorithm),
			Offset: start,
			Err:    fmt.Errorf("%w: %v", protocol.ErrMalformedHeader, err),
		}
	}
	if len(out) != int(h.UncompressedSize) {
		observability.RecordDecompression(string(h.Algorithm), false)
		return Block{}, cursor.Cursor{}, protocol.Mismatch("compression."+string(h.Algorithm), start, protocol.ErrSizeMismatch, h.UncompressedSize, len(out))
	}
	observability.RecordDecompression(string(h.Algorithm), true)
	block.Data = out
	return block, c, nil
}

// Decompress unwraps the single block that makes up all of c and checks it
// expands to exactly expected bytes.
func Decompress(c cursor.Cursor, expected uint64, codecs Codecs) ([]byte, error) {
	start := c.Offset()
	block, rest, err := Unwrap(c, codecs)
	if err != nil {
		return nil, err
	}
	if uint64(block.UncompressedSize) != expected {
		return nil, protocol.Mismatch("compression.decompress", start, protocol.ErrSizeMismatch, expected, block.UncompressedSize)
	}
	if !rest.Empty() {
		return nil, protocol.Mismatch("compression.decompress", rest.Offset(), protocol.ErrTrailingData, 0, rest.Len())
	}
	log.Debug().
		Str("algorithm", string(block.Algorithm)).
		Uint32("compressed", block.CompressedSize).
		Uint32("uncompressed", block.UncompressedSize).
		Msg("compression block unwrapped")
	return block.Data, nil
}
