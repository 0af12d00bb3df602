package compression

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec expands one compressed payload. uncompressedSize is the size the
// block header declares; codecs may use it to size buffers but the shim
// checks the result length itself.
type Codec interface {
	Decompress(src []byte, uncompressedSize int) ([]byte, error)
}

// CodecFunc adapts a function to Codec.
type CodecFunc func(src []byte, uncompressedSize int) ([]byte, error)

func (f CodecFunc) Decompress(src []byte, uncompressedSize int) ([]byte, error) {
	return f(src, uncompressedSize)
}

// Codecs selects a codec by algorithm tag.
type Codecs map[Algorithm]Codec

// DefaultCodecs returns the codecs for every algorithm ROOT writes.
func DefaultCodecs() Codecs {
	return Codecs{
		Zlib: CodecFunc(decompressZlib),
		XZ:   CodecFunc(decompressXZ),
		LZ4:  CodecFunc(decompressLZ4),
		Zstd: CodecFunc(decompressZstd),
	}
}

// readBounded reads at most n+1 bytes so oversized output shows up as a
// size mismatch instead of an unbounded allocation.
func readBounded(r io.Reader, n int) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, int64(n)+1))
}

func decompressZlib(src []byte, n int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()
	out, err := readBounded(r, n)
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return out, nil
}

func decompressXZ(src []byte, n int) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("xz: %w", err)
	}
	out, err := readBounded(r, n)
	if err != nil {
		return nil, fmt.Errorf("xz: %w", err)
	}
	return out, nil
}

func decompressLZ4(src []byte, n int) ([]byte, error) {
	dst := make([]byte, n)
	k, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	return dst[:k], nil
}

var (
	zstdOnce    sync.Once
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func decompressZstd(src []byte, n int) ([]byte, error) {
	zstdOnce.Do(func() {
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	if zstdErr != nil {
		return nil, fmt.Errorf("zstd: %w", zstdErr)
	}
	out, err := zstdDecoder.DecodeAll(src, make([]byte, 0, n))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}
