package rootfixture

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// CompressBlock wraps data in one ROOT compression block of the given
// algorithm tag ("ZL", "XZ", "L4", "ZS").
func CompressBlock(tag string, data []byte) ([]byte, error) {
	var (
		payload []byte
		method  byte
		err     error
	)
	switch tag {
	case "ZL":
		method = 8
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err = zw.Write(data); err == nil {
			err = zw.Close()
		}
		payload = buf.Bytes()
	case "XZ":
		var buf bytes.Buffer
		var xw *xz.Writer
		if xw, err = xz.NewWriter(&buf); err == nil {
			if _, err = xw.Write(data); err == nil {
				err = xw.Close()
			}
		}
		payload = buf.Bytes()
	case "L4":
		method = 1
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		var n int
		n, err = lz4.CompressBlock(data, dst, nil)
		if err == nil && n == 0 {
			err = fmt.Errorf("lz4: data is incompressible")
		}
		sum := binary.BigEndian.AppendUint64(nil, xxhash.Sum64(dst[:n]))
		payload = append(sum, dst[:n]...)
	case "ZS":
		method = 1
		var enc *zstd.Encoder
		if enc, err = zstd.NewWriter(nil); err == nil {
			payload = enc.EncodeAll(data, nil)
			err = enc.Close()
		}
	default:
		err = fmt.Errorf("unknown algorithm %q", tag)
	}
	if err != nil {
		return nil, err
	}
	return Block(tag, method, payload, len(data)), nil
}

// Block frames an already-compressed payload with a block header.
func Block(tag string, method byte, payload []byte, uncompressed int) []byte {
	out := make([]byte, 0, 9+len(payload))
	out = append(out, tag[0], tag[1], method)
	out = append(out, byte(len(payload)), byte(len(payload)>>8), byte(len(payload)>>16))
	out = append(out, byte(uncompressed), byte(uncompressed>>8), byte(uncompressed>>16))
	return append(out, payload...)
}
