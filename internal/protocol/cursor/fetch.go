package cursor

import (
	"context"
	"fmt"

	"github.com/danmuck/rootio/internal/protocol"
)

// Fetcher returns exactly size bytes at offset of the backing medium, or an
// error. It is the only blocking point of a decode.
type Fetcher interface {
	Fetch(ctx context.Context, offset, size uint64) ([]byte, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, offset, size uint64) ([]byte, error)

func (f FetchFunc) Fetch(ctx context.Context, offset, size uint64) ([]byte, error) {
	return f(ctx, offset, size)
}

// Load fetches [offset, offset+size) and returns a cursor positioned on it.
func Load(ctx context.Context, f Fetcher, offset, size uint64) (Cursor, error) {
	data, err := f.Fetch(ctx, offset, size)
	if err != nil {
		return Cursor{}, fmt.Errorf("fetch offset=%d size=%d: %w", offset, size, err)
	}
	if uint64(len(data)) != size {
		return Cursor{}, protocol.Mismatch("fetch", int64(offset), protocol.ErrShortFetch, size, len(data))
	}
	return New(data, int64(offset), 0), nil
}

// Window serves fetches from bytes that were already read, the way a key
// list is resolved from the block fetched for its directory. base is the
// absolute offset of data[0].
func Window(data []byte, base uint64) Fetcher {
	return FetchFunc(func(_ context.Context, offset, size uint64) ([]byte, error) {
		if offset < base || offset-base > uint64(len(data)) || size > uint64(len(data))-(offset-base) {
			return nil, protocol.Mismatch("window", int64(offset), protocol.ErrOutOfRange,
				fmt.Sprintf("[%d, %d)", base, base+uint64(len(data))), fmt.Sprintf("[%d, %d)", offset, offset+size))
		}
		start := offset - base
		return data[start : start+size], nil
	})
}
