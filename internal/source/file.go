package source

import (
	"context"
	"fmt"
	"io"
	"os"
)

// File reads ranges of a local file with ReadAt, so concurrent fetches do
// not share a file offset.
type File struct {
	f    *os.File
	path string
	size uint64
}

func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: is a directory", path)
	}
	return &File{f: f, path: path, size: uint64(info.Size())}, nil
}

func (s *File) Name() string { return "file" }
func (s *File) Path() string { return s.path }
func (s *File) Size() uint64 { return s.size }

func (s *File) Fetch(ctx context.Context, offset, size uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRange("source.file", offset, size, s.size); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := s.f.ReadAt(buf, int64(offset))
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return nil, fmt.Errorf("read %s at %d: %w", s.path, offset, err)
	}
	return buf, nil
}

func (s *File) Close() error {
	return s.f.Close()
}

// Memory serves fetches from a byte slice.
type Memory struct {
	data []byte
}

func NewMemory(data []byte) *Memory {
	return &Memory{data: data}
}

func (s *Memory) Name() string { return "memory" }
func (s *Memory) Size() uint64 { return uint64(len(s.data)) }
func (s *Memory) Close() error { return nil }

func (s *Memory) Fetch(ctx context.Context, offset, size uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRange("source.memory", offset, size, uint64(len(s.data))); err != nil {
		return nil, err
	}
	return s.data[offset : offset+size : offset+size], nil
}
