package source

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/rootio/internal/config"
	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/testutil/testlog"
)

func sampleBytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i * 7)
	}
	return out
}

func writeSample(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.root")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestFileFetch(t *testing.T) {
	testlog.Start(t)
	data := sampleBytes(512)
	src, err := OpenFile(writeSample(t, data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	if src.Size() != 512 {
		t.Fatalf("unexpected size: %d", src.Size())
	}
	got, err := src.Fetch(context.Background(), 100, 50)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, data[100:150]) {
		t.Fatalf("unexpected bytes")
	}
	got, err = src.Fetch(context.Background(), 500, 12)
	if err != nil || !bytes.Equal(got, data[500:]) {
		t.Fatalf("fetch to end: %v", err)
	}
	if _, err := src.Fetch(context.Background(), 500, 13); !errors.Is(err, protocol.ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Fetch(ctx, 0, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestOpenFileErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.root")); err == nil {
		t.Fatalf("expected missing file error")
	}
	if _, err := OpenFile(t.TempDir()); err == nil || !strings.Contains(err.Error(), "directory") {
		t.Fatalf("expected directory error, got %v", err)
	}
}

func TestMemoryFetch(t *testing.T) {
	testlog.Start(t)
	data := sampleBytes(64)
	src := NewMemory(data)
	got, err := src.Fetch(context.Background(), 60, 4)
	if err != nil || !bytes.Equal(got, data[60:]) {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := src.Fetch(context.Background(), 65, 0); !errors.Is(err, protocol.ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	// cursor.Load rejects short fetches on top of the range check
	if _, err := cursor.Load(context.Background(), src, 0, 64); err != nil {
		t.Fatalf("load: %v", err)
	}
}

type countingFetcher struct {
	src   *Memory
	calls atomic.Int64
}

func (f *countingFetcher) Fetch(ctx context.Context, offset, size uint64) ([]byte, error) {
	f.calls.Add(1)
	return f.src.Fetch(ctx, offset, size)
}

func TestCacheHitsAndCopies(t *testing.T) {
	testlog.Start(t)
	data := sampleBytes(256)
	next := &countingFetcher{src: NewMemory(data)}
	cache, err := NewCache(next, config.CacheConfig{MaxBytes: 1024, MaxEntries: 8})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	first, err := cache.Fetch(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	first[0] ^= 0xFF
	second, err := cache.Fetch(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(second, data[10:30]) {
		t.Fatalf("cached bytes were modified through a returned slice")
	}
	if next.calls.Load() != 1 {
		t.Fatalf("expected one underlying fetch, got %d", next.calls.Load())
	}
	// a sub-range is a different key
	if _, err := cache.Fetch(context.Background(), 10, 10); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Entries != 2 || stats.Bytes != 30 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCacheEvictsByBytesAndEntries(t *testing.T) {
	testlog.Start(t)
	next := &countingFetcher{src: NewMemory(sampleBytes(1024))}
	cache, err := NewCache(next, config.CacheConfig{MaxBytes: 100, MaxEntries: 3})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	ctx := context.Background()
	for _, off := range []uint64{0, 40, 80} {
		if _, err := cache.Fetch(ctx, off, 40); err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	stats := cache.Stats()
	if stats.Entries != 2 || stats.Bytes != 80 {
		t.Fatalf("expected byte bound to evict, got %+v", stats)
	}
	for _, off := range []uint64{200, 210, 220} {
		if _, err := cache.Fetch(ctx, off, 5); err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	stats = cache.Stats()
	if stats.Entries != 3 || stats.Bytes != 15 {
		t.Fatalf("expected entry bound to evict, got %+v", stats)
	}
	if _, err := cache.Fetch(ctx, 0, 101); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if cache.Stats().Bytes != 15 {
		t.Fatalf("oversized range should not be cached: %+v", cache.Stats())
	}
	cache.Purge()
	if stats := cache.Stats(); stats.Entries != 0 || stats.Bytes != 0 {
		t.Fatalf("expected empty cache after purge, got %+v", stats)
	}
}

func TestCacheDoesNotKeepErrors(t *testing.T) {
	testlog.Start(t)
	next := &countingFetcher{src: NewMemory(sampleBytes(8))}
	cache, err := NewCache(next, config.CacheConfig{MaxBytes: 64, MaxEntries: 4})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := cache.Fetch(context.Background(), 4, 8); !errors.Is(err, protocol.ErrOutOfRange) {
			t.Fatalf("expected out of range, got %v", err)
		}
	}
	if next.calls.Load() != 2 {
		t.Fatalf("failed fetches must not be cached, calls=%d", next.calls.Load())
	}
	if _, err := NewCache(next, config.CacheConfig{}); err == nil {
		t.Fatalf("expected disabled cache error")
	}
}

// gatedFetcher blocks every fetch until release is closed.
type gatedFetcher struct {
	src     *Memory
	started chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func (f *gatedFetcher) Fetch(ctx context.Context, offset, size uint64) ([]byte, error) {
	if f.calls.Add(1) == 1 {
		close(f.started)
	}
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return f.src.Fetch(ctx, offset, size)
}

func TestCacheWaiterSurvivesFirstCallerCancel(t *testing.T) {
	testlog.Start(t)
	data := sampleBytes(64)
	next := &gatedFetcher{src: NewMemory(data), started: make(chan struct{}), release: make(chan struct{})}
	cache, err := NewCache(next, config.CacheConfig{MaxBytes: 1024, MaxEntries: 8})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.Fetch(ctxA, 0, 8)
		errA <- err
	}()
	<-next.started

	type result struct {
		data []byte
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		got, err := cache.Fetch(context.Background(), 0, 8)
		resB <- result{got, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller canceled, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	close(next.release)

	b := <-resB
	if b.err != nil {
		t.Fatalf("second caller inherited cancellation: %v", b.err)
	}
	if !bytes.Equal(b.data, data[:8]) {
		t.Fatalf("unexpected bytes: %v", b.data)
	}
	if next.calls.Load() != 1 {
		t.Fatalf("expected one underlying fetch, got %d", next.calls.Load())
	}
	stats := cache.Stats()
	if stats.Misses != 1 || stats.Hits+stats.Shared != 1 || stats.Entries != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestInstrumentPassesThrough(t *testing.T) {
	testlog.Start(t)
	data := sampleBytes(32)
	f := Instrument("memory-test", NewMemory(data))
	got, err := f.Fetch(context.Background(), 8, 8)
	if err != nil || !bytes.Equal(got, data[8:16]) {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := f.Fetch(context.Background(), 30, 8); !errors.Is(err, protocol.ErrOutOfRange) {
		t.Fatalf("expected error passthrough, got %v", err)
	}
}

func TestOpenFromConfig(t *testing.T) {
	testlog.Start(t)
	data := sampleBytes(128)
	path := writeSample(t, data)

	stack, err := Open(context.Background(),
		config.SourceConfig{Kind: config.SourceFile, Path: path},
		config.CacheConfig{MaxBytes: 1 << 10, MaxEntries: 16})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer stack.Close()
	if stack.Cache == nil {
		t.Fatalf("expected cache")
	}
	for i := 0; i < 2; i++ {
		got, err := stack.Fetch(context.Background(), 0, 4)
		if err != nil || !bytes.Equal(got, data[:4]) {
			t.Fatalf("fetch: %v", err)
		}
	}
	if stats := stack.Cache.Stats(); stats.Hits != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	plain, err := Open(context.Background(), config.SourceConfig{Kind: config.SourceFile, Path: path}, config.CacheConfig{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer plain.Close()
	if plain.Cache != nil {
		t.Fatalf("expected no cache")
	}

	if _, err := Open(context.Background(), config.SourceConfig{Kind: "ftp"}, config.CacheConfig{}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

// s3Server serves one object path-style with range support.
func s3Server(t *testing.T, bucket, object string, data []byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var gets atomic.Int64
	modified := time.Date(2024, 5, 17, 12, 30, 15, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+bucket+"/"+object {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeContent(w, r, object, modified, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv, &gets
}

func TestObjectStoreRangedReads(t *testing.T) {
	testlog.Start(t)
	data := sampleBytes(4096)
	srv, gets := s3Server(t, "physics", "runs/1.root", data)

	store, err := NewObjectStore(context.Background(), ObjectStoreConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		Bucket:    "physics",
		Object:    "runs/1.root",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	if err != nil {
		t.Fatalf("new object store: %v", err)
	}
	if store.Size() != 4096 {
		t.Fatalf("unexpected size: %d", store.Size())
	}
	got, err := store.Fetch(context.Background(), 1000, 300)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, data[1000:1300]) {
		t.Fatalf("unexpected range bytes")
	}
	if _, err := store.Fetch(context.Background(), 4000, 100); !errors.Is(err, protocol.ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if gets.Load() != 1 {
		t.Fatalf("expected one ranged GET, got %d", gets.Load())
	}

	if _, err := NewObjectStore(context.Background(), ObjectStoreConfig{
		Endpoint: strings.TrimPrefix(srv.URL, "http://"),
		Region:   "us-east-1",
		Bucket:   "physics",
		Object:   "runs/missing.root",
	}); err == nil {
		t.Fatalf("expected stat error")
	}
}
