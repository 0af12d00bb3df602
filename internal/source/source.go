// Package source provides the byte-range fetchers a decode reads through:
// local files, memory, S3-compatible object storage, and the cache and
// metrics decorators layered over them.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/rootio/internal/config"
	"github.com/danmuck/rootio/internal/observability"
	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/rs/zerolog/log"
)

// Source is a fetcher over a medium of known size.
type Source interface {
	cursor.Fetcher
	Name() string
	Size() uint64
	Close() error
}

func checkRange(op string, offset, size, total uint64) error {
	if offset > total || size > total-offset {
		return protocol.Mismatch(op, int64(offset), protocol.ErrOutOfRange,
			fmt.Sprintf("[0, %d)", total), fmt.Sprintf("[%d, %d)", offset, offset+size))
	}
	return nil
}

// Instrument records count, bytes and latency of every fetch through next
// under the given source label.
func Instrument(name string, next cursor.Fetcher) cursor.Fetcher {
	return cursor.FetchFunc(func(ctx context.Context, offset, size uint64) ([]byte, error) {
		start := time.Now()
		data, err := next.Fetch(ctx, offset, size)
		observability.RecordFetch(name, len(data), time.Since(start), err == nil)
		if err != nil {
			log.Debug().
				Err(err).
				Str("source", name).
				Uint64("offset", offset).
				Uint64("size", size).
				Msg("fetch failed")
		}
		return data, err
	})
}

// Stack is a configured source with its decorators applied. Fetches go
// through the cache, when there is one, then retries, then the
// instrumented source, so every attempt is counted.
type Stack struct {
	cursor.Fetcher
	Source Source
	Cache  *Cache
}

// NewStack layers instrumentation, retries and, when cfg enables it, a cache
// over src.
func NewStack(src Source, cfg config.CacheConfig, retry RetryConfig) (*Stack, error) {
	s := &Stack{Source: src, Fetcher: Retry(Instrument(src.Name(), src), retry)}
	if cfg.MaxBytes > 0 {
		cache, err := NewCache(s.Fetcher, cfg)
		if err != nil {
			return nil, err
		}
		s.Cache = cache
		s.Fetcher = cache
	}
	return s, nil
}

// Open builds the source described by cfg.
func Open(ctx context.Context, cfg config.SourceConfig, cache config.CacheConfig) (*Stack, error) {
	if err := config.ValidateSource(cfg); err != nil {
		return nil, fmt.Errorf("source config: %w", err)
	}
	var src Source
	var err error
	switch cfg.Kind {
	case config.SourceFile:
		src, err = OpenFile(cfg.Path)
	case config.SourceS3:
		src, err = NewObjectStore(ctx, ObjectStoreConfig{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			Object:    cfg.Object,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
		})
	default:
		err = fmt.Errorf("unsupported source kind: %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	stack, err := NewStack(src, cache, retryConfig(cfg))
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	log.Info().
		Str("source", src.Name()).
		Uint64("size", src.Size()).
		Bool("cache", stack.Cache != nil).
		Msg("source opened")
	return stack, nil
}

func retryConfig(cfg config.SourceConfig) RetryConfig {
	if cfg.Retries == 0 {
		return RetryConfig{Attempts: 1}
	}
	r := DefaultRetryConfig()
	r.Attempts = cfg.Retries + 1
	if cfg.RetryDelayMS > 0 {
		r.InitialDelay = time.Duration(cfg.RetryDelayMS) * time.Millisecond
	}
	return r
}

func (s *Stack) Close() error {
	if s.Cache != nil {
		s.Cache.Purge()
	}
	return s.Source.Close()
}
