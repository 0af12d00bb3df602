package source

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	Object    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObjectStore fetches ranges of one object in S3-compatible storage with
// ranged GET requests.
type ObjectStore struct {
	client *minio.Client
	bucket string
	object string
	size   uint64
}

// NewObjectStore connects to the endpoint and stats the object to learn its
// size.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	info, err := client.StatObject(ctx, cfg.Bucket, cfg.Object, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat %s/%s: %w", cfg.Bucket, cfg.Object, err)
	}
	if info.Size < 0 {
		return nil, fmt.Errorf("stat %s/%s: unknown size", cfg.Bucket, cfg.Object)
	}
	log.Debug().
		Str("endpoint", cfg.Endpoint).
		Str("bucket", cfg.Bucket).
		Str("object", cfg.Object).
		Int64("size", info.Size).
		Str("etag", info.ETag).
		Msg("object stat")
	return &ObjectStore{client: client, bucket: cfg.Bucket, object: cfg.Object, size: uint64(info.Size)}, nil
}

func (s *ObjectStore) Name() string { return "s3" }
func (s *ObjectStore) Size() uint64 { return s.size }
func (s *ObjectStore) Close() error { return nil }

func (s *ObjectStore) Fetch(ctx context.Context, offset, size uint64) ([]byte, error) {
	if err := checkRange("source.s3", offset, size, s.size); err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(int64(offset), int64(offset+size-1)); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, opts)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, s.object, err)
	}
	defer obj.Close()
	buf := make([]byte, size)
	if _, err := io.ReadFull(obj, buf); err != nil {
		return nil, fmt.Errorf("read %s/%s bytes=%d-%d: %w", s.bucket, s.object, offset, offset+size-1, err)
	}
	return buf, nil
}
