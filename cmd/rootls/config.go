package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/rootio/internal/config"
)

// rootls cli config keys; anything left out keeps the service defaults.
type fileConfig struct {
	Source          string `toml:"source"`
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKey       string `toml:"access_key"`
	SecretKey       string `toml:"secret_key"`
	UseSSL          bool   `toml:"use_ssl"`
	Retries         int    `toml:"retries"`
	Parallelism     int    `toml:"parallelism"`
	CacheMaxBytes   int64  `toml:"cache_max_bytes"`
	CacheMaxEntries int    `toml:"cache_max_entries"`
}

type cliConfig struct {
	Source      config.SourceConfig
	Cache       config.CacheConfig
	Parallelism int
}

func defaultCLIConfig() cliConfig {
	base := config.DefaultServiceConfig()
	return cliConfig{
		Source:      base.Source,
		Cache:       base.Cache,
		Parallelism: base.Parallelism,
	}
}

func loadCLIConfig(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load rootls config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cliConfig{}, fmt.Errorf("load rootls config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("source") {
		cfg.Source.Kind = strings.ToLower(strings.TrimSpace(raw.Source))
	}
	if meta.IsDefined("endpoint") {
		cfg.Source.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("region") {
		cfg.Source.Region = strings.TrimSpace(raw.Region)
	}
	if meta.IsDefined("bucket") {
		cfg.Source.Bucket = strings.TrimSpace(raw.Bucket)
	}
	if meta.IsDefined("access_key") {
		cfg.Source.AccessKey = raw.AccessKey
	}
	if meta.IsDefined("secret_key") {
		cfg.Source.SecretKey = raw.SecretKey
	}
	if meta.IsDefined("use_ssl") {
		cfg.Source.UseSSL = raw.UseSSL
	}
	if meta.IsDefined("retries") {
		cfg.Source.Retries = raw.Retries
	}
	if meta.IsDefined("parallelism") {
		cfg.Parallelism = raw.Parallelism
	}
	if meta.IsDefined("cache_max_bytes") {
		cfg.Cache.MaxBytes = raw.CacheMaxBytes
	}
	if meta.IsDefined("cache_max_entries") {
		cfg.Cache.MaxEntries = raw.CacheMaxEntries
	}

	if err := config.ValidateCache(cfg.Cache); err != nil {
		return cliConfig{}, fmt.Errorf("cache invalid: %w", err)
	}
	if cfg.Source.Retries < 0 {
		return cliConfig{}, fmt.Errorf("retries must be >= 0, got %d", cfg.Source.Retries)
	}
	if cfg.Parallelism < 0 {
		return cliConfig{}, fmt.Errorf("parallelism must be >= 0, got %d", cfg.Parallelism)
	}
	return cfg, nil
}

// sourceFor addresses target: a local path for file sources, an object
// name (or bucket/object when no bucket is configured) for s3 sources.
func (c cliConfig) sourceFor(target string) (config.SourceConfig, error) {
	src := c.Source
	switch src.Kind {
	case config.SourceFile:
		src.Path = target
	case config.SourceS3:
		if src.Bucket == "" {
			bucket, object, ok := strings.Cut(strings.TrimPrefix(target, "/"), "/")
			if !ok || bucket == "" || object == "" {
				return config.SourceConfig{}, fmt.Errorf("expected bucket/object, got %q", target)
			}
			src.Bucket = bucket
			target = object
		}
		src.Object = target
	}
	if err := config.ValidateSource(src); err != nil {
		return config.SourceConfig{}, err
	}
	return src, nil
}
