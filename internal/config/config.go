package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Source kinds.
const (
	SourceFile   = "file"
	SourceMemory = "memory"
	SourceS3     = "s3"
)

type ServiceConfig struct {
	Name        string       `toml:"name"`
	Addr        string       `toml:"addr"`
	BasePath    string       `toml:"base_path"`
	CorsOrigins []string     `toml:"cors_origins"`
	AuthToken   string       `toml:"auth_token"`
	Source      SourceConfig `toml:"source"`
	Cache       CacheConfig  `toml:"cache"`
	Parallelism int          `toml:"parallelism"`
}

// SourceConfig selects where file bytes come from. Path is used by the file
// kind; the remaining fields address an object in S3-compatible storage.
// Retries re-issue fetches that fail with transport errors.
type SourceConfig struct {
	Kind         string `toml:"kind"`
	Path         string `toml:"path"`
	Endpoint     string `toml:"endpoint"`
	Region       string `toml:"region"`
	Bucket       string `toml:"bucket"`
	Object       string `toml:"object"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UseSSL       bool   `toml:"use_ssl"`
	Retries      int    `toml:"retries"`
	RetryDelayMS int    `toml:"retry_delay_ms"`
}

// CacheConfig bounds the fetch cache. MaxBytes 0 disables it.
type CacheConfig struct {
	MaxBytes   int64 `toml:"max_bytes"`
	MaxEntries int   `toml:"max_entries"`
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:   "rootio",
		Addr:   ":9200",
		Source: SourceConfig{Kind: SourceFile},
		Cache: CacheConfig{
			MaxBytes:   64 << 20,
			MaxEntries: 4096,
		},
		Parallelism: 4,
	}
}

func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ServiceConfig{}, err
	}
	if strings.TrimSpace(cfg.Source.Kind) == "" {
		cfg.Source.Kind = SourceFile
	}
	if err := ValidateServiceConfig(cfg); err != nil {
		return ServiceConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServiceConfig(cfg ServiceConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("service config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("service config missing addr")
	}
	if cfg.BasePath != "" && !strings.HasPrefix(cfg.BasePath, "/") {
		return fmt.Errorf("base_path must start with /, got %q", cfg.BasePath)
	}
	if cfg.Parallelism < 0 {
		return fmt.Errorf("parallelism must be >= 0, got %d", cfg.Parallelism)
	}
	if err := ValidateCache(cfg.Cache); err != nil {
		return fmt.Errorf("cache invalid: %w", err)
	}
	if err := ValidateSource(cfg.Source); err != nil {
		return fmt.Errorf("source invalid: %w", err)
	}
	return nil
}

func ValidateSource(cfg SourceConfig) error {
	if cfg.Retries < 0 || cfg.RetryDelayMS < 0 {
		return fmt.Errorf("retries and retry_delay_ms must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case SourceFile:
		if strings.TrimSpace(cfg.Path) == "" {
			return fmt.Errorf("path is required")
		}
	case SourceS3:
		if strings.TrimSpace(cfg.Endpoint) == "" {
			return fmt.Errorf("endpoint is required")
		}
		if strings.TrimSpace(cfg.Bucket) == "" || strings.TrimSpace(cfg.Object) == "" {
			return fmt.Errorf("bucket and object are required")
		}
	case SourceMemory:
		return fmt.Errorf("memory sources cannot be configured from a file")
	default:
		return fmt.Errorf("unknown kind: %q", cfg.Kind)
	}
	return nil
}

func ValidateCache(cfg CacheConfig) error {
	if cfg.MaxBytes < 0 {
		return fmt.Errorf("max_bytes must be >= 0")
	}
	if cfg.MaxBytes > 0 && cfg.MaxEntries <= 0 {
		return fmt.Errorf("max_entries must be > 0 when the cache is enabled")
	}
	return nil
}
