package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/rootio/internal/config"
)

func TestLoadCLIConfigDefaultsAndOverrides(t *testing.T) {
	cfg, err := loadCLIConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Source.Kind != config.SourceS3 {
		t.Fatalf("unexpected source kind: %q", cfg.Source.Kind)
	}
	if cfg.Source.Endpoint != "minio.local:9000" || cfg.Source.Bucket != "physics" || !cfg.Source.UseSSL {
		t.Fatalf("unexpected source: %+v", cfg.Source)
	}
	if cfg.Source.Retries != 3 {
		t.Fatalf("unexpected retries: %d", cfg.Source.Retries)
	}
	if cfg.Parallelism != 8 {
		t.Fatalf("unexpected parallelism: %d", cfg.Parallelism)
	}
	if cfg.Cache.MaxBytes != 128<<20 || cfg.Cache.MaxEntries != 8192 {
		t.Fatalf("unexpected cache: %+v", cfg.Cache)
	}

	src, err := cfg.sourceFor("runs/1.root")
	if err != nil {
		t.Fatalf("source for: %v", err)
	}
	if src.Bucket != "physics" || src.Object != "runs/1.root" {
		t.Fatalf("unexpected object: %+v", src)
	}
}

func TestLoadCLIConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rootls.toml")
	if err := os.WriteFile(path, []byte("parallelism = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadCLIConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	defaults := defaultCLIConfig()
	if cfg.Parallelism != 1 || cfg.Cache != defaults.Cache || cfg.Source.Kind != config.SourceFile {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	src, err := cfg.sourceFor("local.root")
	if err != nil || src.Path != "local.root" {
		t.Fatalf("unexpected file source: %+v %v", src, err)
	}
}

func TestLoadCLIConfigRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":  "colour = \"blue\"\n",
		"bad cache":    "cache_max_bytes = 10\ncache_max_entries = 0\n",
		"bad workers":  "parallelism = -2\n",
		"bad type":     "parallelism = \"fast\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rootls.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := loadCLIConfig(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSourceForS3BucketFromTarget(t *testing.T) {
	cfg := defaultCLIConfig()
	cfg.Source = config.SourceConfig{Kind: config.SourceS3, Endpoint: "localhost:9000"}
	src, err := cfg.sourceFor("physics/runs/2.root")
	if err != nil {
		t.Fatalf("source for: %v", err)
	}
	if src.Bucket != "physics" || src.Object != "runs/2.root" {
		t.Fatalf("unexpected source: %+v", src)
	}
	if _, err := cfg.sourceFor("nobucket"); err == nil {
		t.Fatalf("expected bucket/object error")
	}
}
