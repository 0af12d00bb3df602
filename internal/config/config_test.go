package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
[source]
path = "run.root"
`)
	cfg, err := LoadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "rootio" || cfg.Addr != ":9200" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Source.Kind != SourceFile || cfg.Source.Path != "run.root" {
		t.Fatalf("unexpected source: %+v", cfg.Source)
	}
	if cfg.Cache.MaxBytes != 64<<20 || cfg.Cache.MaxEntries != 4096 {
		t.Fatalf("unexpected cache: %+v", cfg.Cache)
	}
	if cfg.Parallelism != 4 {
		t.Fatalf("unexpected parallelism: %d", cfg.Parallelism)
	}
}

func TestLoadServiceConfigTemplates(t *testing.T) {
	for _, kind := range []string{SourceFile, SourceS3} {
		path := filepath.Join(t.TempDir(), kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		cfg, err := LoadServiceConfig(path)
		if err != nil {
			t.Fatalf("load %s template: %v", kind, err)
		}
		if cfg.Source.Kind != kind {
			t.Fatalf("unexpected kind: %q", cfg.Source.Kind)
		}
		if kind == SourceS3 && (cfg.Source.Retries != 2 || cfg.AuthToken == "" || cfg.BasePath != "/rootio") {
			t.Fatalf("unexpected s3 template: %+v", cfg)
		}
		if len(cfg.CorsOrigins) != 1 {
			t.Fatalf("unexpected cors origins: %+v", cfg.CorsOrigins)
		}
		if err := WriteTemplate(path, kind, false); err == nil {
			t.Fatalf("expected existing config to be kept")
		}
	}
	if _, err := Template("gcs"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestLoadServiceConfigS3(t *testing.T) {
	path := writeConfig(t, `
name = "inspect"
addr = "127.0.0.1:9300"

[source]
kind = "s3"
endpoint = "minio.local:9000"
bucket = "physics"
object = "runs/1.root"
use_ssl = true

[cache]
max_bytes = 0
`)
	cfg, err := LoadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Source.Endpoint != "minio.local:9000" || !cfg.Source.UseSSL {
		t.Fatalf("unexpected source: %+v", cfg.Source)
	}
	if cfg.Cache.MaxBytes != 0 {
		t.Fatalf("expected cache disabled, got %+v", cfg.Cache)
	}
}

func TestValidateServiceConfig(t *testing.T) {
	cases := map[string]struct {
		mutate func(*ServiceConfig)
		want   string
	}{
		"missing name":      {func(c *ServiceConfig) { c.Name = " " }, "missing name"},
		"missing addr":      {func(c *ServiceConfig) { c.Addr = "" }, "missing addr"},
		"negative workers":  {func(c *ServiceConfig) { c.Parallelism = -1 }, "parallelism"},
		"missing path":      {func(c *ServiceConfig) { c.Source.Path = "" }, "path is required"},
		"unknown kind":      {func(c *ServiceConfig) { c.Source.Kind = "ftp" }, "unknown kind"},
		"memory kind":       {func(c *ServiceConfig) { c.Source.Kind = SourceMemory }, "memory"},
		"s3 without bucket": {func(c *ServiceConfig) { c.Source = SourceConfig{Kind: SourceS3, Endpoint: "x"} }, "bucket"},
		"cache entries":     {func(c *ServiceConfig) { c.Cache.MaxEntries = 0 }, "max_entries"},
		"cache bytes":       {func(c *ServiceConfig) { c.Cache.MaxBytes = -1 }, "max_bytes"},
		"negative retries":  {func(c *ServiceConfig) { c.Source.Retries = -1 }, "retries"},
		"relative base":     {func(c *ServiceConfig) { c.BasePath = "api" }, "base_path"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultServiceConfig()
			cfg.Source.Path = "run.root"
			tc.mutate(&cfg)
			err := ValidateServiceConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadServiceConfigParseError(t *testing.T) {
	path := writeConfig(t, `name = [`)
	if _, err := LoadServiceConfig(path); err == nil || !strings.Contains(err.Error(), "parse failed") {
		t.Fatalf("expected parse error, got %v", err)
	}
	if _, err := LoadServiceConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected load error")
	}
}
