package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case SourceFile:
		return fileTemplate, nil
	case SourceS3:
		return s3Template, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const fileTemplate = `name = "rootio"
addr = ":9200"
cors_origins = ["http://localhost:3000"]
parallelism = 4

[source]
kind = "file"
path = "data/ntpl001_staff.root"

[cache]
max_bytes = 67108864
max_entries = 4096
`

const s3Template = `name = "rootio"
addr = ":9200"
base_path = "/rootio"
cors_origins = ["http://localhost:3000"]
auth_token = "change-me"
parallelism = 8

[source]
kind = "s3"
endpoint = "localhost:9000"
region = "us-east-1"
bucket = "physics"
object = "runs/ntpl001_staff.root"
access_key = "minioadmin"
secret_key = "minioadmin"
use_ssl = false
retries = 2
retry_delay_ms = 200

[cache]
max_bytes = 268435456
max_entries = 16384
`
