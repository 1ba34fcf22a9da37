package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"entitygraph/internal/blob"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entitygraph.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Blob.Driver != blob.DriverFilesystem || cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Metrics.Driver != MetricsPrometheus {
		t.Fatalf("expected prometheus metrics by default, got %q", cfg.Metrics.Driver)
	}
	if cfg.Policy.MaxDiscount != 1 || cfg.Policy.MaxAge != 0 {
		t.Fatalf("unexpected default policy %+v", cfg.Policy)
	}
	if cfg.Path() != "" {
		t.Fatalf("expected no config path, got %s", cfg.Path())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: postgres
  postgres_dsn: postgres://db/entitygraph
blob:
  driver: s3
  s3:
    bucket: backups
    path_style: true
policy:
  min_age: 18
  max_age: 120
  max_tags_per_user: 5
`)
	t.Setenv(EnvPrefix+"HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv(EnvPrefix+"POLICY_MAX_TAGS_PER_USER", "3")
	t.Setenv(EnvPrefix+"POLICY_MAX_DISCOUNT", "0.5")
	t.Setenv(EnvPrefix+"METRICS_DRIVER", "expvar")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Path() != path {
		t.Fatalf("expected path %s, got %s", path, cfg.Path())
	}
	if cfg.Storage.Driver != StoragePostgres || cfg.Storage.PostgresDSN != "postgres://db/entitygraph" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Storage.SQLitePath != "./entitygraph.db" {
		t.Fatalf("expected untouched defaults to survive file load, got %q", cfg.Storage.SQLitePath)
	}
	if cfg.Blob.Driver != blob.DriverS3 || cfg.Blob.S3.Bucket != "backups" || !cfg.Blob.S3.PathStyle {
		t.Fatalf("unexpected blob config %+v", cfg.Blob)
	}
	if cfg.Metrics.Driver != MetricsExpvar {
		t.Fatalf("expected env metrics driver, got %q", cfg.Metrics.Driver)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Fatalf("expected env addr, got %s", cfg.HTTP.Addr)
	}
	if cfg.Policy.MinAge != 18 || cfg.Policy.MaxAge != 120 || cfg.Policy.MaxTagsPerUser != 3 || cfg.Policy.MaxDiscount != 0.5 {
		t.Fatalf("unexpected policy %+v", cfg.Policy)
	}
}

func TestLoadEnvConfigPathMissingIsIgnored(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG", filepath.Join(t.TempDir(), "absent.yml"))
	if _, err := Load(""); err != nil {
		t.Fatalf("expected missing env-named file to be ignored, got %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		file string
		env  map[string]string
		want string
	}{
		{name: "explicit missing file", want: "read config file"},
		{name: "bad yaml", file: "storage: [", want: "parse config file"},
		{name: "unknown storage", file: "storage:\n  driver: mongo\n", want: "unknown storage driver"},
		{name: "unknown blob", env: map[string]string{"BLOB_DRIVER": "gcs"}, want: "unknown blob driver"},
		{name: "unknown metrics", file: "metrics:\n  driver: statsd\n", want: "unknown metrics driver"},
		{name: "s3 without bucket", env: map[string]string{"BLOB_DRIVER": "s3"}, want: "bucket required"},
		{name: "bad int", env: map[string]string{"POLICY_MIN_AGE": "old"}, want: "POLICY_MIN_AGE"},
		{name: "bad bool", env: map[string]string{"BLOB_S3_PATH_STYLE": "maybe"}, want: "BLOB_S3_PATH_STYLE"},
		{name: "inverted ages", env: map[string]string{"POLICY_MIN_AGE": "30", "POLICY_MAX_AGE": "20"}, want: "max_age"},
		{name: "inverted discount", env: map[string]string{"POLICY_MIN_DISCOUNT": "0.9", "POLICY_MAX_DISCOUNT": "0.1"}, want: "min_discount"},
		{name: "log format", env: map[string]string{"LOG_FORMAT": "xml"}, want: "log format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(EnvPrefix+k, v)
			}
			path := filepath.Join(t.TempDir(), "missing.yml")
			if tc.file != "" {
				path = writeConfig(t, tc.file)
			} else if tc.name != "explicit missing file" {
				path = writeConfig(t, "{}\n")
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
