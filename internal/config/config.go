// Package config loads entitygraph settings from defaults, an optional YAML
// file and ENTITYGRAPH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"entitygraph/internal/blob"
	"entitygraph/pkg/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ENTITYGRAPH_"

// Storage drivers accepted by Storage.Driver.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Storage selects the persistent store backend.
type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Metrics exporters accepted by Metrics.Driver.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
)

// Metrics selects the exporter served at /metrics.
type Metrics struct {
	Driver string `yaml:"driver"`
}

// HTTP configures the API listener.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Log configures the process logger.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
}

// Config is the complete process configuration.
type Config struct {
	Storage Storage                 `yaml:"storage"`
	Blob    blob.Config             `yaml:"blob"`
	HTTP    HTTP                    `yaml:"http"`
	Log     Log                     `yaml:"log"`
	Metrics Metrics                 `yaml:"metrics"`
	Policy  domain.ValidationPolicy `yaml:"policy"`

	path string
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Storage: Storage{Driver: StorageSQLite, SQLitePath: "./entitygraph.db"},
		Blob:    blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./blobdata"},
		HTTP:    HTTP{Addr: ":8080"},
		Log:     Log{Level: "info", Format: "json"},
		Metrics: Metrics{Driver: MetricsPrometheus},
		Policy:  domain.DefaultValidationPolicy(),
	}
}

// Load builds a Config. path names a YAML file; when empty, ENTITYGRAPH_CONFIG
// is consulted and a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
			cfg.path = path
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the configuration was read from, if any.
func (c *Config) Path() string { return c.path }

func (c *Config) applyEnv() error {
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.SQLitePath, "SQLITE_PATH")
	setString(&c.Storage.PostgresDSN, "POSTGRES_DSN")

	var driver string
	if setString(&driver, "BLOB_DRIVER") {
		c.Blob.Driver = blob.Driver(driver)
	}
	setString(&c.Blob.FSRoot, "BLOB_FS_ROOT")
	setString(&c.Blob.S3.Bucket, "BLOB_S3_BUCKET")
	setString(&c.Blob.S3.Region, "BLOB_S3_REGION")
	setString(&c.Blob.S3.Endpoint, "BLOB_S3_ENDPOINT")
	setString(&c.Blob.S3.Prefix, "BLOB_S3_PREFIX")
	setString(&c.Blob.S3.AccessKeyID, "BLOB_S3_ACCESS_KEY_ID")
	setString(&c.Blob.S3.SecretAccessKey, "BLOB_S3_SECRET_ACCESS_KEY")
	if err := setBool(&c.Blob.S3.PathStyle, "BLOB_S3_PATH_STYLE"); err != nil {
		return err
	}

	setString(&c.HTTP.Addr, "HTTP_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Metrics.Driver, "METRICS_DRIVER")

	for name, dst := range map[string]*int{
		"POLICY_MIN_AGE":            &c.Policy.MinAge,
		"POLICY_MAX_AGE":            &c.Policy.MaxAge,
		"POLICY_MAX_TAGS_PER_USER":  &c.Policy.MaxTagsPerUser,
		"POLICY_MAX_ISSUES_PER_TAG": &c.Policy.MaxIssuesPerTag,
	} {
		if err := setInt(dst, name); err != nil {
			return err
		}
	}
	if err := setFloat(&c.Policy.MinDiscount, "POLICY_MIN_DISCOUNT"); err != nil {
		return err
	}
	return setFloat(&c.Policy.MaxDiscount, "POLICY_MAX_DISCOUNT")
}

// Validate rejects unknown drivers and inconsistent policy bounds.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverS3, blob.DriverMemory:
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return errors.New("blob.s3.bucket required for s3 driver")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	switch c.Metrics.Driver {
	case MetricsPrometheus, MetricsExpvar:
	default:
		return fmt.Errorf("unknown metrics driver %q", c.Metrics.Driver)
	}
	p := c.Policy
	switch {
	case p.MinAge < 0:
		return errors.New("policy.min_age must not be negative")
	case p.MaxAge != 0 && p.MaxAge < p.MinAge:
		return errors.New("policy.max_age must be at least min_age")
	case p.MinDiscount > p.MaxDiscount:
		return errors.New("policy.min_discount must not exceed max_discount")
	case p.MaxTagsPerUser < 0 || p.MaxIssuesPerTag < 0:
		return errors.New("policy caps must not be negative")
	}
	return nil
}

func setString(dst *string, name string) bool {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return false
	}
	*dst = v
	return true
}

func setInt(dst *int, name string) error {
	var raw string
	if !setString(&raw, name) {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, name string) error {
	var raw string
	if !setString(&raw, name) {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = v
	return nil
}

func setBool(dst *bool, name string) error {
	var raw string
	if !setString(&raw, name) {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = v
	return nil
}
