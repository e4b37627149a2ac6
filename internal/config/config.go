// Package config loads runtime settings from an optional outletops.yaml, a
// .env file and OUTLETOPS_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"outletops/internal/core"
	"outletops/internal/infra/blob"
	blobs3 "outletops/internal/infra/blob/s3"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "OUTLETOPS"

// Config is the full runtime configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Blob    BlobConfig    `mapstructure:"blob"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Import  ImportConfig  `mapstructure:"import"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=memory sqlite postgres"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
}

type BlobConfig struct {
	Driver string   `mapstructure:"driver" validate:"oneof=none fs memory s3"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type MetricsConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=none expvar prometheus"`
	Path   string `mapstructure:"path" validate:"startswith=/"`
}

type TracingConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=none json otel"`
}

type ImportConfig struct {
	MaxBytes   int64         `mapstructure:"max_bytes" validate:"gt=0"`
	PreviewTTL time.Duration `mapstructure:"preview_ttl" validate:"gt=0"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit YAML path; it must exist when set. When
	// empty, outletops.yaml is searched in . and ./config and may be absent.
	ConfigFile string
	// EnvFile defaults to .env and may be absent.
	EnvFile string
}

var defaults = map[string]any{
	"storage.driver":            string(core.StorageSQLite),
	"storage.sqlite_path":       "outletops.db",
	"storage.postgres_dsn":      "",
	"blob.driver":               string(blob.DriverNone),
	"blob.fs_root":              "./blobdata",
	"blob.s3.bucket":            "",
	"blob.s3.region":            "us-east-1",
	"blob.s3.endpoint":          "",
	"blob.s3.access_key_id":     "",
	"blob.s3.secret_access_key": "",
	"blob.s3.path_style":        false,
	"http.addr":                 ":8080",
	"http.read_timeout":         "30s",
	"http.shutdown_timeout":     "10s",
	"log.level":                 "info",
	"log.format":                "text",
	"metrics.driver":            "none",
	"metrics.path":              "/metrics",
	"tracing.driver":            "none",
	"import.max_bytes":          int64(10 << 20),
	"import.preview_ttl":        "30m",
}

// legacyEnv keeps the short storage variable names working next to the
// prefixed key form.
var legacyEnv = map[string]string{
	"storage.driver":       core.EnvStorageDriver,
	"storage.sqlite_path":  core.EnvSQLitePath,
	"storage.postgres_dsn": core.EnvPostgresDSN,
}

// Load reads the configuration and validates it.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, err
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("outletops")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		b := sl.Current().Interface().(BlobConfig)
		if b.Driver == string(blob.DriverS3) && b.S3.Bucket == "" {
			sl.ReportError(b.S3.Bucket, "S3.Bucket", "Bucket", "required_for_s3", "")
		}
		if b.Driver == string(blob.DriverFilesystem) && b.FSRoot == "" {
			sl.ReportError(b.FSRoot, "FSRoot", "FSRoot", "required_for_fs", "")
		}
	}, BlobConfig{})
	return v
}

// Validate checks field constraints. Errors name the offending keys.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// StorageOptions converts the storage section for core.OpenPersistentStore.
func (c *Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobOptions converts the blob section for core.OpenBlobStore.
func (c *Config) BlobOptions() core.BlobOptions {
	return core.BlobOptions{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blobs3.Config{
			Region:          c.Blob.S3.Region,
			Bucket:          c.Blob.S3.Bucket,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}
