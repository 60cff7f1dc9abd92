// Package config loads designcore settings from an optional YAML file,
// applies DESIGNCORE_* environment overrides and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Cache   CacheConfig   `yaml:"cache"`
	Compose ComposeConfig `yaml:"compose"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects the persistent store backend.
type StorageConfig struct {
	Driver         string `yaml:"driver" validate:"oneof=memory sqlite postgres badger"`
	SQLitePath     string `yaml:"sqlite_path"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	BadgerPath     string `yaml:"badger_path" validate:"required_if=Driver badger BadgerInMemory false"`
	BadgerInMemory bool   `yaml:"badger_in_memory"`
}

// BlobConfig selects where exports are written. An empty driver disables
// exports.
type BlobConfig struct {
	Driver string   `yaml:"driver" validate:"omitempty,oneof=memory fs s3"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config holds S3 or MinIO connection settings.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	Prefix          string `yaml:"prefix"`
}

// CacheConfig selects the composed tree cache.
type CacheConfig struct {
	Driver        string        `yaml:"driver" validate:"oneof=none lru redis"`
	Size          int           `yaml:"size" validate:"min=1"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"min=0"`
	TTL           time.Duration `yaml:"ttl" validate:"min=0"`
}

// ComposeConfig bounds design composition.
type ComposeConfig struct {
	MaxDepth    int `yaml:"max_depth" validate:"min=1"`
	Concurrency int `yaml:"concurrency" validate:"min=1"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Mode  string `yaml:"mode" validate:"oneof=production development"`
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: "sqlite", SQLitePath: "designcore.db"},
		Cache:   CacheConfig{Driver: "lru", Size: 1024, TTL: 10 * time.Minute},
		Compose: ComposeConfig{MaxDepth: 32, Concurrency: 16},
		Log:     LogConfig{Mode: "production", Level: "info"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against its struct tags.
func (c Config) Validate() error {
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
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return errors.New("invalid config: blob.s3.bucket is required when blob.driver=s3")
	}
	return nil
}

// Load reads path (when non-empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with DESIGNCORE_* variables.
//
//	DESIGNCORE_STORAGE_DRIVER        memory|sqlite|postgres|badger
//	DESIGNCORE_SQLITE_PATH           sqlite database file
//	DESIGNCORE_POSTGRES_DSN          postgres connection string
//	DESIGNCORE_BADGER_PATH           badger directory
//	DESIGNCORE_BLOB_DRIVER           memory|fs|s3
//	DESIGNCORE_BLOB_FS_ROOT          export directory when driver=fs
//	DESIGNCORE_S3_BUCKET / _REGION / _ENDPOINT / _ACCESS_KEY_ID / _SECRET_ACCESS_KEY / _USE_PATH_STYLE / _PREFIX
//	DESIGNCORE_CACHE_DRIVER          none|lru|redis
//	DESIGNCORE_CACHE_SIZE            LRU capacity
//	DESIGNCORE_CACHE_TTL             redis entry lifetime (Go duration)
//	DESIGNCORE_REDIS_ADDR / _PASSWORD / _DB
//	DESIGNCORE_COMPOSE_MAX_DEPTH     nesting budget
//	DESIGNCORE_COMPOSE_CONCURRENCY   fan-out limit per group
//	DESIGNCORE_LOG_MODE / DESIGNCORE_LOG_LEVEL
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	strs := map[string]*string{
		"DESIGNCORE_STORAGE_DRIVER":       &cfg.Storage.Driver,
		"DESIGNCORE_SQLITE_PATH":          &cfg.Storage.SQLitePath,
		"DESIGNCORE_POSTGRES_DSN":         &cfg.Storage.PostgresDSN,
		"DESIGNCORE_BADGER_PATH":          &cfg.Storage.BadgerPath,
		"DESIGNCORE_BLOB_DRIVER":          &cfg.Blob.Driver,
		"DESIGNCORE_BLOB_FS_ROOT":         &cfg.Blob.FSRoot,
		"DESIGNCORE_S3_BUCKET":            &cfg.Blob.S3.Bucket,
		"DESIGNCORE_S3_REGION":            &cfg.Blob.S3.Region,
		"DESIGNCORE_S3_ENDPOINT":          &cfg.Blob.S3.Endpoint,
		"DESIGNCORE_S3_ACCESS_KEY_ID":     &cfg.Blob.S3.AccessKeyID,
		"DESIGNCORE_S3_SECRET_ACCESS_KEY": &cfg.Blob.S3.SecretAccessKey,
		"DESIGNCORE_S3_PREFIX":            &cfg.Blob.S3.Prefix,
		"DESIGNCORE_CACHE_DRIVER":         &cfg.Cache.Driver,
		"DESIGNCORE_REDIS_ADDR":           &cfg.Cache.RedisAddr,
		"DESIGNCORE_REDIS_PASSWORD":       &cfg.Cache.RedisPassword,
		"DESIGNCORE_LOG_MODE":             &cfg.Log.Mode,
		"DESIGNCORE_LOG_LEVEL":            &cfg.Log.Level,
	}
	for key, target := range strs {
		if v, ok := lookup(key); ok {
			*target = strings.TrimSpace(v)
		}
	}
	ints := map[string]*int{
		"DESIGNCORE_CACHE_SIZE":          &cfg.Cache.Size,
		"DESIGNCORE_REDIS_DB":            &cfg.Cache.RedisDB,
		"DESIGNCORE_COMPOSE_MAX_DEPTH":   &cfg.Compose.MaxDepth,
		"DESIGNCORE_COMPOSE_CONCURRENCY": &cfg.Compose.Concurrency,
	}
	for key, target := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*target = n
		}
	}
	bools := map[string]*bool{
		"DESIGNCORE_S3_USE_PATH_STYLE": &cfg.Blob.S3.UsePathStyle,
		"DESIGNCORE_BADGER_IN_MEMORY":  &cfg.Storage.BadgerInMemory,
	}
	for key, target := range bools {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*target = b
		}
	}
	if v, ok := lookup("DESIGNCORE_CACHE_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("DESIGNCORE_CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = d
	}
	return nil
}
