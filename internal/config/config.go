package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

// DefaultManifest is the application shell needed to work offline.
var DefaultManifest = []string{
	"./",
	"./index.html",
	"./css/style.css",
	"./js/app.js",
	"./manifest.json",
	"./icons/icon-192.png",
	"./icons/icon-512.png",
}

type Config struct {
	ListenAddr string `yaml:"listen_addr" env:"VOICENOTES_LISTEN_ADDR"`
	OriginURL  string `yaml:"origin_url" env:"VOICENOTES_ORIGIN_URL"`

	CacheVersion string   `yaml:"cache_version" env:"VOICENOTES_CACHE_VERSION"`
	Manifest     []string `yaml:"manifest" env:"VOICENOTES_MANIFEST" envSeparator:","`
	FallbackPath string   `yaml:"fallback_path" env:"VOICENOTES_FALLBACK_PATH"`
	Backend      string   `yaml:"backend" env:"VOICENOTES_BACKEND"`

	SQLitePath string `yaml:"sqlite_path" env:"VOICENOTES_SQLITE_PATH"`

	RedisAddr     string `yaml:"redis_addr" env:"VOICENOTES_REDIS_ADDR"`
	RedisDB       int    `yaml:"redis_db" env:"VOICENOTES_REDIS_DB"`
	RedisPassword string `yaml:"redis_password" env:"VOICENOTES_REDIS_PASSWORD"`
	RedisPrefix   string `yaml:"redis_prefix" env:"VOICENOTES_REDIS_PREFIX"`

	S3Endpoint  string `yaml:"s3_endpoint" env:"VOICENOTES_S3_ENDPOINT"`
	S3Region    string `yaml:"s3_region" env:"VOICENOTES_S3_REGION"`
	S3Bucket    string `yaml:"s3_bucket" env:"VOICENOTES_S3_BUCKET"`
	S3Prefix    string `yaml:"s3_prefix" env:"VOICENOTES_S3_PREFIX"`
	S3AccessKey string `yaml:"s3_access_key" env:"VOICENOTES_S3_ACCESS_KEY"`
	S3SecretKey string `yaml:"s3_secret_key" env:"VOICENOTES_S3_SECRET_KEY"`

	LockTTLSeconds      int `yaml:"lock_ttl_seconds" env:"VOICENOTES_LOCK_TTL_SECONDS"`
	MaxLockWaitSeconds  int `yaml:"max_lock_wait_seconds" env:"VOICENOTES_MAX_LOCK_WAIT_SECONDS"`
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" env:"VOICENOTES_FETCH_TIMEOUT_SECONDS"`

	MetricsPath  string `yaml:"metrics_path" env:"VOICENOTES_METRICS_PATH"`
	EventsPrefix string `yaml:"events_prefix" env:"VOICENOTES_EVENTS_PREFIX"`
	PushChannel  string `yaml:"push_channel" env:"VOICENOTES_PUSH_CHANNEL"`

	NotesBackend string `yaml:"notes_backend" env:"VOICENOTES_NOTES_BACKEND"`
	NotesDBPath  string `yaml:"notes_db_path" env:"VOICENOTES_NOTES_DB_PATH"`
	Language     string `yaml:"language" env:"VOICENOTES_LANGUAGE"`
}

func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		CacheVersion:       "voicenotes-v1",
		Manifest:           append([]string(nil), DefaultManifest...),
		FallbackPath:       "./index.html",
		Backend:            BackendMemory,
		SQLitePath:         "voicenotes-cache.db",
		RedisPrefix:        "voicenotes",
		LockTTLSeconds:     45,
		MaxLockWaitSeconds: 30,
		MetricsPath:        "/metrics",
		EventsPrefix:       "/_sw",
		PushChannel:        "voicenotes:notifications",
		NotesBackend:       BackendSQLite,
		NotesDBPath:        "voicenotes-notes.db",
		Language:           "en",
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// then the environment, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.NotesBackend = strings.ToLower(strings.TrimSpace(cfg.NotesBackend))
	return cfg, nil
}

// Validate checks what the proxy needs to run. The notes commands only need
// a subset and do not call it.
func (c Config) Validate() error {
	if c.OriginURL == "" {
		return errors.New("VOICENOTES_ORIGIN_URL is required")
	}
	if c.CacheVersion == "" {
		return errors.New("VOICENOTES_CACHE_VERSION is required")
	}
	if len(c.Manifest) == 0 {
		return errors.New("manifest must list at least one asset")
	}
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("VOICENOTES_SQLITE_PATH is required for the sqlite backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("VOICENOTES_REDIS_ADDR is required for the redis backend")
		}
	case BackendS3:
		if c.S3Endpoint == "" || c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			return errors.New("S3 endpoint/bucket/access/secret are required")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c Config) MaxLockWait() time.Duration {
	return time.Duration(c.MaxLockWaitSeconds) * time.Second
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}
