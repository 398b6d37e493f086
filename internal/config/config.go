/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBusBackend selects the optional cross-instance event relay.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusNATS   EventBusBackend = "nats"
	EventBusRedis  EventBusBackend = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL (e.g., http://192.168.1.20:8080)
	DBBackend   DatabaseBackend
	DBDSN       string
	MediaRoot   string
	MetricsBind string

	// Display auth
	PlayerToken   string // shared bearer token presented by displays
	JWTSigningKey string // admin console session tokens
	AdminPassword string // initial admin password, hashed on first boot

	// Playback
	ResolveInterval time.Duration // periodic re-resolution tick, never below 60s
	MaxUploadSizeMB int

	// S3 object storage (used when bucket is set, otherwise filesystem)
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // for S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // optional CDN URL
	S3UsePathStyle    bool   // required for MinIO

	// Cross-instance event relay
	EventBus      EventBusBackend
	NATSURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	InstanceID    string

	// Tracing
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Media probing
	FFProbeBin string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("FRAMEWALL_ENV", "development"),
		HTTPBind:    getEnv("FRAMEWALL_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("FRAMEWALL_HTTP_PORT", 8080),
		BaseURL:     getEnv("FRAMEWALL_BASE_URL", ""),
		DBBackend:   DatabaseBackend(getEnv("FRAMEWALL_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:       getEnv("FRAMEWALL_DB_DSN", "framewall.db"),
		MediaRoot:   getEnv("FRAMEWALL_MEDIA_ROOT", "./media"),
		MetricsBind: getEnv("FRAMEWALL_METRICS_BIND", "127.0.0.1:9000"),

		PlayerToken:   getEnv("FRAMEWALL_PLAYER_TOKEN", ""),
		JWTSigningKey: getEnv("FRAMEWALL_JWT_SIGNING_KEY", ""),
		AdminPassword: getEnv("FRAMEWALL_ADMIN_PASSWORD", ""),

		ResolveInterval: time.Duration(getEnvInt("FRAMEWALL_RESOLVE_INTERVAL_SECONDS", 60)) * time.Second,
		MaxUploadSizeMB: getEnvInt("FRAMEWALL_MAX_UPLOAD_SIZE_MB", 0),

		S3AccessKeyID:     getEnvAny([]string{"FRAMEWALL_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"FRAMEWALL_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"FRAMEWALL_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"FRAMEWALL_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"FRAMEWALL_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"FRAMEWALL_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBool("FRAMEWALL_S3_USE_PATH_STYLE", false),

		EventBus:      EventBusBackend(getEnv("FRAMEWALL_EVENT_BUS", string(EventBusMemory))),
		NATSURL:       getEnv("FRAMEWALL_NATS_URL", "nats://localhost:4222"),
		RedisAddr:     getEnv("FRAMEWALL_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("FRAMEWALL_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("FRAMEWALL_REDIS_DB", 0),
		InstanceID:    getEnv("FRAMEWALL_INSTANCE_ID", ""),

		TracingEnabled:    getEnvBool("FRAMEWALL_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("FRAMEWALL_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("FRAMEWALL_TRACING_SAMPLE_RATE", 1.0),

		FFProbeBin: getEnv("FRAMEWALL_FFPROBE_BIN", "ffprobe"),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	switch cfg.EventBus {
	case EventBusMemory, EventBusNATS, EventBusRedis:
	default:
		return nil, fmt.Errorf("unsupported event bus backend %q", cfg.EventBus)
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("FRAMEWALL_JWT_SIGNING_KEY must be provided")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.PlayerToken == "" {
			return nil, fmt.Errorf("FRAMEWALL_PLAYER_TOKEN must be set in production")
		}
		if cfg.AdminPassword == "" || strings.EqualFold(cfg.AdminPassword, "admin") {
			return nil, fmt.Errorf("FRAMEWALL_ADMIN_PASSWORD must be set to a non-default value in production")
		}
	}

	// The resolution tick catches schedule boundary crossings while a display
	// is otherwise idle; running it faster than once a minute buys nothing.
	if cfg.ResolveInterval < time.Minute {
		cfg.ResolveInterval = time.Minute
	}

	return cfg, nil
}

// MaxUploadSizeBytes returns the configured upload limit in bytes.
// A value of 0 means "not configured" and callers should use endpoint defaults.
func (c *Config) MaxUploadSizeBytes() int64 {
	if c == nil || c.MaxUploadSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}
