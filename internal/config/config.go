// Package config provides YAML-based configuration for campd.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. CAMPD_CONFIG environment variable
//  3. ~/.campd/config.yaml
//  4. ./campd.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// OpenAI configures the vector-store provider and the embedding client.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Storage configures the S3-compatible object store.
	Storage StorageConfig `yaml:"storage"`

	// SMTP configures registration-confirmation email delivery.
	SMTP SMTPConfig `yaml:"smtp"`

	// Qdrant configures the camp similarity index connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Embedding configures the embedding model for the similarity index.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Database configures the registration database.
	Database DatabaseConfig `yaml:"database"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Organization is the optional OpenAI organization ID.
	Organization string `yaml:"organization"`
	// BaseURL overrides the default API endpoint (proxies, compatible vendors).
	BaseURL string `yaml:"base_url"`
}

// StorageConfig holds S3-compatible object storage settings.
type StorageConfig struct {
	// Region is the bucket's region.
	Region string `yaml:"region"`
	// Bucket is the bucket all camp documents live in.
	Bucket string `yaml:"bucket"`
	// AccessKeyID is the static access key. Prefer env var AWS_ACCESS_KEY_ID.
	AccessKeyID string `yaml:"access_key_id"`
	// SecretAccessKey is the static secret key. Prefer env var AWS_SECRET_ACCESS_KEY.
	SecretAccessKey string `yaml:"secret_access_key"`
	// Endpoint overrides the vendor endpoint (MinIO, R2).
	Endpoint string `yaml:"endpoint"`
	// PathStyle forces path-style addressing, required by MinIO.
	PathStyle bool `yaml:"path_style"`
	// PublicBaseURL marks the bucket public and prefixes browsable links.
	PublicBaseURL string `yaml:"public_base_url"`
}

// SMTPConfig holds email delivery settings.
type SMTPConfig struct {
	// Host is the SMTP server hostname.
	Host string `yaml:"host"`
	// Port is the SMTP submission port.
	Port int `yaml:"port"`
	// Username and Password authenticate the submission.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// From is the sender address on outgoing mail.
	From string `yaml:"from"`
}

// QdrantConfig holds Qdrant similarity index settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// EmbeddingConfig holds embedding model settings for the similarity index.
type EmbeddingConfig struct {
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var CAMPD_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// DatabaseConfig holds registration database settings.
type DatabaseConfig struct {
	// Path is the SQLite database path.
	Path string `yaml:"path"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"OPENAI_API_KEY", func(c *Config) string { return c.OpenAI.APIKey }},
	{"OPENAI_ORGANIZATION", func(c *Config) string { return c.OpenAI.Organization }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.OpenAI.BaseURL }},
	{"AWS_REGION", func(c *Config) string { return c.Storage.Region }},
	{"S3_BUCKET", func(c *Config) string { return c.Storage.Bucket }},
	{"AWS_ACCESS_KEY_ID", func(c *Config) string { return c.Storage.AccessKeyID }},
	{"AWS_SECRET_ACCESS_KEY", func(c *Config) string { return c.Storage.SecretAccessKey }},
	{"S3_ENDPOINT", func(c *Config) string { return c.Storage.Endpoint }},
	{"S3_PATH_STYLE", func(c *Config) string { return boolStr(c.Storage.PathStyle) }},
	{"S3_PUBLIC_BASE_URL", func(c *Config) string { return c.Storage.PublicBaseURL }},
	{"SMTP_HOST", func(c *Config) string { return c.SMTP.Host }},
	{"SMTP_PORT", func(c *Config) string { return intStr(c.SMTP.Port) }},
	{"SMTP_USERNAME", func(c *Config) string { return c.SMTP.Username }},
	{"SMTP_PASSWORD", func(c *Config) string { return c.SMTP.Password }},
	{"SMTP_FROM", func(c *Config) string { return c.SMTP.From }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"CAMPD_HOST", func(c *Config) string { return c.Server.Host }},
	{"CAMPD_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"CAMPD_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"CAMPD_DB", func(c *Config) string { return c.Database.Path }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("CAMPD_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".campd", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("campd.yaml"); err == nil {
		return "campd.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
