// File path: internal/blob/config.go
package blob

import (
	"os"
	"strconv"
	"strings"
)

// Config captures object store connection settings sourced from the
// environment.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// LoadConfig reads object store settings from the environment.
func LoadConfig() Config {
	cfg := Config{
		Endpoint:  strings.TrimSpace(os.Getenv("BLOB_ENDPOINT")),
		AccessKey: strings.TrimSpace(os.Getenv("BLOB_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("BLOB_SECRET_KEY")),
		Bucket:    strings.TrimSpace(os.Getenv("BLOB_BUCKET")),
		Region:    strings.TrimSpace(os.Getenv("BLOB_REGION")),
	}
	if raw := strings.TrimSpace(os.Getenv("BLOB_USE_SSL")); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			cfg.UseSSL = parsed
		}
	}
	cfg.applyDefaults()
	return cfg
}

// Merge overlays non-zero values from other onto the receiver.
func (c Config) Merge(other Config) Config {
	merged := c
	if other.Endpoint != "" {
		merged.Endpoint = other.Endpoint
	}
	if other.AccessKey != "" {
		merged.AccessKey = other.AccessKey
	}
	if other.SecretKey != "" {
		merged.SecretKey = other.SecretKey
	}
	if other.Bucket != "" {
		merged.Bucket = other.Bucket
	}
	if other.Region != "" {
		merged.Region = other.Region
	}
	if other.UseSSL {
		merged.UseSSL = true
	}
	merged.applyDefaults()
	return merged
}

// Configured reports whether enough settings are present to reach a real
// object store. When false, callers fall back to the in-memory store.
func (c Config) Configured() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

func (c *Config) applyDefaults() {
	if c.Bucket == "" {
		c.Bucket = "knowbase-documents"
	}
}
