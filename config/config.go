// Package config loads and validates the store's YAML application
// configuration and assembles the configured component graph.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/leo/errors"
)

// Config is the complete application configuration.
type Config struct {
	NATS  NATSConfig  `yaml:"nats"`
	Store StoreConfig `yaml:"store"`
}

// NATSConfig describes the NATS connection.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Token         string        `yaml:"token"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Timeout       time.Duration `yaml:"timeout"`
}

// StoreConfig describes the secure store assembly.
type StoreConfig struct {
	// Container is the default container for application objects.
	Container string `yaml:"container"`

	// Compression selects the write-side compressor: gzip, zstd, lz4,
	// or empty for none.
	Compression string `yaml:"compression"`

	// EncryptionKey is an age X25519 secret key (AGE-SECRET-KEY-1...).
	// Empty disables the encryptor.
	EncryptionKey string `yaml:"encryption_key"`

	// BackupSubject and IndexSubject are the JetStream subjects for
	// notification dispatch. Empty disables the respective queue.
	BackupSubject string `yaml:"backup_subject"`
	IndexSubject  string `yaml:"index_subject"`

	// Counter configures the id allocator's counter blob.
	Counter CounterConfig `yaml:"counter"`

	// Backend tunes the NATS KV backend.
	BucketPrefix string        `yaml:"bucket_prefix"`
	History      uint8         `yaml:"history"`
	Replicas     int           `yaml:"replicas"`
	LeaseTTL     time.Duration `yaml:"lease_ttl"`
}

// CounterConfig locates the id counter blob.
type CounterConfig struct {
	Container string `yaml:"container"`
	BasePath  string `yaml:"base_path"`
	RangeSize int64  `yaml:"range_size"`
}

// DefaultConfig returns the defaults applied before user overrides.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			Name:          "leo-store",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
		Store: StoreConfig{
			Container:   "objects",
			Compression: "zstd",
			Counter: CounterConfig{
				Container: "system",
				BasePath:  "ids/counter",
				RangeSize: 10,
			},
			BucketPrefix: "leo-",
			History:      64,
			Replicas:     1,
			LeaseTTL:     60 * time.Second,
		},
	}
}

// Load reads a YAML config file, layered over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "read "+path)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse yaml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "config", "Validate", "nats.url is required")
	}
	if c.Store.Container == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "config", "Validate", "store.container is required")
	}

	switch c.Store.Compression {
	case "", "gzip", "zstd", "lz4":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown compression %q: %w", c.Store.Compression, errors.ErrInvalidData),
			"config", "Validate", "store.compression")
	}

	if c.Store.Counter.BasePath == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "config", "Validate", "store.counter.base_path is required")
	}
	if c.Store.Counter.RangeSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "config", "Validate", "store.counter.range_size must be positive")
	}
	if c.Store.History > 64 {
		return errors.WrapInvalid(errors.ErrInvalidData, "config", "Validate", "store.history exceeds the KV limit of 64")
	}
	return nil
}
