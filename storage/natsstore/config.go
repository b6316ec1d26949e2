package natsstore

import "time"

// Config holds configuration for the NATS KV blob backend.
type Config struct {
	// BucketPrefix namespaces the KV buckets backing containers:
	// container "docs" lives in bucket "<prefix>docs".
	BucketPrefix string `json:"bucket_prefix"`

	// History is how many revisions each key retains; revisions are the
	// backend's snapshots. NATS caps this at 64.
	History uint8 `json:"history"`

	// Replicas is the stream replication factor for created buckets.
	Replicas int `json:"replicas"`

	// LeaseTTL bounds how long a lease is honored without renewal.
	LeaseTTL time.Duration `json:"lease_ttl"`

	// OpTimeout bounds individual KV round-trips.
	OpTimeout time.Duration `json:"op_timeout"`
}

// DefaultConfig returns the default backend configuration.
func DefaultConfig() Config {
	return Config{
		BucketPrefix: "leo-",
		History:      64,
		Replicas:     1,
		LeaseTTL:     60 * time.Second,
		OpTimeout:    5 * time.Second,
	}
}
