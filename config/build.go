package config

import (
	"context"
	"log/slog"

	"github.com/c360/leo/natsclient"
	"github.com/c360/leo/pipeline"
	"github.com/c360/leo/queue"
	"github.com/c360/leo/securestore"
	"github.com/c360/leo/storage"
	"github.com/c360/leo/storage/natsstore"
)

// Runtime is the assembled component graph for one configuration.
type Runtime struct {
	Client  *natsclient.Client
	Backend storage.Backend
	Store   *securestore.Store
}

// Close releases the NATS connection.
func (r *Runtime) Close() error {
	return r.Client.Close()
}

// Build connects to NATS and assembles the backend, queues, codecs, id
// allocator, and secure store the configuration describes.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithTimeout(cfg.NATS.Timeout),
		natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password),
		natsclient.WithToken(cfg.NATS.Token),
		natsclient.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	backendCfg := natsstore.DefaultConfig()
	if cfg.Store.BucketPrefix != "" {
		backendCfg.BucketPrefix = cfg.Store.BucketPrefix
	}
	if cfg.Store.History > 0 {
		backendCfg.History = cfg.Store.History
	}
	if cfg.Store.Replicas > 0 {
		backendCfg.Replicas = cfg.Store.Replicas
	}
	if cfg.Store.LeaseTTL > 0 {
		backendCfg.LeaseTTL = cfg.Store.LeaseTTL
	}

	backend, err := natsstore.New(client, backendCfg, natsstore.WithLogger(logger))
	if err != nil {
		client.Close()
		return nil, err
	}

	storeOpts := []securestore.Option{securestore.WithLogger(logger)}

	if codec := compressionCodec(cfg.Store.Compression); codec != nil {
		storeOpts = append(storeOpts, securestore.WithCompressor(codec))
	}

	if cfg.Store.EncryptionKey != "" {
		encryptor, err := pipeline.NewAgeCodecFromString(cfg.Store.EncryptionKey)
		if err != nil {
			client.Close()
			return nil, err
		}
		storeOpts = append(storeOpts, securestore.WithEncryptor(encryptor))
	}

	if cfg.Store.BackupSubject != "" {
		backup, err := queue.NewNATSQueue(client, cfg.Store.BackupSubject)
		if err != nil {
			client.Close()
			return nil, err
		}
		storeOpts = append(storeOpts, securestore.WithBackupQueue(backup))
	}
	if cfg.Store.IndexSubject != "" {
		index, err := queue.NewNATSQueue(client, cfg.Store.IndexSubject)
		if err != nil {
			client.Close()
			return nil, err
		}
		storeOpts = append(storeOpts, securestore.WithIndexQueue(index))
	}

	counterContainer := cfg.Store.Counter.Container
	if counterContainer == "" {
		counterContainer = cfg.Store.Container
	}
	counterLoc := storage.NewLocation(counterContainer, cfg.Store.Counter.BasePath)
	allocator := securestore.NewRangeAllocator(backend, counterLoc,
		securestore.WithRangeSize(cfg.Store.Counter.RangeSize),
		securestore.WithAllocatorLogger(logger),
	)
	storeOpts = append(storeOpts, securestore.WithIDGenerator(allocator))

	store, err := securestore.New(backend, storeOpts...)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Runtime{Client: client, Backend: backend, Store: store}, nil
}

func compressionCodec(name string) pipeline.Codec {
	switch name {
	case "gzip":
		return pipeline.NewGzipCodec()
	case "zstd":
		return pipeline.NewZstdCodec()
	case "lz4":
		return pipeline.NewLZ4Codec()
	default:
		return nil
	}
}
