package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	_ "github.com/kozaktomas/face-registry/internal/database/mariadb"  // registers mysql://
	_ "github.com/kozaktomas/face-registry/internal/database/postgres" // registers postgres://
	"github.com/kozaktomas/face-registry/internal/storage"
	"github.com/kozaktomas/face-registry/internal/tokens"
)

// openBackend connects to the database named by DATABASE_URL and, when
// migrate is set, brings its schema up to date.
func openBackend(ctx context.Context, cfg *config.Config, migrate bool) (*database.Backend, error) {
	backend, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	fmt.Printf("Using %s backend\n", backend.Name)

	if migrate {
		if err := backend.Migrate(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return backend, nil
}

// newImageStore builds the image store selected by STORAGE_BACKEND.
func newImageStore(cfg *config.Config) (storage.ImageStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		store, err := storage.NewS3(storage.S3Config{
			Bucket:          cfg.Storage.Bucket,
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 image store: %w", err)
		}
		fmt.Printf("Image storage: s3://%s\n", cfg.Storage.Bucket)
		return store, nil
	default:
		store, err := storage.NewLocal(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to create local image store: %w", err)
		}
		fmt.Printf("Image storage: %s\n", cfg.Storage.Root)
		return store, nil
	}
}

// newTokenStore builds the token store selected by TOKEN_BACKEND. The
// returned function releases it.
func newTokenStore(ctx context.Context, cfg *config.Config) (tokens.Store, func(), error) {
	if cfg.Tokens.Backend == "redis" {
		store, err := tokens.NewRedisStoreFromURL(ctx, cfg.Tokens.RedisURL, cfg.Tokens.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		fmt.Printf("Token storage: redis\n")
		return store, func() { _ = store.Close() }, nil
	}

	store := tokens.NewMemoryStore(cfg.Tokens.TTL)
	if cfg.Tokens.TTL > 0 && cfg.Tokens.JanitorInterval > 0 {
		store.StartJanitor(cfg.Tokens.JanitorInterval)
	}
	fmt.Printf("Token storage: in-memory\n")
	return store, store.Stop, nil
}
