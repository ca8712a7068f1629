// Package stores opens the session and credential stores selected in configuration.
package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/googleconnector/cache"
	connredis "github.com/pilab-dev/googleconnector/cache/redis"
	"github.com/pilab-dev/googleconnector/config"
	"github.com/pilab-dev/googleconnector/domain"
	"github.com/pilab-dev/googleconnector/internal/storage"
	"github.com/pilab-dev/googleconnector/mongodb"
	"github.com/redis/go-redis/v9"
)

// Stores bundles the opened backends. Close releases whatever connections they hold.
type Stores struct {
	Sessions    domain.SessionStore
	Credentials domain.CredentialStore
	closers     []func(context.Context) error
}

// Close releases the backend connections in reverse opening order.
func (s *Stores) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.StorageConfig) (*Stores, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		sessions := cache.NewMemorySessionStore()
		return &Stores{
			Sessions:    sessions,
			Credentials: cache.NewMemoryCredentialStore(),
			closers:     []func(context.Context) error{func(context.Context) error { return sessions.Close() }},
		}, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := connredis.Ping(ctx, client); err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Stores{
			Sessions:    connredis.NewSessionStore(client, cfg.RedisPrefix),
			Credentials: connredis.NewCredentialStore(client, cfg.RedisPrefix),
			closers:     []func(context.Context) error{func(context.Context) error { return client.Close() }},
		}, nil

	case config.BackendMongoDB:
		db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		sessions, err := mongodb.NewSessionRepositoryMongo(ctx, db)
		if err != nil {
			mongodb.Close(ctx, db)
			return nil, err
		}
		credentials, err := mongodb.NewCredentialRepositoryMongo(ctx, db)
		if err != nil {
			mongodb.Close(ctx, db)
			return nil, err
		}
		return &Stores{
			Sessions:    sessions,
			Credentials: credentials,
			closers: []func(context.Context) error{func(ctx context.Context) error {
				mongodb.Close(ctx, db)
				return nil
			}},
		}, nil

	case config.BackendBolt:
		bolt, err := storage.NewBBoltStore(cfg.BoltPath, cfg.BoltCleanup)
		if err != nil {
			return nil, err
		}
		bolt.StartCleanupRoutine()
		return &Stores{
			Sessions:    storage.NewSessionStore(bolt),
			Credentials: storage.NewCredentialStore(bolt),
			closers:     []func(context.Context) error{func(context.Context) error { return bolt.Close() }},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
