package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/config"
	"github.com/goodtune/rollcall/internal/storage"
)

const defaultKeyPrefix = "rollcall"

// Store implements the storage.Store interface using Redis
type Store struct {
	client    *redis.Client
	sessions  *sessionStore
	prefStore *preferenceStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig, logger zerolog.Logger) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	// Create Redis client
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	k := newKeys(cfg.KeyPrefix)
	log := logger.With().Str("component", "storage").Str("backend", "redis").Logger()

	// Initialize stores
	store := &Store{
		client:    client,
		sessions:  &sessionStore{client: client, keys: k, logger: log},
		prefStore: &preferenceStore{client: client, keys: k},
	}

	return store, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Sessions returns the SessionStore implementation
func (s *Store) Sessions() storage.SessionStore {
	return s.sessions
}

// Preferences returns the PreferenceStore implementation
func (s *Store) Preferences() storage.PreferenceStore {
	return s.prefStore
}
