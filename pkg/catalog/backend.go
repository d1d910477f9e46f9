package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/config"
)

// ErrCacheMiss is returned by a Backend when the key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// Backend stores serialized catalog entries with a TTL
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryBackend keeps entries in process memory
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[key]
	if !ok || !m.now().Before(e.expires) {
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryEntry{value: value, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// RedisBackend shares catalog entries between server processes
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisBackend connects to Redis and checks the connection
func NewRedisBackend(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("catalog cache backed by redis", zap.String("addr", cfg.Addr))
	return &RedisBackend{
		client: client,
		prefix: "remote_image_ai:catalog:",
		logger: logger.With(zap.String("component", "catalog_redis")),
	}, nil
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
