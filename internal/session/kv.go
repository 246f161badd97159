package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV stores the string keys of one session under a namespace.
type KV interface {
	Get(ctx context.Context, namespace string) (map[string]string, error)
	Set(ctx context.Context, namespace string, values map[string]string, ttl time.Duration) error
	Delete(ctx context.Context, namespace string) error
}

// MemoryKV keeps sessions in process memory.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	values    map[string]string
	expiresAt time.Time
}

// NewMemoryKV creates an empty in-memory session store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryKV) Get(ctx context.Context, namespace string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[namespace]
	if !ok {
		return map[string]string{}, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, namespace)
		return map[string]string{}, nil
	}

	out := make(map[string]string, len(entry.values))
	for k, v := range entry.values {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryKV) Set(ctx context.Context, namespace string, values map[string]string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.entries[namespace]
	if entry.values == nil {
		entry.values = make(map[string]string, len(values))
	}
	for k, v := range values {
		entry.values[k] = v
	}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[namespace] = entry
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.entries, namespace)
	m.mu.Unlock()
	return nil
}

// RedisKV keeps each session in a Redis hash.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV wraps client. Keys are stored as "<prefix><namespace>".
func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	if prefix == "" {
		prefix = "crowdstage:session:"
	}
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) Get(ctx context.Context, namespace string) (map[string]string, error) {
	values, err := r.client.HGetAll(ctx, r.prefix+namespace).Result()
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return values, nil
}

func (r *RedisKV) Set(ctx context.Context, namespace string, values map[string]string, ttl time.Duration) error {
	key := r.prefix + namespace

	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, namespace string) error {
	if err := r.client.Del(ctx, r.prefix+namespace).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// NewRedisClient connects to addr and pings it. A nil client is returned
// when the server cannot be reached so callers can fall back to MemoryKV.
func NewRedisClient(ctx context.Context, addr, password string, db int) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
