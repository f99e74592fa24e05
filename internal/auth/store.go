package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-cms/odyssey-cms/internal/shared"
)

// TokenStore persists issued tokens until they expire.
type TokenStore interface {
	Save(ctx context.Context, token string, claims Claims, ttl time.Duration) error
	Load(ctx context.Context, token string) (Claims, error)
	Delete(ctx context.Context, token string) error
}

// RedisStore keeps tokens in Redis with a native TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "cms:token:"}
}

// Save stores claims under token.
func (s *RedisStore) Save(ctx context.Context, token string, claims Claims, ttl time.Duration) error {
	payload, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("auth: encode claims: %w", err)
	}
	return s.client.Set(ctx, s.prefix+token, payload, ttl).Err()
}

// Load returns the claims for token or shared.ErrUnauthorized.
func (s *RedisStore) Load(ctx context.Context, token string) (Claims, error) {
	payload, err := s.client.Get(ctx, s.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return Claims{}, shared.ErrUnauthorized
	}
	if err != nil {
		return Claims{}, err
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("auth: decode claims: %w", err)
	}
	return claims, nil
}

// Delete removes token.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.prefix+token).Err()
}

// MemoryStore keeps tokens in process, for single node setups without Redis.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(time.Hour, 10*time.Minute)}
}

// Save stores claims under token.
func (s *MemoryStore) Save(ctx context.Context, token string, claims Claims, ttl time.Duration) error {
	s.cache.Set(token, claims, ttl)
	return nil
}

// Load returns the claims for token or shared.ErrUnauthorized.
func (s *MemoryStore) Load(ctx context.Context, token string) (Claims, error) {
	v, ok := s.cache.Get(token)
	if !ok {
		return Claims{}, shared.ErrUnauthorized
	}
	return v.(Claims), nil
}

// Delete removes token.
func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.cache.Delete(token)
	return nil
}

var (
	_ TokenStore = (*RedisStore)(nil)
	_ TokenStore = (*MemoryStore)(nil)
)
