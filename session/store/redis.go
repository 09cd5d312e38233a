package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/session"
)

// RedisStore keeps each conversation in a Redis hash, one field per
// document key, so HSET gives merge semantics for free.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis configuration for conversations.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// DefaultRedisConfig returns the local development configuration.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "travel:conversation:",
	}
}

// NewRedisStore creates a new Redis-based conversation store.
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

// Save merges doc into the conversation hash. Null entries are removed
// with HDEL.
func (s *RedisStore) Save(ctx context.Context, id string, doc session.Document) error {
	if id == "" {
		return fmt.Errorf("conversation id cannot be empty: %w", errorskg.ErrInvalidInput)
	}
	if len(doc) == 0 {
		return nil
	}

	set, removed := doc.Split()
	values := make(map[string]any, len(set))
	for k, v := range set {
		values[k] = string(v)
	}

	key := s.conversationKey(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(removed) > 0 {
			pipe.HDel(ctx, key, removed...)
		}
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		pipe.SAdd(ctx, s.setKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Load reads the conversation hash.
func (s *RedisStore) Load(ctx context.Context, id string) (session.Document, error) {
	fields, err := s.client.HGetAll(ctx, s.conversationKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("conversation %s: %w", id, errorskg.ErrNotFound)
	}

	doc := make(session.Document, len(fields))
	for k, v := range fields {
		doc[k] = json.RawMessage(v)
	}
	return doc, nil
}

// Delete removes a conversation from Redis.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.conversationKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if err := s.client.SRem(ctx, s.setKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to update conversation index: %w", err)
	}
	return nil
}

// List returns all conversation IDs.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return ids, nil
}

// Count returns the number of stored conversations.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	count, err := s.client.SCard(ctx, s.setKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return int(count), nil
}

// Exists checks if a conversation exists.
func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.conversationKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check conversation existence: %w", err)
	}
	return exists > 0, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) conversationKey(id string) string {
	return s.prefix + id
}

func (s *RedisStore) setKey() string {
	return s.prefix + "set"
}
