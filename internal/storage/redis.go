package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "storefront:"

// RedisStore хранит состояние клиента в Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore подключается к Redis по адресу и проверяет соединение.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, defaultRedisPrefix), nil
}

// NewRedisStoreWithClient создаёт хранилище поверх готового клиента.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get возвращает значение по ключу.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get state %q: %w", key, err)
	}
	return v, nil
}

// Set сохраняет значение по ключу.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// SetMany сохраняет значения в одном блоке MULTI/EXEC.
func (s *RedisStore) SetMany(ctx context.Context, values map[string][]byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.prefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// Delete удаляет ключи.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.prefix+k)
	}

	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Close закрывает клиент Redis.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
