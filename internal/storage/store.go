// Package storage содержит реализации локального хранилища состояния клиента:
// токенов, профиля, корзины и теневого кэша заказов.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound возвращается, если ключ отсутствует в хранилище.
var ErrNotFound = errors.New("key not found")

// Store описывает хранилище пар ключ-значение. Каждый ключ хранится
// независимо, поэтому повреждение одного значения не затрагивает остальные.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany записывает все значения атомарно: либо все, либо ни одного.
	SetMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
