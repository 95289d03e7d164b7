package storage

import (
	"context"
	"sync"
)

// MemoryStore хранит состояние в памяти процесса. Используется в тестах
// и когда постоянное хранилище не настроено.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore создаёт пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get возвращает копию значения по ключу.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set сохраняет значение по ключу.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

// SetMany сохраняет несколько значений под одной блокировкой.
func (m *MemoryStore) SetMany(_ context.Context, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range values {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

// Delete удаляет ключи; отсутствующие ключи игнорируются.
func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Close ничего не делает.
func (m *MemoryStore) Close() error {
	return nil
}
