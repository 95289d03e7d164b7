package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/coffeetime-storefront/internal/model"
	"github.com/mmeshcher/coffeetime-storefront/internal/storage"
)

const shadowKey = "shadow_orders"

// ShadowCache хранит локальные снимки заказов. Они показываются только когда
// удалённая сторона недоступна; каждый успешный запрос списка приводит кэш
// к составу, подтверждённому сервером.
type ShadowCache struct {
	store  storage.Store
	logger *zap.Logger
	mu     sync.Mutex
}

// NewShadowCache создаёт теневой кэш поверх store.
func NewShadowCache(store storage.Store, logger *zap.Logger) *ShadowCache {
	return &ShadowCache{store: store, logger: logger}
}

// Snapshot возвращает закэшированные заказы, новые первыми. Недоступный или
// повреждённый кэш даёт пустой список.
func (s *ShadowCache) Snapshot(ctx context.Context) []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read(ctx)

	out := make([]model.Order, 0, len(entries))
	for _, o := range entries {
		out = append(out, o)
	}
	sortNewestFirst(out)
	return out
}

// Lookup возвращает последний известный снимок заказа.
func (s *ShadowCache) Lookup(ctx context.Context, id int64) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.read(ctx)[id]
	return o, ok
}

// Reconcile заменяет содержимое кэша списком, полученным от сервера.
// Записи, которых сервер не подтвердил, удаляются.
func (s *ShadowCache) Reconcile(ctx context.Context, remote []model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make(map[int64]model.Order, len(remote))
	for _, o := range remote {
		entries[o.ID] = o
	}
	return s.write(ctx, entries)
}

// Put сохраняет снимок заказа.
func (s *ShadowCache) Put(ctx context.Context, o model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read(ctx)
	entries[o.ID] = o
	return s.write(ctx, entries)
}

// MarkCancelled отмечает закэшированный заказ отменённым до подтверждения
// сервером в следующем списке.
func (s *ShadowCache) MarkCancelled(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read(ctx)
	o, ok := entries[id]
	if !ok {
		return nil
	}
	o.Status = model.OrderStatusCancelled
	entries[id] = o
	return s.write(ctx, entries)
}

// Evict удаляет снимок заказа.
func (s *ShadowCache) Evict(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read(ctx)
	if _, ok := entries[id]; !ok {
		return nil
	}
	delete(entries, id)
	return s.write(ctx, entries)
}

func (s *ShadowCache) read(ctx context.Context) map[int64]model.Order {
	entries := make(map[int64]model.Order)

	raw, err := s.store.Get(ctx, shadowKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("read shadow order cache", zap.Error(err))
		}
		return entries
	}

	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warn("shadow order cache is corrupted, ignoring it", zap.Error(err))
		return make(map[int64]model.Order)
	}
	return entries
}

func (s *ShadowCache) write(ctx context.Context, entries map[int64]model.Order) error {
	if len(entries) == 0 {
		if err := s.store.Delete(ctx, shadowKey); err != nil {
			return fmt.Errorf("clear shadow cache: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode shadow cache: %w", err)
	}
	if err := s.store.Set(ctx, shadowKey, raw); err != nil {
		return fmt.Errorf("write shadow cache: %w", err)
	}
	return nil
}

func sortNewestFirst(orders []model.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}
