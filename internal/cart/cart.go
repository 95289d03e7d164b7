// Package cart хранит корзину покупателя: товары и их количество. Итоги
// корзины не хранятся, а пересчитываются при каждом чтении.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/coffeetime-storefront/internal/model"
	"github.com/mmeshcher/coffeetime-storefront/internal/storage"
)

const storageKey = "cart"

// Cart хранит строки корзины в памяти и сохраняет их после каждого изменения.
// Изменять корзину можно только через её методы.
type Cart struct {
	store  storage.Store
	logger *zap.Logger

	mu    sync.RWMutex
	lines []model.CartLine

	subsMu  sync.Mutex
	subs    map[int]func([]model.CartLine)
	nextSub int
}

// New создаёт пустую корзину поверх store.
func New(store storage.Store, logger *zap.Logger) *Cart {
	return &Cart{
		store:  store,
		logger: logger,
		subs:   make(map[int]func([]model.CartLine)),
	}
}

// Load восстанавливает корзину из хранилища. Повреждённые данные дают пустую
// корзину.
func (c *Cart) Load(ctx context.Context) error {
	raw, err := c.store.Get(ctx, storageKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load cart: %w", err)
	}

	var lines []model.CartLine
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &lines); err != nil {
			c.logger.Warn("stored cart is corrupted, starting with empty cart", zap.Error(err))
			lines = nil
		}
	}

	valid := lines[:0]
	for _, l := range lines {
		if l.Quantity > 0 {
			valid = append(valid, l)
		}
	}

	c.mu.Lock()
	c.lines = valid
	c.mu.Unlock()

	c.notify()
	return nil
}

// Add добавляет товар: увеличивает количество существующей строки на 1 или
// добавляет новую строку в конец.
func (c *Cart) Add(ctx context.Context, p model.Product) error {
	return c.mutate(ctx, func(lines []model.CartLine) []model.CartLine {
		if i := indexOf(lines, p.ID); i >= 0 {
			lines[i].Product = p
			lines[i].Quantity++
			return lines
		}
		return append(lines, model.CartLine{Product: p, Quantity: 1})
	})
}

// UpdateQuantity задаёт количество товара. Количество меньше единицы удаляет строку.
func (c *Cart) UpdateQuantity(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return c.Remove(ctx, productID)
	}

	return c.mutate(ctx, func(lines []model.CartLine) []model.CartLine {
		if i := indexOf(lines, productID); i >= 0 {
			lines[i].Quantity = qty
		}
		return lines
	})
}

// Remove удаляет строку товара, если она есть.
func (c *Cart) Remove(ctx context.Context, productID int64) error {
	return c.mutate(ctx, func(lines []model.CartLine) []model.CartLine {
		i := indexOf(lines, productID)
		if i < 0 {
			return lines
		}
		return append(lines[:i], lines[i+1:]...)
	})
}

// Clear очищает корзину.
func (c *Cart) Clear(ctx context.Context) error {
	return c.mutate(ctx, func([]model.CartLine) []model.CartLine {
		return nil
	})
}

// SyncCatalog обновляет данные товаров в корзине по актуальному каталогу,
// чтобы итог считался по текущим ценам.
func (c *Cart) SyncCatalog(ctx context.Context, products []model.Product) error {
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	return c.mutate(ctx, func(lines []model.CartLine) []model.CartLine {
		for i := range lines {
			if p, ok := byID[lines[i].Product.ID]; ok {
				lines[i].Product = p
			}
		}
		return lines
	})
}

// Lines возвращает копию строк корзины в порядке добавления.
func (c *Cart) Lines() []model.CartLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.CartLine(nil), c.lines...)
}

// ItemCount возвращает суммарное количество единиц товара.
func (c *Cart) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// TotalPrice возвращает сумму цена × количество по всем строкам.
func (c *Cart) TotalPrice() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// IsEmpty сообщает, что в корзине нет строк.
func (c *Cart) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines) == 0
}

// Subscribe регистрирует наблюдателя за изменениями корзины. Возвращает
// функцию отписки.
func (c *Cart) Subscribe(fn func([]model.CartLine)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs, id)
	}
}

// mutate применяет изменение в памяти и сохраняет результат. Ошибка
// сохранения возвращается, но изменение в памяти остаётся в силе.
func (c *Cart) mutate(ctx context.Context, fn func([]model.CartLine) []model.CartLine) error {
	c.mu.Lock()
	c.lines = fn(append([]model.CartLine(nil), c.lines...))
	err := c.persist(ctx)
	c.mu.Unlock()

	c.notify()
	return err
}

func (c *Cart) persist(ctx context.Context) error {
	if len(c.lines) == 0 {
		if err := c.store.Delete(ctx, storageKey); err != nil {
			c.logger.Warn("persist cart", zap.Error(err))
			return fmt.Errorf("persist cart: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(c.lines)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	if err := c.store.Set(ctx, storageKey, raw); err != nil {
		c.logger.Warn("persist cart", zap.Error(err))
		return fmt.Errorf("persist cart: %w", err)
	}
	return nil
}

func (c *Cart) notify() {
	lines := c.Lines()

	c.subsMu.Lock()
	subs := make([]func([]model.CartLine), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range subs {
		fn(lines)
	}
}

func indexOf(lines []model.CartLine, productID int64) int {
	for i, l := range lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}
