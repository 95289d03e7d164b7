// Package service реализует сценарии витрины поверх сессии, корзины и шлюза
// заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/coffeetime-storefront/internal/api"
	"github.com/mmeshcher/coffeetime-storefront/internal/lifecycle"
	"github.com/mmeshcher/coffeetime-storefront/internal/model"
	"github.com/mmeshcher/coffeetime-storefront/internal/orders"
	"github.com/mmeshcher/coffeetime-storefront/internal/validation"
)

var (
	// ErrNotAuthenticated возвращается, когда для операции нужен вход.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrEmptyCart возвращается при оформлении пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrActionNotAllowed возвращается, когда действие недоступно для статуса заказа.
	ErrActionNotAllowed = errors.New("action is not allowed for order status")
	// ErrInvalidInterval возвращается при неположительном интервале опроса.
	ErrInvalidInterval = errors.New("watch interval must be positive")
)

// Session описывает состояние сессии, нужное сценариям.
type Session interface {
	IsAuthenticated() bool
}

// Cart описывает корзину, из которой оформляется заказ.
type Cart interface {
	Lines() []model.CartLine
	TotalPrice() decimal.Decimal
	IsEmpty() bool
	Clear(ctx context.Context) error
	SyncCatalog(ctx context.Context, products []model.Product) error
}

// Gateway описывает операции над заказами.
type Gateway interface {
	List(ctx context.Context) ([]model.Order, bool, error)
	Create(ctx context.Context, draft model.OrderDraft) (*model.Order, error)
	Cancel(ctx context.Context, id int64) (*orders.CancelResult, error)
	Delete(ctx context.Context, id int64) (string, error)
	KnownStatus(ctx context.Context, id int64) (model.OrderStatus, bool)
}

// Catalog описывает чтение каталога.
type Catalog interface {
	Products(ctx context.Context) ([]model.Product, error)
	Product(ctx context.Context, id int64) (*model.Product, error)
}

// Hint подсказывает, что делать после неудачного действия.
type Hint string

const (
	HintRetry          Hint = "retry"
	HintContactSupport Hint = "contact_support"
	HintLogin          Hint = "login"
)

// ActionError описывает неудачное действие над заказом вместе с подсказкой.
type ActionError struct {
	Hint Hint
	Err  error
}

func (e *ActionError) Error() string {
	return api.MessageOf(e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// OrdersView содержит список заказов и признак того, что он взят из
// локального кэша.
type OrdersView struct {
	Orders []model.Order
	Stale  bool
}

// ActionResult описывает результат действия над заказом и обновлённый список.
type ActionResult struct {
	Message string
	View    OrdersView
}

// Service содержит сценарии витрины.
type Service struct {
	session Session
	cart    Cart
	gateway Gateway
	catalog Catalog
	logger  *zap.Logger

	mu    sync.Mutex
	known map[int64]model.OrderStatus
}

// NewService создаёт сервис витрины.
func NewService(session Session, cart Cart, gateway Gateway, catalog Catalog, logger *zap.Logger) *Service {
	return &Service{
		session: session,
		cart:    cart,
		gateway: gateway,
		catalog: catalog,
		logger:  logger,
		known:   make(map[int64]model.OrderStatus),
	}
}

// Products возвращает каталог. При ошибке возвращается пустой список.
func (s *Service) Products(ctx context.Context) []model.Product {
	products, err := s.catalog.Products(ctx)
	if err != nil {
		s.logger.Warn("load products", zap.Error(err))
		return []model.Product{}
	}

	if err := s.cart.SyncCatalog(ctx, products); err != nil {
		s.logger.Warn("sync cart with catalog", zap.Error(err))
	}
	return products
}

// Product возвращает товар по идентификатору.
func (s *Service) Product(ctx context.Context, id int64) (*model.Product, error) {
	return s.catalog.Product(ctx, id)
}

// PlaceOrder оформляет заказ из корзины. Корзина очищается только после
// того, как удалённая сторона приняла заказ.
func (s *Service) PlaceOrder(ctx context.Context, form model.OrderForm) (*model.Order, error) {
	if !s.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if s.cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if err := validation.ValidateOrderForm(form); err != nil {
		return nil, err
	}

	o, err := s.gateway.Create(ctx, model.OrderDraft{
		TotalPrice: s.cart.TotalPrice(),
		Form:       form,
	})
	if err != nil {
		return nil, err
	}

	s.remember([]model.Order{*o})

	if err := s.cart.Clear(ctx); err != nil {
		s.logger.Error("clear cart after checkout", zap.Int64("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}

// Orders возвращает заказы пользователя.
func (s *Service) Orders(ctx context.Context) (OrdersView, error) {
	if !s.session.IsAuthenticated() {
		return OrdersView{}, ErrNotAuthenticated
	}

	list, stale, err := s.gateway.List(ctx)
	if err != nil {
		return OrdersView{}, err
	}

	s.replace(list)
	return OrdersView{Orders: list, Stale: stale}, nil
}

// CancelOrder отменяет заказ и возвращает обновлённый список.
func (s *Service) CancelOrder(ctx context.Context, id int64) (*ActionResult, error) {
	if !s.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if status, ok := s.status(ctx, id); ok && !lifecycle.CanCancel(status) {
		return nil, fmt.Errorf("cancel order %d in status %s: %w", id, status, ErrActionNotAllowed)
	}

	res, err := s.gateway.Cancel(ctx, id)
	if err != nil {
		return nil, &ActionError{Hint: hintFor(err), Err: err}
	}

	return s.afterAction(ctx, res.Message), nil
}

// DeleteOrder удаляет заказ и возвращает обновлённый список. Отказ
// сопровождается подсказкой: повторить позже или обратиться в поддержку.
func (s *Service) DeleteOrder(ctx context.Context, id int64) (*ActionResult, error) {
	if !s.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if status, ok := s.status(ctx, id); ok && !lifecycle.CanDelete(status) {
		return nil, fmt.Errorf("delete order %d in status %s: %w", id, status, ErrActionNotAllowed)
	}

	msg, err := s.gateway.Delete(ctx, id)
	if err != nil {
		return nil, &ActionError{Hint: hintFor(err), Err: err}
	}

	s.forget(id)
	return s.afterAction(ctx, msg), nil
}

// WatchOrders периодически обновляет список заказов и передаёт его в fn,
// пока все заказы не придут в конечный статус или не будет отменён ctx.
func (s *Service) WatchOrders(ctx context.Context, interval time.Duration, fn func(OrdersView)) error {
	if interval <= 0 {
		return fmt.Errorf("watch orders every %s: %w", interval, ErrInvalidInterval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := s.Orders(ctx)
		if err != nil {
			return err
		}
		fn(view)

		if !view.Stale && allTerminal(view.Orders) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) afterAction(ctx context.Context, message string) *ActionResult {
	res := &ActionResult{Message: message}

	view, err := s.Orders(ctx)
	if err != nil {
		s.logger.Warn("refresh orders after action", zap.Error(err))
		return res
	}
	res.View = view
	return res
}

func (s *Service) remember(list []model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range list {
		s.known[o.ID] = o.Status
	}
}

func (s *Service) replace(list []model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known = make(map[int64]model.OrderStatus, len(list))
	for _, o := range list {
		s.known[o.ID] = o.Status
	}
}

func (s *Service) forget(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.known, id)
}

// status возвращает последний известный статус заказа: из списка, полученного
// в этом процессе, иначе из локального снимка шлюза.
func (s *Service) status(ctx context.Context, id int64) (model.OrderStatus, bool) {
	s.mu.Lock()
	st, ok := s.known[id]
	s.mu.Unlock()
	if ok {
		return st, true
	}
	return s.gateway.KnownStatus(ctx, id)
}

func hintFor(err error) Hint {
	switch api.KindOf(err) {
	case api.KindNetwork, api.KindUnknown:
		return HintRetry
	case api.KindUnauthorized:
		return HintLogin
	default:
		return HintContactSupport
	}
}

func allTerminal(list []model.Order) bool {
	for _, o := range list {
		if !lifecycle.IsTerminal(o.Status) {
			return false
		}
	}
	return true
}
