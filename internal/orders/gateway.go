// Package orders реализует шлюз заказов с локальным теневым кэшем,
// который используется при недоступности удалённой стороны.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/coffeetime-storefront/internal/api"
	"github.com/mmeshcher/coffeetime-storefront/internal/model"
)

const (
	// DefaultAddress подставляется, когда адрес не указан.
	DefaultAddress = "Самовывоз"
	// DefaultPhone подставляется, когда телефон не указан.
	DefaultPhone = "Не указан"
)

// Remote описывает обращения к удалённой стороне, нужные шлюзу.
type Remote interface {
	Orders(ctx context.Context) ([]model.Order, error)
	CreateOrder(ctx context.Context, req api.CreateOrderRequest) (*model.Order, error)
	CancelOrder(ctx context.Context, id int64) (*api.CancelResponse, error)
	PatchOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error)
	DeleteOrder(ctx context.Context, id int64) (string, error)
}

// Invalidator завершает сессию, отвергнутую удалённой стороной.
type Invalidator interface {
	Invalidate(ctx context.Context, reason string)
}

// CancelResult описывает успешную отмену.
type CancelResult struct {
	OrderID  int64
	Status   model.OrderStatus
	Message  string
	Fallback bool
}

// Gateway выполняет операции над заказами.
type Gateway struct {
	remote  Remote
	shadow  *ShadowCache
	session Invalidator
	metrics *Metrics
	logger  *zap.Logger
}

// NewGateway создаёт шлюз заказов. metrics может быть nil.
func NewGateway(remote Remote, shadow *ShadowCache, session Invalidator, metrics *Metrics, logger *zap.Logger) *Gateway {
	return &Gateway{
		remote:  remote,
		shadow:  shadow,
		session: session,
		metrics: metrics,
		logger:  logger,
	}
}

// List возвращает заказы пользователя. Если удалённая сторона недоступна,
// отдаётся содержимое теневого кэша и stale == true. Ответ 401 завершает
// сессию и возвращается как ошибка.
func (g *Gateway) List(ctx context.Context) ([]model.Order, bool, error) {
	remote, err := g.remote.Orders(ctx)
	if err == nil {
		g.metrics.request(opList, resultOK)
		if err := g.shadow.Reconcile(ctx, remote); err != nil {
			g.logger.Warn("reconcile shadow order cache", zap.Error(err))
		}
		if remote == nil {
			remote = []model.Order{}
		}
		return remote, false, nil
	}

	if g.unauthorized(ctx, opList, err) {
		return nil, false, err
	}
	g.failed(opList, err)

	cached := g.shadow.Snapshot(ctx)
	g.metrics.fallback(opList)
	g.logger.Warn("order list unavailable, serving shadow cache",
		zap.Int("cached", len(cached)), zap.Error(err))

	return cached, true, nil
}

// NewCreateRequest собирает тело запроса на создание заказа. Пустые адрес
// и телефон заменяются значениями по умолчанию.
func NewCreateRequest(draft model.OrderDraft) api.CreateOrderRequest {
	address := strings.TrimSpace(draft.Form.Address)
	if address == "" {
		address = DefaultAddress
	}
	phone := strings.TrimSpace(draft.Form.Phone)
	if phone == "" {
		phone = DefaultPhone
	}

	return api.CreateOrderRequest{
		TotalPrice: json.Number(draft.TotalPrice.String()),
		Address:    address,
		Phone:      phone,
		Comment:    draft.Form.Comment,
		Status:     model.OrderStatusNew,
	}
}

// Create создаёт заказ. При ошибке локально ничего не создаётся.
func (g *Gateway) Create(ctx context.Context, draft model.OrderDraft) (*model.Order, error) {
	o, err := g.remote.CreateOrder(ctx, NewCreateRequest(draft))
	if err != nil {
		if !g.unauthorized(ctx, opCreate, err) {
			g.failed(opCreate, err)
		}
		return nil, err
	}

	g.metrics.request(opCreate, resultOK)
	if err := g.shadow.Put(ctx, *o); err != nil {
		g.logger.Warn("cache created order", zap.Int64("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}

// Cancel отменяет заказ. Если выделенный метод отмены недоступен (нет
// ответа, нет маршрута, сбой сервера), статус меняется частичным
// обновлением. Отказ сервера по правилам возвращается без изменений. Если не
// удались оба способа, возвращается одна ошибка, содержащая обе причины.
func (g *Gateway) Cancel(ctx context.Context, id int64) (*CancelResult, error) {
	resp, err := g.remote.CancelOrder(ctx, id)
	if err == nil {
		g.metrics.request(opCancel, resultOK)
		status := resp.NewStatus
		if status == "" {
			status = model.OrderStatusCancelled
		}
		g.markCancelled(ctx, id)
		return &CancelResult{OrderID: id, Status: status, Message: resp.Message}, nil
	}

	if g.unauthorized(ctx, opCancel, err) {
		return nil, err
	}
	if !api.EndpointUnavailable(err) {
		g.failed(opCancel, err)
		return nil, err
	}

	g.metrics.fallback(opCancel)
	g.logger.Warn("cancel endpoint failed, falling back to status update",
		zap.Int64("order_id", id), zap.Error(err))

	o, patchErr := g.remote.PatchOrderStatus(ctx, id, model.OrderStatusCancelled)
	if patchErr == nil {
		g.metrics.request(opCancel, resultOK)
		status := o.Status
		if status == "" {
			status = model.OrderStatusCancelled
		}
		if o.ID == id {
			if err := g.shadow.Put(ctx, *o); err != nil {
				g.logger.Warn("cache cancelled order", zap.Int64("order_id", id), zap.Error(err))
			}
		} else {
			g.markCancelled(ctx, id)
		}
		return &CancelResult{OrderID: id, Status: status, Message: "Заказ отменен", Fallback: true}, nil
	}

	if g.unauthorized(ctx, opCancel, patchErr) {
		return nil, patchErr
	}

	combined := consolidate(err, patchErr)
	g.failed(opCancel, combined)
	return nil, combined
}

// Delete удаляет заказ и возвращает сообщение сервера. Отказ сервера
// возвращается без изменений; локальный кэш при этом не трогается.
func (g *Gateway) Delete(ctx context.Context, id int64) (string, error) {
	msg, err := g.remote.DeleteOrder(ctx, id)
	if err != nil {
		if !g.unauthorized(ctx, opDelete, err) {
			g.failed(opDelete, err)
		}
		return "", err
	}

	g.metrics.request(opDelete, resultOK)
	if err := g.shadow.Evict(ctx, id); err != nil {
		g.logger.Warn("evict deleted order", zap.Int64("order_id", id), zap.Error(err))
	}
	return msg, nil
}

// KnownStatus возвращает статус заказа из последнего снимка, сохранённого
// локально. Снимок переживает перезапуск клиента.
func (g *Gateway) KnownStatus(ctx context.Context, id int64) (model.OrderStatus, bool) {
	o, ok := g.shadow.Lookup(ctx, id)
	if !ok {
		return "", false
	}
	return o.Status, true
}

func (g *Gateway) markCancelled(ctx context.Context, id int64) {
	if err := g.shadow.MarkCancelled(ctx, id); err != nil {
		g.logger.Warn("mark cached order cancelled", zap.Int64("order_id", id), zap.Error(err))
	}
}

// unauthorized завершает сессию при ответе 401 и сообщает, что ошибка
// обработана.
func (g *Gateway) unauthorized(ctx context.Context, op string, err error) bool {
	if !errors.Is(err, api.ErrUnauthorized) {
		return false
	}
	g.metrics.request(op, resultUnauthorized)
	if g.session != nil {
		g.session.Invalidate(ctx, fmt.Sprintf("order %s rejected with 401", op))
	}
	return true
}

func (g *Gateway) failed(op string, err error) {
	switch api.KindOf(err) {
	case api.KindNetwork:
		g.metrics.request(op, resultNetwork)
	case api.KindUnknown:
		g.metrics.request(op, resultError)
		g.logger.Error("order operation failed", zap.String("operation", op), zap.Error(err))
	default:
		g.metrics.request(op, resultRejected)
	}
}

// consolidate сводит ошибки основного и запасного способа в одну. Основной
// способ к этому моменту отказал лишь как метод, поэтому причину даёт
// запасной, если она классифицирована.
func consolidate(primary, fallback error) error {
	var leadErr *api.Error
	if !errors.As(fallback, &leadErr) && !errors.As(primary, &leadErr) {
		return fmt.Errorf("cancel order: %w", errors.Join(primary, fallback))
	}

	out := *leadErr
	out.Err = errors.Join(primary, fallback)
	return &out
}
