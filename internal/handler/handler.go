// Package handler содержит HTTP-обработчики заглушки удалённой стороны витрины.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/coffeetime-storefront/internal/authority"
	"github.com/mmeshcher/coffeetime-storefront/internal/middleware"
	"github.com/mmeshcher/coffeetime-storefront/internal/model"
)

// Authority определяет контракт правил удалённой стороны, используемых
// HTTP-обработчиками.
type Authority interface {
	RegisterUser(ctx context.Context, req model.RegisterRequest) (int64, error)
	AuthenticateUser(ctx context.Context, username, password string) (*model.User, error)
	User(ctx context.Context, id int64) (*model.User, error)
	Products(ctx context.Context) []model.Product
	Product(ctx context.Context, id int64) (*model.Product, error)
	Orders(ctx context.Context, user model.User) []model.Order
	CreateOrder(ctx context.Context, user model.User, req authority.NewOrder) (*model.Order, error)
	CancelOrder(ctx context.Context, user model.User, id int64) (*model.Order, error)
	UpdateStatus(ctx context.Context, user model.User, id int64, status model.OrderStatus) (*model.Order, error)
	DeleteOrder(ctx context.Context, user model.User, id int64) error
}

// Handler реализует HTTP-обработчики заглушки.
type Handler struct {
	authority      Authority
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        *middleware.Metrics
	metricsHandler http.Handler
	cancelDisabled bool
}

// Option настраивает Handler.
type Option func(*Handler)

// WithoutCancelEndpoint отключает выделенный метод отмены заказа: клиенту
// остаётся только частичное обновление статуса.
func WithoutCancelEndpoint() Option {
	return func(h *Handler) {
		h.cancelDisabled = true
	}
}

// WithMetrics подключает сбор HTTP-метрик и маршрут /metrics.
func WithMetrics(m *middleware.Metrics, exposition http.Handler) Option {
	return func(h *Handler) {
		h.metrics = m
		h.metricsHandler = exposition
	}
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(a Authority, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		authority:      a,
		logger:         logger,
		authMiddleware: auth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login обменивает имя и пароль на пару токенов.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Некорректный JSON")
		return
	}

	fields := fieldErrors{}
	if req.Username == "" {
		fields.add("username", "Обязательное поле.")
	}
	if req.Password == "" {
		fields.add("password", "Обязательное поле.")
	}
	if len(fields.order) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	u, err := h.authority.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, authority.ErrInvalidCredentials) {
			writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
			return
		}
		h.internalError(w, "login user error", err)
		return
	}

	tokens, err := h.authMiddleware.IssueTokens(*u)
	if err != nil {
		h.internalError(w, "issue tokens error", err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Me возвращает профиль владельца токена.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Учетные данные не были предоставлены.")
		return
	}

	u, err := h.authority.User(r.Context(), claims.ID)
	if err != nil {
		if errors.Is(err, authority.ErrUserNotFound) {
			writeDetail(w, http.StatusUnauthorized, "Пользователь не найден")
			return
		}
		h.internalError(w, "get user error", err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

// Register регистрирует нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Некорректный JSON")
		return
	}

	id, err := h.authority.RegisterUser(r.Context(), req)
	if err != nil {
		h.writeError(w, "register user error", err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "Пользователь успешно зарегистрирован",
		UserID:  id,
	})
}

// Products возвращает доступные товары.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.authority.Products(r.Context()))
}

// Product возвращает товар по идентификатору.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Страница не найдена.")
		return
	}

	p, err := h.authority.Product(r.Context(), id)
	if err != nil {
		if errors.Is(err, authority.ErrProductNotFound) {
			writeDetail(w, http.StatusNotFound, "Страница не найдена.")
			return
		}
		h.internalError(w, "get product error", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetOrders возвращает заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Учетные данные не были предоставлены.")
		return
	}

	writeJSON(w, http.StatusOK, h.authority.Orders(r.Context(), u))
}

type createOrderRequest struct {
	TotalPrice decimal.Decimal   `json:"total_price"`
	Address    string            `json:"address"`
	Phone      string            `json:"phone"`
	Comment    string            `json:"comment"`
	Status     model.OrderStatus `json:"status"`
}

// CreateOrder создаёт заказ текущего пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Учетные данные не были предоставлены.")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Некорректный JSON")
		return
	}

	o, err := h.authority.CreateOrder(r.Context(), u, authority.NewOrder{
		TotalPrice: req.TotalPrice,
		Address:    req.Address,
		Phone:      req.Phone,
		Comment:    req.Comment,
		Status:     req.Status,
	})
	if err != nil {
		h.writeError(w, "create order error", err)
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

type cancelResponse struct {
	Message   string            `json:"message"`
	OrderID   int64             `json:"order_id"`
	NewStatus model.OrderStatus `json:"new_status"`
}

// CancelOrder отменяет заказ.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if h.cancelDisabled {
		writeDetail(w, http.StatusNotFound, "Страница не найдена.")
		return
	}

	u, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Учетные данные не были предоставлены.")
		return
	}

	id, ok := pathID(r)
	if !ok {
		writeOrderNotFound(w)
		return
	}

	o, err := h.authority.CancelOrder(r.Context(), u, id)
	if err != nil {
		h.writeError(w, "cancel order error", err)
		return
	}

	writeJSON(w, http.StatusOK, cancelResponse{
		Message:   "Заказ успешно отменен",
		OrderID:   o.ID,
		NewStatus: o.Status,
	})
}

type patchOrderRequest struct {
	Status model.OrderStatus `json:"status"`
}

// PatchOrder меняет статус заказа.
func (h *Handler) PatchOrder(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Учетные данные не были предоставлены.")
		return
	}

	id, ok := pathID(r)
	if !ok {
		writeOrderNotFound(w)
		return
	}

	var req patchOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Некорректный JSON")
		return
	}

	o, err := h.authority.UpdateStatus(r.Context(), u, id, req.Status)
	if err != nil {
		h.writeError(w, "patch order error", err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

type messageResponse struct {
	Message string `json:"message"`
}

// DeleteOrder удаляет заказ.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Учетные данные не были предоставлены.")
		return
	}

	id, ok := pathID(r)
	if !ok {
		writeOrderNotFound(w)
		return
	}

	if err := h.authority.DeleteOrder(r.Context(), u, id); err != nil {
		h.writeError(w, "delete order error", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Заказ успешно удален"})
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	var ruleErr *authority.RuleError
	var fieldErr *authority.FieldError

	switch {
	case errors.Is(err, authority.ErrOrderNotFound):
		writeOrderNotFound(w)
	case errors.As(err, &ruleErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ruleErr.Message})
	case errors.As(err, &fieldErr):
		fields := fieldErrors{}
		for _, f := range fieldErr.Fields {
			for _, m := range fieldErr.Messages[f] {
				fields.add(f, m)
			}
		}
		writeFieldErrors(w, fields)
	default:
		h.internalError(w, msg, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeOrderNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Заказ не найден"})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fieldErrors хранит ошибки полей в порядке их появления.
type fieldErrors struct {
	order    []string
	messages map[string][]string
}

func (f *fieldErrors) add(field, msg string) {
	if f.messages == nil {
		f.messages = make(map[string][]string)
	}
	if _, ok := f.messages[field]; !ok {
		f.order = append(f.order, field)
	}
	f.messages[field] = append(f.messages[field], msg)
}

// MarshalJSON сохраняет порядок полей: клиент показывает ошибки в порядке
// следования в ответе.
func (f fieldErrors) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field)
		if err != nil {
			return nil, err
		}
		msgs, err := json.Marshal(f.messages[field])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(msgs)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeFieldErrors(w http.ResponseWriter, f fieldErrors) {
	writeJSON(w, http.StatusBadRequest, f)
}
