// Package api предоставляет клиент удалённой стороны витрины: аутентификация,
// каталог и заказы.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mmeshcher/coffeetime-storefront/internal/model"
)

// TokenSource отдаёт токен доступа текущей сессии.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
}

// Client инкапсулирует HTTP-взаимодействие с удалённой стороной.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     TokenSource
	logger     *zap.Logger
}

// Option настраивает Client.
type Option func(*Client)

// WithTimeout задаёт таймаут одного запроса.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRateLimit ограничивает число запросов в секунду. Ноль снимает ограничение.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTokenSource задаёт источник токена для авторизованных запросов.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger задаёт логгер клиента.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient создаёт клиент для удалённой стороны по указанному адресу.
func NewClient(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	c := &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateOrderRequest описывает тело запроса на создание заказа.
type CreateOrderRequest struct {
	TotalPrice json.Number       `json:"total_price"`
	Address    string            `json:"address"`
	Phone      string            `json:"phone"`
	Comment    string            `json:"comment"`
	Status     model.OrderStatus `json:"status"`
}

// CancelResponse описывает ответ на отмену заказа.
type CancelResponse struct {
	Message   string            `json:"message"`
	OrderID   int64             `json:"order_id"`
	NewStatus model.OrderStatus `json:"new_status"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type patchOrderRequest struct {
	Status model.OrderStatus `json:"status"`
}

// Login обменивает логин и пароль на пару токенов.
func (c *Client) Login(ctx context.Context, username, password string) (*model.TokenPair, error) {
	var tokens model.TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", loginRequest{Username: username, Password: password}, &tokens); err != nil {
		return nil, err
	}
	if tokens.Access == "" {
		return nil, &Error{Kind: KindUnknown, StatusCode: http.StatusOK, Message: "login response has no access token"}
	}
	return &tokens, nil
}

// Me возвращает профиль владельца указанного токена.
func (c *Client) Me(ctx context.Context, accessToken string) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", accessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Register регистрирует нового пользователя. Сессию регистрация не создаёт.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/register", "", req, nil)
}

// Products возвращает список доступных товаров.
func (c *Client) Products(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := c.doList(ctx, "/products", "", &products); err != nil {
		return nil, err
	}
	return products, nil
}

// Product возвращает товар по идентификатору.
func (c *Client) Product(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	if err := c.do(ctx, http.MethodGet, "/products/"+strconv.FormatInt(id, 10), "", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Orders возвращает заказы текущей сессии.
func (c *Client) Orders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.doList(ctx, "/orders", c.token(ctx), &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateOrder создаёт заказ и возвращает его с присвоенным идентификатором.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	var o model.Order
	if err := c.do(ctx, http.MethodPost, "/orders", c.token(ctx), req, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// CancelOrder отменяет заказ через выделенный метод отмены.
func (c *Client) CancelOrder(ctx context.Context, id int64) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.do(ctx, http.MethodPost, orderPath(id)+"/cancel", c.token(ctx), nil, &resp); err != nil {
		return nil, err
	}
	if resp.OrderID == 0 {
		resp.OrderID = id
	}
	return &resp, nil
}

// PatchOrderStatus меняет статус заказа обобщённым частичным обновлением.
func (c *Client) PatchOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	var o model.Order
	if err := c.do(ctx, http.MethodPatch, orderPath(id), c.token(ctx), patchOrderRequest{Status: status}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// DeleteOrder удаляет заказ и возвращает сообщение сервера.
func (c *Client) DeleteOrder(ctx context.Context, id int64) (string, error) {
	var resp messageResponse
	if err := c.do(ctx, http.MethodDelete, orderPath(id), c.token(ctx), nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func orderPath(id int64) string {
	return "/orders/" + strconv.FormatInt(id, 10)
}

func (c *Client) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	t, ok := c.tokens.AccessToken(ctx)
	if !ok {
		return ""
	}
	return t
}

// doList принимает как простой массив, так и постраничный ответ {"results": [...]}.
func (c *Client) doList(ctx context.Context, path, token string, out any) error {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, token, nil, &raw); err != nil {
		return err
	}

	payload := []byte(raw)
	if results := gjson.GetBytes(payload, "results"); results.IsArray() {
		payload = []byte(results.Raw)
	}
	if len(payload) == 0 || gjson.ParseBytes(payload).Type == gjson.Null {
		payload = []byte("[]")
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{Kind: KindUnknown, StatusCode: http.StatusOK, Message: "malformed list response", Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("api client not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("remote request failed",
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &Error{Kind: KindNetwork, Message: "remote service unavailable", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Message: "remote service unavailable", Err: err}
	}

	c.logger.Debug("remote request",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classify(resp.StatusCode, respBody)
		if apiErr.Kind == KindUnknown {
			c.logger.Error("unexpected remote response",
				zap.String("request_id", requestID),
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.ByteString("body", respBody),
			)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: KindUnknown, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}

	return nil
}
