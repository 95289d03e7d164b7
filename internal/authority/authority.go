// Package authority содержит эталонную реализацию правил удалённой стороны
// витрины: пользователи, каталог и заказы хранятся в памяти.
package authority

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/coffeetime-storefront/internal/lifecycle"
	"github.com/mmeshcher/coffeetime-storefront/internal/model"
	"github.com/mmeshcher/coffeetime-storefront/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
)

// RuleError описывает отказ, вызванный правилами жизненного цикла заказа.
type RuleError struct {
	Message string
}

func (e *RuleError) Error() string {
	return e.Message
}

// FieldError описывает ошибки отдельных полей запроса в порядке полей.
type FieldError struct {
	Fields   []string
	Messages map[string][]string
}

func (e *FieldError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f+": "+strings.Join(e.Messages[f], ", "))
	}
	return strings.Join(parts, "; ")
}

func (e *FieldError) add(field, msg string) {
	if e.Messages == nil {
		e.Messages = make(map[string][]string)
	}
	if _, ok := e.Messages[field]; !ok {
		e.Fields = append(e.Fields, field)
	}
	e.Messages[field] = append(e.Messages[field], msg)
}

// NewOrder содержит данные создаваемого заказа.
type NewOrder struct {
	TotalPrice decimal.Decimal
	Address    string
	Phone      string
	Comment    string
	Status     model.OrderStatus
}

type userRecord struct {
	user         model.User
	passwordHash []byte
}

// Authority хранит состояние удалённой стороны.
type Authority struct {
	mu sync.RWMutex

	users      map[int64]*userRecord
	byUsername map[string]int64
	nextUserID int64

	products []model.Product

	orders      map[int64]*model.Order
	owners      map[int64]int64
	nextOrderID int64

	now func() time.Time
}

// New создаёт хранилище с указанным каталогом.
func New(products []model.Product) *Authority {
	catalog := make([]model.Product, len(products))
	copy(catalog, products)

	return &Authority{
		users:      make(map[int64]*userRecord),
		byUsername: make(map[string]int64),
		products:   catalog,
		orders:     make(map[int64]*model.Order),
		owners:     make(map[int64]int64),
		now:        time.Now,
	}
}

// DefaultCatalog возвращает меню кофейни по умолчанию.
func DefaultCatalog() []model.Product {
	drinks := &model.Category{ID: 1, Name: "Напитки"}
	bakery := &model.Category{ID: 2, Name: "Выпечка"}

	return []model.Product{
		{ID: 1, Name: "Латте", Description: "Эспрессо с молоком", Price: decimal.NewFromInt(200), Category: drinks, Available: true},
		{ID: 2, Name: "Капучино", Description: "Эспрессо с молочной пеной", Price: decimal.NewFromInt(180), Category: drinks, Available: true},
		{ID: 3, Name: "Американо", Description: "Эспрессо с горячей водой", Price: decimal.NewFromInt(150), Category: drinks, Available: true},
		{ID: 4, Name: "Круассан", Description: "Сливочный круассан", Price: decimal.NewFromInt(120), Category: bakery, Available: true},
		{ID: 5, Name: "Раф", Description: "Временно нет в наличии", Price: decimal.NewFromInt(250), Category: drinks, Available: false},
	}
}

// RegisterUser регистрирует покупателя.
func (a *Authority) RegisterUser(ctx context.Context, req model.RegisterRequest) (int64, error) {
	fieldErr := &FieldError{}

	var vErr *validation.Error
	if err := validation.ValidateRegistration(req); err != nil {
		if !errors.As(err, &vErr) {
			return 0, err
		}
		for i, f := range vErr.Fields {
			fieldErr.add(jsonField(f), vErr.Messages[i])
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.byUsername[req.Username]; ok && req.Username != "" {
		fieldErr.add("username", "Пользователь с таким именем уже существует.")
	}
	if len(fieldErr.Fields) > 0 {
		return 0, fieldErr
	}

	a.nextUserID++
	id := a.nextUserID
	a.users[id] = &userRecord{
		user: model.User{
			ID:       id,
			Username: req.Username,
			Email:    req.Email,
			Role:     model.RoleCustomer,
			Phone:    req.Phone,
		},
		passwordHash: hashPassword(req.Username, req.Password),
	}
	a.byUsername[req.Username] = id

	return id, nil
}

// CreateAdmin заводит администратора. Используется при запуске заглушки.
func (a *Authority) CreateAdmin(username, password string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextUserID++
	id := a.nextUserID
	a.users[id] = &userRecord{
		user:         model.User{ID: id, Username: username, Role: model.RoleAdmin},
		passwordHash: hashPassword(username, password),
	}
	a.byUsername[username] = id
	return id
}

// AuthenticateUser проверяет имя и пароль пользователя.
func (a *Authority) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, ok := a.byUsername[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}

	rec := a.users[id]
	if subtle.ConstantTimeCompare(rec.passwordHash, hashPassword(username, password)) != 1 {
		return nil, ErrInvalidCredentials
	}

	u := rec.user
	return &u, nil
}

// User возвращает профиль пользователя.
func (a *Authority) User(ctx context.Context, id int64) (*model.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := rec.user
	return &u, nil
}

// Products возвращает доступные товары.
func (a *Authority) Products(ctx context.Context) []model.Product {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]model.Product, 0, len(a.products))
	for _, p := range a.products {
		if p.Available {
			out = append(out, p)
		}
	}
	return out
}

// Product возвращает доступный товар по идентификатору.
func (a *Authority) Product(ctx context.Context, id int64) (*model.Product, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, p := range a.products {
		if p.ID == id && p.Available {
			out := p
			return &out, nil
		}
	}
	return nil, ErrProductNotFound
}

// Orders возвращает заказы пользователя, новые первыми. Администратор
// видит все заказы.
func (a *Authority) Orders(ctx context.Context, user model.User) []model.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]model.Order, 0)
	for id, o := range a.orders {
		if user.IsAdmin() || a.owners[id] == user.ID {
			out = append(out, *o)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// CreateOrder создаёт заказ от имени пользователя.
func (a *Authority) CreateOrder(ctx context.Context, user model.User, req NewOrder) (*model.Order, error) {
	fieldErr := &FieldError{}
	if req.TotalPrice.IsNegative() {
		fieldErr.add("total_price", "Убедитесь, что это значение больше либо равно 0.")
	}
	if req.Status != "" && !req.Status.Valid() {
		fieldErr.add("status", fmt.Sprintf("Значения %q нет среди допустимых вариантов.", req.Status))
	}
	if err := validation.ValidateOrderForm(model.OrderForm{Address: req.Address, Phone: req.Phone, Comment: req.Comment}); err != nil {
		var vErr *validation.Error
		if !errors.As(err, &vErr) {
			return nil, err
		}
		for i, f := range vErr.Fields {
			fieldErr.add(jsonField(f), vErr.Messages[i])
		}
	}
	if len(fieldErr.Fields) > 0 {
		return nil, fieldErr
	}

	status := req.Status
	if status == "" {
		status = model.OrderStatusNew
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextOrderID++
	o := &model.Order{
		ID:         a.nextOrderID,
		Status:     status,
		TotalPrice: req.TotalPrice,
		Address:    req.Address,
		Phone:      req.Phone,
		Comment:    req.Comment,
		CreatedAt:  a.now().UTC(),
		Items:      []model.OrderItem{},
	}
	a.orders[o.ID] = o
	a.owners[o.ID] = user.ID

	out := *o
	return &out, nil
}

// CancelOrder отменяет заказ в статусе «новый» или «готовится».
func (a *Authority) CancelOrder(ctx context.Context, user model.User, id int64) (*model.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	o, err := a.lookup(user, id)
	if err != nil {
		return nil, err
	}

	if !lifecycle.CanCancel(o.Status) {
		return nil, &RuleError{Message: "Невозможно отменить заказ со статусом " + lifecycle.StatusLabel(o.Status)}
	}

	o.Status = model.OrderStatusCancelled
	out := *o
	return &out, nil
}

// UpdateStatus меняет статус заказа. Перевод в «отменён» подчиняется тем же
// правилам, что и CancelOrder; прочие переходы не проверяются.
func (a *Authority) UpdateStatus(ctx context.Context, user model.User, id int64, status model.OrderStatus) (*model.Order, error) {
	if !status.Valid() {
		fieldErr := &FieldError{}
		fieldErr.add("status", fmt.Sprintf("Значения %q нет среди допустимых вариантов.", status))
		return nil, fieldErr
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	o, err := a.lookup(user, id)
	if err != nil {
		return nil, err
	}

	if status == model.OrderStatusCancelled && !lifecycle.CanCancel(o.Status) {
		return nil, &RuleError{Message: "Невозможно отменить заказ со статусом " + lifecycle.StatusLabel(o.Status)}
	}

	o.Status = status
	out := *o
	return &out, nil
}

// DeleteOrder удаляет заказ. Покупатель может удалить только новый заказ.
func (a *Authority) DeleteOrder(ctx context.Context, user model.User, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	o, err := a.lookup(user, id)
	if err != nil {
		return err
	}

	if o.Status != model.OrderStatusNew && !user.IsAdmin() {
		return &RuleError{Message: "Можно удалять только новые заказы"}
	}

	delete(a.orders, id)
	delete(a.owners, id)
	return nil
}

func (a *Authority) lookup(user model.User, id int64) (*model.Order, error) {
	o, ok := a.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !user.IsAdmin() && a.owners[id] != user.ID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func hashPassword(username, password string) []byte {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return sum[:]
}

var jsonFields = map[string]string{
	"Username":  "username",
	"Email":     "email",
	"Password":  "password",
	"Password2": "password2",
	"Phone":     "phone",
	"Address":   "address",
	"Comment":   "comment",
}

func jsonField(structField string) string {
	if f, ok := jsonFields[structField]; ok {
		return f
	}
	return strings.ToLower(structField)
}
