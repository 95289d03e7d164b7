// Package model содержит доменные сущности клиента витрины CoffeeTime.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// User представляет профиль аутентифицированного пользователя.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role"`
	Phone    string `json:"phone,omitempty"`
}

// IsAdmin сообщает, обладает ли пользователь правами администратора.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Credential объединяет пару токенов и закэшированный профиль пользователя.
type Credential struct {
	AccessToken  string
	RefreshToken string
	User         User
}

// TokenPair описывает ответ удалённой стороны на успешный вход.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Category описывает категорию товара каталога.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Product описывает позицию каталога.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Category    *Category       `json:"category,omitempty"`
	Available   bool            `json:"available"`
}

// CartLine связывает товар с количеством в корзине.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal возвращает стоимость строки по текущей цене товара.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusDone      OrderStatus = "done"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid сообщает, является ли статус одним из известных.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusPreparing, OrderStatusDone, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderItem описывает позицию заказа. Price фиксируется в момент заказа.
type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Product   *Product        `json:"product,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Order описывает заказ пользователя.
type Order struct {
	ID         int64           `json:"id"`
	Status     OrderStatus     `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Address    string          `json:"address"`
	Phone      string          `json:"phone"`
	Comment    string          `json:"comment"`
	CreatedAt  time.Time       `json:"created_at"`
	Items      []OrderItem     `json:"order_items"`
}

// OrderForm содержит данные, введённые пользователем при оформлении заказа.
type OrderForm struct {
	Address string `json:"address" validate:"max=255"`
	Phone   string `json:"phone" validate:"max=20"`
	Comment string `json:"comment" validate:"max=1000"`
}

// OrderDraft содержит данные для создания заказа на удалённой стороне.
type OrderDraft struct {
	TotalPrice decimal.Decimal
	Form       OrderForm
}

// RegisterRequest содержит данные регистрации нового пользователя.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
	Phone     string `json:"phone,omitempty" validate:"max=15"`
}
