// Package validation содержит функции валидации пользовательского ввода.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/coffeetime-storefront/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Error содержит сообщения об ошибках полей в порядке их объявления.
type Error struct {
	Fields   []string
	Messages []string
}

func (e *Error) Error() string {
	return strings.Join(e.Messages, ", ")
}

// ValidateRegistration проверяет данные регистрации.
func ValidateRegistration(req model.RegisterRequest) error {
	return check(req)
}

// ValidateOrderForm проверяет данные формы оформления заказа.
func ValidateOrderForm(f model.OrderForm) error {
	return check(f)
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := &Error{}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, fe.Field())
		out.Messages = append(out.Messages, message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: обязательное поле", fe.Field())
	case "email":
		return fmt.Sprintf("%s: некорректный адрес электронной почты", fe.Field())
	case "min":
		return fmt.Sprintf("%s: не короче %s символов", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s: не длиннее %s символов", fe.Field(), fe.Param())
	case "eqfield":
		return "Пароли не совпадают"
	default:
		return fmt.Sprintf("%s: недопустимое значение", fe.Field())
	}
}
