package session

import (
	"errors"

	"github.com/mmeshcher/coffeetime-storefront/internal/api"
	"github.com/mmeshcher/coffeetime-storefront/internal/validation"
)

// ErrorCode классифицирует ошибку входа или регистрации.
type ErrorCode string

const (
	CodeInvalidCredentials ErrorCode = "invalid_credentials"
	CodeValidation         ErrorCode = "validation_error"
	CodeUnknown            ErrorCode = "unknown_error"
)

// AuthError описывает неудачный вход или регистрацию.
type AuthError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func classifyAuthError(err error, fallback string) *AuthError {
	var vErr *validation.Error
	if errors.As(err, &vErr) {
		return &AuthError{Code: CodeValidation, Message: vErr.Error(), Err: err}
	}

	switch api.KindOf(err) {
	case api.KindUnauthorized:
		return &AuthError{Code: CodeInvalidCredentials, Message: "Неверные имя пользователя или пароль", Err: err}
	case api.KindValidation:
		return &AuthError{Code: CodeValidation, Message: api.MessageOf(err), Err: err}
	case api.KindNetwork:
		return &AuthError{Code: CodeUnknown, Message: "Сервис недоступен, попробуйте позже", Err: err}
	default:
		return &AuthError{Code: CodeUnknown, Message: fallback, Err: err}
	}
}
