package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind классифицирует ошибку обращения к удалённой стороне.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation_error"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindNetwork      Kind = "network_unavailable"
	KindUnknown      Kind = "unknown"
)

// Error описывает классифицированную ошибку удалённой стороны.
// Message содержит причину отказа в том виде, в каком её вернул сервер.
// Unrouted отмечает ответ маршрутизатора: метода или пути нет на сервере,
// обработчик запрос не видел.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Unrouted   bool
	Err        error
}

// Образцы для errors.Is: сравнение идёт только по Kind.
var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrUnknown      = &Error{Kind: KindUnknown}
)

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с образцом того же Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.StatusCode == 0 && t.Err == nil && t.Kind == e.Kind
}

// KindOf возвращает класс ошибки; ошибки вне таксономии считаются unknown.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// Retryable сообщает, имеет ли смысл повторить запрос позже.
func Retryable(err error) bool {
	return KindOf(err) == KindNetwork
}

// EndpointUnavailable сообщает, что отказал сам метод удалённой стороны,
// а не её правила: нет ответа, нет маршрута или сервер не справился.
// Отказы по правилам (400, 403, 404 обработчика) сюда не относятся.
func EndpointUnavailable(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}

	switch {
	case apiErr.Kind == KindNetwork, apiErr.Unrouted:
		return true
	case apiErr.StatusCode == http.StatusMethodNotAllowed,
		apiErr.StatusCode == http.StatusNotImplemented,
		apiErr.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// MessageOf возвращает текст причины, пригодный для показа пользователю.
func MessageOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Неизвестная ошибка"
}

func classify(status int, body []byte) *Error {
	reason := reasonOf(body)

	e := &Error{StatusCode: status, Message: reason}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusBadRequest && gjson.GetBytes(body, "error").Exists():
		e.Kind = KindForbidden
	case status == http.StatusBadRequest:
		e.Kind = KindValidation
		if reason == "" {
			e.Message = FlattenFieldErrors(body)
		}
	default:
		e.Kind = KindUnknown
	}

	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		e.Unrouted = !gjson.GetBytes(body, "error").Exists()
	}

	if e.Message == "" {
		e.Message = fmt.Sprintf("unexpected status: %d", status)
	}

	return e
}

func reasonOf(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	if v := gjson.GetBytes(body, "error"); v.Type == gjson.String {
		return v.String()
	}
	if v := gjson.GetBytes(body, "detail"); v.Type == gjson.String {
		return v.String()
	}
	return ""
}

// FlattenFieldErrors собирает ошибки валидации вида {"поле": ["сообщение", ...]}
// в одну строку, сохраняя порядок полей из ответа.
func FlattenFieldErrors(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}

	var msgs []string
	var walk func(v gjson.Result)
	walk = func(v gjson.Result) {
		switch {
		case v.IsArray():
			for _, item := range v.Array() {
				walk(item)
			}
		case v.IsObject():
			v.ForEach(func(_, item gjson.Result) bool {
				walk(item)
				return true
			})
		case v.String() != "":
			msgs = append(msgs, v.String())
		}
	}
	walk(gjson.ParseBytes(body))

	return strings.Join(msgs, ", ")
}
