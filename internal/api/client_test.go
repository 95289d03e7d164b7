package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mmeshcher/coffeetime-storefront/internal/model"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, bool) {
	return string(s), s != ""
}

func TestLogin_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Empty(t, r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "anna", gjson.GetBytes(body, "username").String())
		assert.Equal(t, "secret", gjson.GetBytes(body, "password").String())

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access":"a1","refresh":"r1"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL + "/api/")

	tokens, err := client.Login(context.Background(), "anna", "secret")
	require.NoError(t, err)
	assert.Equal(t, "a1", tokens.Access)
	assert.Equal(t, "r1", tokens.Refresh)
}

func TestLogin_Unauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Login(context.Background(), "anna", "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "No active account found with the given credentials", err.Error())
}

func TestMe_UsesExplicitToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":7,"username":"anna","role":"admin","phone":"+1"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, WithTokenSource(staticToken("stale")))

	u, err := client.Me(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, model.RoleAdmin, u.Role)
}

func TestRegister_ValidationErrorsFlattened(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"username":["Пользователь с таким именем уже существует."],"password":["Пароли не совпадают","Слишком короткий"]}`))
	}))
	defer ts.Close()

	err := NewClient(ts.URL).Register(context.Background(), model.RegisterRequest{Username: "anna"})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "Пользователь с таким именем уже существует., Пароли не совпадают, Слишком короткий", err.Error())
}

func TestOrders_BearerAndPagination(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"count":1,"results":[{"id":3,"status":"preparing","total_price":"400.00","order_items":[{"product_id":1,"quantity":2,"price":"200.00"}]}]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, WithTokenSource(staticToken("tok")))

	orders, err := client.Orders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(3), orders[0].ID)
	assert.Equal(t, model.OrderStatusPreparing, orders[0].Status)
	assert.True(t, decimal.NewFromInt(400).Equal(orders[0].TotalPrice))
	require.Len(t, orders[0].Items, 1)
	assert.True(t, decimal.NewFromInt(200).Equal(orders[0].Items[0].Price))
}

func TestOrders_PlainArrayAndNull(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "array", body: `[{"id":1,"status":"new"},{"id":2,"status":"done"}]`, want: 2},
		{name: "null", body: `null`, want: 0},
		{name: "empty body", body: ``, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			orders, err := NewClient(ts.URL).Orders(context.Background())
			require.NoError(t, err)
			assert.Len(t, orders, tt.want)
		})
	}
}

func TestCreateOrder_Payload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "400", gjson.GetBytes(body, "total_price").Raw)
		assert.Equal(t, "new", gjson.GetBytes(body, "status").String())

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":42,"status":"new","total_price":"400.00"}`))
	}))
	defer ts.Close()

	o, err := NewClient(ts.URL).CreateOrder(context.Background(), CreateOrderRequest{
		TotalPrice: json.Number("400"),
		Address:    "Pickup",
		Phone:      "+1",
		Status:     model.OrderStatusNew,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), o.ID)
}

func TestCancelOrder_AndPatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/orders/5/cancel":
			_, _ = w.Write([]byte(`{"message":"Заказ успешно отменен","new_status":"cancelled"}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/orders/5":
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "cancelled", gjson.GetBytes(body, "status").String())
			_, _ = w.Write([]byte(`{"id":5,"status":"cancelled"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	res, err := client.CancelOrder(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.OrderID)
	assert.Equal(t, model.OrderStatusCancelled, res.NewStatus)

	o, err := client.PatchOrderStatus(context.Background(), 5, model.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, o.Status)
}

func TestDeleteOrder_RejectionVerbatim(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Можно удалять только новые заказы"}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).DeleteOrder(context.Background(), 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "Можно удалять только новые заказы", MessageOf(err))
}

func TestNetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := NewClient(url, WithTimeout(time.Second)).Orders(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.True(t, Retryable(err))

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.NotNil(t, apiErr.Unwrap())
}

func TestRateLimit_WaitHonoursContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, WithRateLimit(0.001))

	_, err := client.Products(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Products(ctx)
	require.Error(t, err)
	assert.NotEqual(t, KindNetwork, KindOf(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
	}{
		{name: "not found", status: 404, body: `{"error":"Заказ не найден"}`, kind: KindNotFound, message: "Заказ не найден"},
		{name: "forbidden detail", status: 403, body: `{"detail":"Нет прав"}`, kind: KindForbidden, message: "Нет прав"},
		{name: "server error", status: 500, body: `<html>oops</html>`, kind: KindUnknown, message: "unexpected status: 500"},
		{name: "rule rejection", status: 400, body: `{"error":"Невозможно отменить заказ"}`, kind: KindForbidden, message: "Невозможно отменить заказ"},
		{name: "unauthorized no body", status: 401, body: ``, kind: KindUnauthorized, message: "unexpected status: 401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := classify(tt.status, []byte(tt.body))
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, tt.status, e.StatusCode)
		})
	}
}

func TestEndpointUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect bool
	}{
		{name: "no response", err: &Error{Kind: KindNetwork, Message: "remote service unavailable"}, expect: true},
		{name: "route missing", err: classify(404, []byte(`{"detail":"Страница не найдена."}`)), expect: true},
		{name: "method not allowed", err: classify(405, []byte(`{"detail":"Метод не разрешён."}`)), expect: true},
		{name: "not implemented", err: classify(501, nil), expect: true},
		{name: "bad gateway", err: classify(502, []byte(`<html>oops</html>`)), expect: true},
		{name: "order not found", err: classify(404, []byte(`{"error":"Заказ не найден"}`)), expect: false},
		{name: "rule rejection", err: classify(400, []byte(`{"error":"Невозможно отменить заказ со статусом Выполнен"}`)), expect: false},
		{name: "field errors", err: classify(400, []byte(`{"status":["bad"]}`)), expect: false},
		{name: "forbidden", err: classify(403, []byte(`{"detail":"Нет прав"}`)), expect: false},
		{name: "plain error", err: errors.New("plain"), expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, EndpointUnavailable(tt.err))
		})
	}
}

func TestErrorIs_OnlyMatchesSameKind(t *testing.T) {
	err := &Error{Kind: KindNotFound, StatusCode: 404, Message: "x"}
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "Неизвестная ошибка", MessageOf(errors.New("plain")))
}
