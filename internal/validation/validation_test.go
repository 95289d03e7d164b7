package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/mmeshcher/coffeetime-storefront/internal/model"
)

func TestValidateRegistration(t *testing.T) {
	valid := model.RegisterRequest{
		Username:  "anna",
		Email:     "anna@example.com",
		Password:  "longpassword",
		Password2: "longpassword",
		Phone:     "+79990000000",
	}

	tests := []struct {
		name   string
		mutate func(r *model.RegisterRequest)
		fields []string
	}{
		{
			name:   "valid",
			mutate: func(r *model.RegisterRequest) {},
		},
		{
			name:   "missing username",
			mutate: func(r *model.RegisterRequest) { r.Username = "" },
			fields: []string{"Username"},
		},
		{
			name:   "bad email",
			mutate: func(r *model.RegisterRequest) { r.Email = "not-an-email" },
			fields: []string{"Email"},
		},
		{
			name: "short and mismatched password",
			mutate: func(r *model.RegisterRequest) {
				r.Password = "short"
				r.Password2 = "other"
			},
			fields: []string{"Password", "Password2"},
		},
		{
			name:   "phone too long",
			mutate: func(r *model.RegisterRequest) { r.Phone = strings.Repeat("1", 16) },
			fields: []string{"Phone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := ValidateRegistration(req)
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var vErr *Error
			if !errors.As(err, &vErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if strings.Join(vErr.Fields, ",") != strings.Join(tt.fields, ",") {
				t.Fatalf("fields = %v, want %v", vErr.Fields, tt.fields)
			}
			if vErr.Error() == "" {
				t.Fatalf("empty message")
			}
		})
	}
}

func TestValidateOrderForm(t *testing.T) {
	if err := ValidateOrderForm(model.OrderForm{}); err != nil {
		t.Fatalf("empty form must be valid (defaults are applied later): %v", err)
	}

	err := ValidateOrderForm(model.OrderForm{Phone: strings.Repeat("9", 21)})
	if err == nil {
		t.Fatalf("expected error for long phone")
	}
	if !strings.Contains(err.Error(), "Phone") {
		t.Fatalf("message %q does not mention Phone", err.Error())
	}
}
