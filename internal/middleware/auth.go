// Package middleware содержит HTTP middleware заглушки удалённой стороны.
package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/coffeetime-storefront/internal/model"
)

type contextKey string

const userKey contextKey = "user"

const (
	accessTokenTTL  = time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims содержит утверждения токена заглушки.
type Claims struct {
	jwt.RegisteredClaims
	UserID    int64      `json:"user_id"`
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
	TokenType string     `json:"token_type"`
}

// AuthMiddleware выпускает JWT и проверяет заголовок Authorization.
type AuthMiddleware struct {
	secretKey []byte
	now       func() time.Time
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным
// секретным ключом. Пустой ключ заменяется случайным.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("storefront-stub-secret")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		now:       time.Now,
	}
}

// IssueTokens выпускает пару токенов для пользователя.
func (a *AuthMiddleware) IssueTokens(u model.User) (*model.TokenPair, error) {
	now := a.now()

	access, err := a.sign(u, tokenTypeAccess, now, accessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := a.sign(u, tokenTypeRefresh, now, refreshTokenTTL)
	if err != nil {
		return nil, err
	}

	return &model.TokenPair{Access: access, Refresh: refresh}, nil
}

func (a *AuthMiddleware) sign(u model.User, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(u.ID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		TokenType: tokenType,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return token, nil
}

// ParseAccessToken проверяет токен доступа и возвращает его утверждения.
func (a *AuthMiddleware) ParseAccessToken(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secretKey, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware проверяет токен доступа и добавляет пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Учетные данные не были предоставлены.")
			return
		}

		claims, err := a.ParseAccessToken(raw)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Токен недействителен или просрочен")
			return
		}

		u := model.User{ID: claims.UserID, Username: claims.Username, Role: claims.Role}
		ctx := context.WithValue(r.Context(), userKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserFromContext извлекает пользователя из контекста запроса.
func GetUserFromContext(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(userKey).(model.User)
	return u, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"detail":%q}`, detail)
}
