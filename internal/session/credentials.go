// Package session управляет учётными данными пользователя: хранит пару токенов
// с профилем и отвечает за вход, регистрацию и выход.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/coffeetime-storefront/internal/model"
	"github.com/mmeshcher/coffeetime-storefront/internal/storage"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUser         = "user"
)

// CredentialStore хранит учётные данные текущей сессии. Писать в него должен
// только Manager, остальные компоненты только читают.
type CredentialStore struct {
	store  storage.Store
	logger *zap.Logger
}

// NewCredentialStore создаёт хранилище учётных данных поверх store.
func NewCredentialStore(store storage.Store, logger *zap.Logger) *CredentialStore {
	return &CredentialStore{store: store, logger: logger}
}

// Save сохраняет токены и профиль одной атомарной записью.
func (c *CredentialStore) Save(ctx context.Context, cred model.Credential) error {
	if cred.AccessToken == "" {
		return errors.New("credential has no access token")
	}

	user, err := json.Marshal(cred.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	if err := c.store.SetMany(ctx, map[string][]byte{
		keyAccessToken:  []byte(cred.AccessToken),
		keyRefreshToken: []byte(cred.RefreshToken),
		keyUser:         user,
	}); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Load возвращает сохранённые учётные данные или nil, если их нет либо они
// повреждены. Ошибка возвращается только при сбое хранилища.
func (c *CredentialStore) Load(ctx context.Context) (*model.Credential, error) {
	values := make(map[string][]byte, 3)
	for _, key := range []string{keyAccessToken, keyRefreshToken, keyUser} {
		v, err := c.store.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load credential: %w", err)
		}
		values[key] = v
	}

	if len(values[keyAccessToken]) == 0 {
		return nil, nil
	}

	var user model.User
	if err := json.Unmarshal(values[keyUser], &user); err != nil {
		c.logger.Warn("stored user profile is corrupted, ignoring credential", zap.Error(err))
		return nil, nil
	}

	return &model.Credential{
		AccessToken:  string(values[keyAccessToken]),
		RefreshToken: string(values[keyRefreshToken]),
		User:         user,
	}, nil
}

// Clear удаляет все три поля учётных данных.
func (c *CredentialStore) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, keyAccessToken, keyRefreshToken, keyUser); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// AccessToken возвращает токен доступа для авторизованных запросов.
func (c *CredentialStore) AccessToken(ctx context.Context) (string, bool) {
	cred, err := c.Load(ctx)
	if err != nil {
		c.logger.Warn("read access token", zap.Error(err))
		return "", false
	}
	if cred == nil {
		return "", false
	}
	return cred.AccessToken, true
}
