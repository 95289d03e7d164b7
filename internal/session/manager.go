package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/coffeetime-storefront/internal/model"
	"github.com/mmeshcher/coffeetime-storefront/internal/validation"
)

// Remote описывает обращения к удалённой стороне, нужные для входа и регистрации.
type Remote interface {
	Login(ctx context.Context, username, password string) (*model.TokenPair, error)
	Me(ctx context.Context, accessToken string) (*model.User, error)
	Register(ctx context.Context, req model.RegisterRequest) error
}

// Manager управляет сессией пользователя и является единственным писателем
// CredentialStore.
type Manager struct {
	remote Remote
	creds  *CredentialStore
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current *model.Credential

	inflight atomic.Int32

	subsMu  sync.Mutex
	subs    map[int]func(*model.User)
	nextSub int
}

// NewManager создаёт менеджер сессии.
func NewManager(remote Remote, creds *CredentialStore, logger *zap.Logger) *Manager {
	return &Manager{
		remote: remote,
		creds:  creds,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]func(*model.User)),
	}
}

// Restore поднимает сохранённую сессию. Учётные данные с истёкшим токеном
// доступа удаляются.
func (m *Manager) Restore(ctx context.Context) error {
	cred, err := m.creds.Load(ctx)
	if err != nil {
		return err
	}

	if cred != nil && tokenExpired(cred.AccessToken, m.now()) {
		m.logger.Info("stored access token has expired, discarding session",
			zap.String("username", cred.User.Username))
		if err := m.creds.Clear(ctx); err != nil {
			return err
		}
		cred = nil
	}

	m.setCurrent(cred)
	return nil
}

// Login выполняет вход. Учётные данные сохраняются, только если удалось и
// получить токены, и загрузить профиль.
func (m *Manager) Login(ctx context.Context, username, password string) (*model.User, error) {
	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	return m.login(ctx, username, password)
}

func (m *Manager) login(ctx context.Context, username, password string) (*model.User, error) {
	tokens, err := m.remote.Login(ctx, username, password)
	if err != nil {
		m.logger.Debug("login rejected", zap.String("username", username), zap.Error(err))
		return nil, classifyAuthError(err, "Ошибка входа")
	}

	user, err := m.remote.Me(ctx, tokens.Access)
	if err != nil {
		m.logger.Warn("profile fetch failed after login, discarding tokens",
			zap.String("username", username), zap.Error(err))
		return nil, classifyAuthError(err, "Ошибка входа")
	}

	cred := model.Credential{
		AccessToken:  tokens.Access,
		RefreshToken: tokens.Refresh,
		User:         *user,
	}
	if err := m.creds.Save(ctx, cred); err != nil {
		m.logger.Error("persist credential", zap.Error(err))
		return nil, &AuthError{Code: CodeUnknown, Message: "Не удалось сохранить сессию", Err: err}
	}

	m.setCurrent(&cred)

	u := cred.User
	return &u, nil
}

// Register регистрирует пользователя и сразу выполняет вход с теми же данными.
func (m *Manager) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	if err := validation.ValidateRegistration(req); err != nil {
		return nil, classifyAuthError(err, "Ошибка регистрации")
	}

	if err := m.remote.Register(ctx, req); err != nil {
		m.logger.Debug("register rejected", zap.String("username", req.Username), zap.Error(err))
		return nil, classifyAuthError(err, "Ошибка регистрации")
	}

	return m.login(ctx, req.Username, req.Password)
}

// Logout завершает сессию локально, не обращаясь к удалённой стороне.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.creds.Clear(ctx)
	m.setCurrent(nil)
	return err
}

// Invalidate завершает сессию, которую удалённая сторона признала недействительной.
func (m *Manager) Invalidate(ctx context.Context, reason string) {
	m.logger.Warn("session invalidated", zap.String("reason", reason))
	if err := m.Logout(ctx); err != nil {
		m.logger.Error("clear invalidated credential", zap.Error(err))
	}
}

// IsAuthenticated сообщает, есть ли активная сессия.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// IsAdmin сообщает, что текущий пользователь администратор.
func (m *Manager) IsAdmin() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil && m.current.User.IsAdmin()
}

// CurrentUser возвращает копию профиля текущего пользователя или nil.
func (m *Manager) CurrentUser() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	u := m.current.User
	return &u
}

// Loading сообщает, что выполняется вход или регистрация.
func (m *Manager) Loading() bool {
	return m.inflight.Load() > 0
}

// Subscribe регистрирует наблюдателя за сменой пользователя. Возвращает
// функцию отписки.
func (m *Manager) Subscribe(fn func(*model.User)) func() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) setCurrent(cred *model.Credential) {
	m.mu.Lock()
	m.current = cred
	m.mu.Unlock()

	var user *model.User
	if cred != nil {
		u := cred.User
		user = &u
	}

	m.subsMu.Lock()
	subs := make([]func(*model.User), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range subs {
		fn(user)
	}
}

// tokenExpired сообщает, что токен является JWT с истёкшим сроком действия.
// Подпись не проверяется: это делает удалённая сторона. Непрозрачные токены
// считаются действительными до первого ответа 401.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return !exp.After(now)
}
