package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/coffeetime-storefront/internal/api"
	"github.com/mmeshcher/coffeetime-storefront/internal/model"
	"github.com/mmeshcher/coffeetime-storefront/internal/storage"
)

type stubRemote struct {
	tokens   *model.TokenPair
	loginErr error

	user  *model.User
	meErr error

	registerErr error

	loginCalls    int
	meCalls       int
	registerCalls int
	meToken       string

	block chan struct{}
}

func (s *stubRemote) Login(ctx context.Context, username, password string) (*model.TokenPair, error) {
	s.loginCalls++
	if s.block != nil {
		<-s.block
	}
	return s.tokens, s.loginErr
}

func (s *stubRemote) Me(ctx context.Context, accessToken string) (*model.User, error) {
	s.meCalls++
	s.meToken = accessToken
	return s.user, s.meErr
}

func (s *stubRemote) Register(ctx context.Context, req model.RegisterRequest) error {
	s.registerCalls++
	return s.registerErr
}

type failingStore struct {
	*storage.MemoryStore
}

func (f failingStore) SetMany(ctx context.Context, values map[string][]byte) error {
	return errors.New("disk full")
}

func newTestManager(t *testing.T, remote Remote, store storage.Store) (*Manager, *CredentialStore) {
	t.Helper()

	creds := NewCredentialStore(store, zap.NewNop())
	return NewManager(remote, creds, zap.NewNop()), creds
}

func okRemote() *stubRemote {
	return &stubRemote{
		tokens: &model.TokenPair{Access: "access-1", Refresh: "refresh-1"},
		user:   &model.User{ID: 1, Username: "anna", Role: model.RoleCustomer, Phone: "+1"},
	}
}

func TestLogin_PersistsCredential(t *testing.T) {
	remote := okRemote()
	m, creds := newTestManager(t, remote, storage.NewMemoryStore())
	ctx := context.Background()

	u, err := m.Login(ctx, "anna", "secret")
	require.NoError(t, err)
	assert.Equal(t, "anna", u.Username)
	assert.Equal(t, "access-1", remote.meToken)

	cred, err := creds.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.Equal(t, int64(1), cred.User.ID)

	assert.True(t, m.IsAuthenticated())
	assert.False(t, m.IsAdmin())
	assert.Equal(t, "anna", m.CurrentUser().Username)
	assert.False(t, m.Loading())
}

func TestLogin_ProfileFailureDiscardsTokens(t *testing.T) {
	remote := okRemote()
	remote.meErr = &api.Error{Kind: api.KindNetwork, Message: "remote service unavailable"}
	m, creds := newTestManager(t, remote, storage.NewMemoryStore())
	ctx := context.Background()

	_, err := m.Login(ctx, "anna", "secret")
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeUnknown, authErr.Code)
	assert.ErrorIs(t, err, api.ErrNetwork)

	cred, err := creds.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
	assert.False(t, m.IsAuthenticated())
}

func TestLogin_InvalidCredentialsSkipsProfile(t *testing.T) {
	remote := okRemote()
	remote.loginErr = &api.Error{Kind: api.KindUnauthorized, StatusCode: 401, Message: "No active account"}
	m, _ := newTestManager(t, remote, storage.NewMemoryStore())

	_, err := m.Login(context.Background(), "anna", "bad")

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeInvalidCredentials, authErr.Code)
	assert.Equal(t, "Неверные имя пользователя или пароль", authErr.Message)
	assert.Equal(t, 0, remote.meCalls)
}

func TestLogin_SaveFailureIsReported(t *testing.T) {
	m, creds := newTestManager(t, okRemote(), failingStore{storage.NewMemoryStore()})
	ctx := context.Background()

	_, err := m.Login(ctx, "anna", "secret")
	require.Error(t, err)
	assert.False(t, m.IsAuthenticated())

	cred, err := creds.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestRegister_LogsInAfterSuccess(t *testing.T) {
	remote := okRemote()
	m, _ := newTestManager(t, remote, storage.NewMemoryStore())

	u, err := m.Register(context.Background(), model.RegisterRequest{
		Username:  "anna",
		Email:     "anna@example.com",
		Password:  "longpassword",
		Password2: "longpassword",
	})
	require.NoError(t, err)
	assert.Equal(t, "anna", u.Username)
	assert.Equal(t, 1, remote.registerCalls)
	assert.Equal(t, 1, remote.loginCalls)
	assert.True(t, m.IsAuthenticated())
}

func TestRegister_RemoteValidationFlattened(t *testing.T) {
	remote := okRemote()
	remote.registerErr = &api.Error{
		Kind:       api.KindValidation,
		StatusCode: 400,
		Message:    api.FlattenFieldErrors([]byte(`{"username":["Имя занято"],"email":["Некорректный email","Слишком длинный"]}`)),
	}
	m, _ := newTestManager(t, remote, storage.NewMemoryStore())

	_, err := m.Register(context.Background(), model.RegisterRequest{
		Username:  "anna",
		Email:     "anna@example.com",
		Password:  "longpassword",
		Password2: "longpassword",
	})

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeValidation, authErr.Code)
	assert.Equal(t, "Имя занято, Некорректный email, Слишком длинный", authErr.Message)
	assert.Equal(t, 0, remote.loginCalls)
	assert.False(t, m.IsAuthenticated())
}

func TestRegister_LocalValidationSkipsRemote(t *testing.T) {
	remote := okRemote()
	m, _ := newTestManager(t, remote, storage.NewMemoryStore())

	_, err := m.Register(context.Background(), model.RegisterRequest{
		Username:  "anna",
		Email:     "anna@example.com",
		Password:  "longpassword",
		Password2: "different-password",
	})

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeValidation, authErr.Code)
	assert.Contains(t, authErr.Message, "Пароли не совпадают")
	assert.Equal(t, 0, remote.registerCalls)
}

func TestLogout_ClearsAllFields(t *testing.T) {
	store := storage.NewMemoryStore()
	m, creds := newTestManager(t, okRemote(), store)
	ctx := context.Background()

	_, err := m.Login(ctx, "anna", "secret")
	require.NoError(t, err)

	require.NoError(t, m.Logout(ctx))

	cred, err := creds.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.CurrentUser())

	for _, key := range []string{keyAccessToken, keyRefreshToken, keyUser} {
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}
}

func TestInvalidate_EndsSession(t *testing.T) {
	m, creds := newTestManager(t, okRemote(), storage.NewMemoryStore())
	ctx := context.Background()

	_, err := m.Login(ctx, "anna", "secret")
	require.NoError(t, err)

	m.Invalidate(ctx, "401 from /orders")

	assert.False(t, m.IsAuthenticated())
	token, ok := creds.AccessToken(ctx)
	assert.False(t, ok)
	assert.Empty(t, token)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"exp":     exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestRestore(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		access string
		want   bool
	}{
		{name: "valid jwt", access: signedToken(t, now.Add(time.Hour)), want: true},
		{name: "expired jwt", access: signedToken(t, now.Add(-time.Minute)), want: false},
		{name: "opaque token", access: "opaque-token", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			m, creds := newTestManager(t, okRemote(), store)
			m.now = func() time.Time { return now }
			ctx := context.Background()

			require.NoError(t, creds.Save(ctx, model.Credential{
				AccessToken:  tt.access,
				RefreshToken: "r",
				User:         model.User{ID: 2, Username: "admin", Role: model.RoleAdmin},
			}))

			require.NoError(t, m.Restore(ctx))
			assert.Equal(t, tt.want, m.IsAuthenticated())
			assert.Equal(t, tt.want, m.IsAdmin())

			cred, err := creds.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cred != nil)
		})
	}
}

func TestCredentialStore_CorruptOrPartialIsAbsent(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		values map[string][]byte
	}{
		{
			name: "corrupted user",
			values: map[string][]byte{
				keyAccessToken:  []byte("a"),
				keyRefreshToken: []byte("r"),
				keyUser:         []byte("{not json"),
			},
		},
		{
			name: "missing refresh token",
			values: map[string][]byte{
				keyAccessToken: []byte("a"),
				keyUser:        []byte(`{"id":1}`),
			},
		},
		{
			name: "empty access token",
			values: map[string][]byte{
				keyAccessToken:  []byte(""),
				keyRefreshToken: []byte("r"),
				keyUser:         []byte(`{"id":1}`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			require.NoError(t, store.SetMany(ctx, tt.values))

			cred, err := NewCredentialStore(store, zap.NewNop()).Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, cred)
		})
	}
}

func TestSubscribe_NotifiesOnChange(t *testing.T) {
	m, _ := newTestManager(t, okRemote(), storage.NewMemoryStore())
	ctx := context.Background()

	var seen []*model.User
	unsubscribe := m.Subscribe(func(u *model.User) {
		seen = append(seen, u)
	})

	_, err := m.Login(ctx, "anna", "secret")
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx))

	require.Len(t, seen, 2)
	assert.Equal(t, "anna", seen[0].Username)
	assert.Nil(t, seen[1])

	unsubscribe()
	_, err = m.Login(ctx, "anna", "secret")
	require.NoError(t, err)
	assert.Len(t, seen, 2)
}

func TestLoading_TrueWhileLoginInFlight(t *testing.T) {
	remote := okRemote()
	remote.block = make(chan struct{})
	m, _ := newTestManager(t, remote, storage.NewMemoryStore())

	done := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), "anna", "secret")
		done <- err
	}()

	assert.Eventually(t, m.Loading, time.Second, 5*time.Millisecond)

	close(remote.block)
	require.NoError(t, <-done)
	assert.False(t, m.Loading())
}
