package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Alixandros/edugrader-client/internal/models"
	"github.com/Alixandros/edugrader-client/internal/tokenstore"
)

func newTestManager(t *testing.T, b *fakeBackend) (*Manager, *tokenstore.MemoryStore, *notifyRecorder) {
	t.Helper()

	store := tokenstore.NewMemoryStore()
	notify := &notifyRecorder{}

	m, err := New(Options{
		BaseURL:        b.url(),
		Store:          store,
		Notifier:       notify,
		RequestTimeout: 5 * time.Second,
		LoginTimeout:   5 * time.Second,
		LogoutTimeout:  time.Second,
	})
	require.NoError(t, err)

	return m, store, notify
}

func mustLogin(t *testing.T, m *Manager, b *fakeBackend) *models.UserProfile {
	t.Helper()

	profile, err := m.Login(context.Background(), b.email, b.password)
	require.NoError(t, err)

	return profile
}

func TestLogin_OK(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	m, store, _ := newTestManager(t, b)

	profile, err := m.Login(context.Background(), "alice@example.com", "correct-pw")
	require.NoError(t, err)

	require.Equal(t, models.StatusAuthenticated, m.Status())
	require.Equal(t, models.RoleStudent, profile.Role)
	require.Equal(t, b.userID, profile.ID)

	// Пара целиком лежит в хранилище.
	pair, ok := store.Load(context.Background())
	require.True(t, ok)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.False(t, pair.AccessExpiresAt.IsZero())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	m, store, _ := newTestManager(t, b)

	_, err := m.Login(context.Background(), "alice@example.com", "wrong-pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.Equal(t, models.StatusAnonymous, m.Status())

	_, ok := store.Load(context.Background())
	require.False(t, ok)
}

func TestLogin_NetworkError(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	m, _, _ := newTestManager(t, b)
	b.srv.Close()

	_, err := m.Login(context.Background(), b.email, b.password)
	require.ErrorIs(t, err, ErrNetwork)
	require.Equal(t, models.StatusAnonymous, m.Status())
}

func TestRegister_OK_DoesNotEstablishSession(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	m, store, _ := newTestManager(t, b)

	// Бэкенд отвечает на register профилем /users/me-формы; для фейка
	// достаточно переиспользовать handleMe-подобное тело через /auth/register.
	profile, err := m.Register(context.Background(), RegisterData{
		Email:     "bob@example.com",
		Password:  "Secret-123",
		FirstName: "Боб",
		LastName:  "Петров",
		Role:      models.RoleStudent,
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, profile.Role)

	require.Equal(t, models.StatusAnonymous, m.Status())
	_, ok := store.Load(context.Background())
	require.False(t, ok)
}

func TestRegister_EmailTaken(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	b.registerStatus = 400
	b.registerDetail = "Email already registered"
	m, _, _ := newTestManager(t, b)

	_, err := m.Register(context.Background(), RegisterData{
		Email:     b.email,
		Password:  "Secret-123",
		FirstName: "Алиса",
		LastName:  "Иванова",
		Role:      models.RoleStudent,
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "already registered", verr.Fields["email"])

	require.Equal(t, models.StatusAnonymous, m.Status())
}

func TestLogout_ClearsEvenWhenRevokeFails(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	b.logoutStatus = 500
	m, store, notify := newTestManager(t, b)

	mustLogin(t, m, b)
	m.Logout(context.Background())

	require.Equal(t, models.StatusAnonymous, m.Status())

	_, ok := store.Load(context.Background())
	require.False(t, ok)

	_, hasUser := m.CurrentUser()
	require.False(t, hasUser)

	require.Equal(t, []EndReason{EndedByLogout}, notify.all())
}

func TestLogout_ClearsWhenBackendUnreachable(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	m, store, _ := newTestManager(t, b)

	mustLogin(t, m, b)
	b.srv.Close()

	m.Logout(context.Background())

	require.Equal(t, models.StatusAnonymous, m.Status())

	_, ok := store.Load(context.Background())
	require.False(t, ok)
}

func TestRestore_EmptyStore(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	m, _, _ := newTestManager(t, b)

	require.NoError(t, m.Restore(context.Background()))
	require.Equal(t, models.StatusAnonymous, m.Status())
}

func TestRestore_OK(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	m1, store, _ := newTestManager(t, b)
	mustLogin(t, m1, b)

	// Новый процесс: тот же store, новый Manager.
	notify := &notifyRecorder{}
	m2, err := New(Options{
		BaseURL:  b.url(),
		Store:    store,
		Notifier: notify,
	})
	require.NoError(t, err)

	require.NoError(t, m2.Restore(context.Background()))
	require.Equal(t, models.StatusAuthenticated, m2.Status())

	profile, ok := m2.CurrentUser()
	require.True(t, ok)
	require.Equal(t, b.userID, profile.ID)
}

func TestRestore_StaleAccessHealsViaRefresh(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	m1, store, _ := newTestManager(t, b)
	mustLogin(t, m1, b)

	// Сервер больше не принимает выданный access — восстановление
	// должно пройти через refresh.
	b.breakAccess()

	m2, err := New(Options{
		BaseURL: b.url(),
		Store:   store,
	})
	require.NoError(t, err)

	require.NoError(t, m2.Restore(context.Background()))
	require.Equal(t, models.StatusAuthenticated, m2.Status())
	require.Equal(t, 1, b.refreshCallCount())
}

func TestRestore_RejectedTokensCleared(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)
	m, store, notify := newTestManager(t, b)

	// В хранилище лежит структурно корректная, но чужая пара.
	require.NoError(t, store.Save(context.Background(), models.TokenPair{
		AccessToken:  "stale-access",
		RefreshToken: "stale-refresh",
	}))

	require.NoError(t, m.Restore(context.Background()))

	require.Equal(t, models.StatusAnonymous, m.Status())

	_, ok := store.Load(context.Background())
	require.False(t, ok)

	require.Equal(t, []EndReason{EndedByExpiry}, notify.all())
}
