package session

// Тестовый бэкенд: httptest-сервер с маршрутами edugrader, ведёт себя как
// настоящий auth-бэкенд с ротацией refresh-токенов. Принимается ровно одна
// пара токенов; использованный refresh-токен немедленно аннулируется.

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Alixandros/edugrader-client/internal/models"
)

type fakeBackend struct {
	t *testing.T

	mu           sync.Mutex
	secret       []byte
	userID       uuid.UUID
	email        string
	password     string
	role         models.Role
	access       string // принимаемый сейчас access-токен
	refresh      string // принимаемый сейчас refresh-токен
	refreshCalls int
	loginCalls   int
	coursesCalls int
	lastAuth     string

	refreshFail      bool          // refresh отвечает 401
	refreshStatus5xx bool          // refresh отвечает 502 (сбой, не отказ)
	refreshGate      chan struct{} // если не nil — refresh блокируется до close
	alwaysReject     bool          // /courses и /users/me отвечают 401 всегда
	coursesStatus    int           // принудительный статус /courses (0 — обычный)
	logoutStatus     int
	registerStatus   int           // принудительный статус /auth/register (0 — обычный)
	registerDetail   string        // detail для принудительного статуса

	srv *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		t:            t,
		secret:       []byte("unit-secret"),
		userID:       uuid.New(),
		email:        "alice@example.com",
		password:     "correct-pw",
		role:         models.RoleStudent,
		logoutStatus: http.StatusOK,
	}

	r := chi.NewRouter()
	r.Post("/auth/register", b.handleRegister)
	r.Post("/auth/login", b.handleLogin)
	r.Post("/auth/refresh", b.handleRefresh)
	r.Post("/auth/logout", b.handleLogout)
	r.Get("/users/me", b.handleMe)
	r.Get("/courses", b.handleCourses)

	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)

	return b
}

func (b *fakeBackend) url() string { return b.srv.URL }

// mintAccess выпускает подписанный access-токен с ролью и сроком годности.
func (b *fakeBackend) mintAccess(ttl time.Duration) string {
	b.t.Helper()

	claims := struct {
		Role string `json:"role"`
		jwt.RegisteredClaims
	}{
		Role: string(b.role),
		RegisteredClaims: jwt.RegisteredClaims{
			// iat/exp усечены до секунд; уникальность токена даёт jti,
			// иначе два выпуска в одну секунду байт-в-байт совпадают.
			ID:        uuid.NewString(),
			Subject:   b.userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	require.NoError(b.t, err)

	return token
}

// issuePair выпускает и запоминает новую принимаемую пару токенов.
// Вызывать под мьютексом.
func (b *fakeBackend) issuePairLocked() (string, string) {
	raw := make([]byte, 16)
	_, err := rand.Read(raw)
	require.NoError(b.t, err)

	b.access = b.mintAccess(15 * time.Minute)
	b.refresh = hex.EncodeToString(raw)

	return b.access, b.refresh
}

// breakAccess аннулирует принимаемый access-токен, не трогая refresh:
// токены на руках у клиента становятся «протухшими» с точки зрения сервера.
func (b *fakeBackend) breakAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.access = b.mintAccess(15 * time.Minute)
}

func (b *fakeBackend) refreshCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.refreshCalls
}

func (b *fakeBackend) coursesCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.coursesCalls
}

func (b *fakeBackend) lastAuthHeader() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lastAuth
}

func (b *fakeBackend) authorizedLocked(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	b.lastAuth = auth

	if b.alwaysReject {
		return false
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}

	return strings.TrimSpace(auth[len(prefix):]) == b.access
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func (b *fakeBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	status, detail := b.registerStatus, b.registerDetail
	b.mu.Unlock()

	if status != 0 {
		writeDetail(w, status, detail)
		return
	}

	var in map[string]any
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&in))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":         uuid.NewString(),
		"email":      in["email"],
		"first_name": in["first_name"],
		"last_name":  in["last_name"],
		"role":       in["role"],
		"is_active":  true,
	})
}

func (b *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	require.NoError(b.t, r.ParseForm())

	b.mu.Lock()
	defer b.mu.Unlock()

	b.loginCalls++

	if r.PostFormValue("username") != b.email || r.PostFormValue("password") != b.password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	access, refresh := b.issuePairLocked()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    900,
	})
}

func (b *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&in))

	b.mu.Lock()
	b.refreshCalls++
	gate := b.refreshGate
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refreshStatus5xx {
		writeDetail(w, http.StatusBadGateway, "upstream down")
		return
	}

	if b.refreshFail || in.RefreshToken != b.refresh {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	access, refresh := b.issuePairLocked()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    900,
	})
}

func (b *fakeBackend) handleLogout(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	status := b.logoutStatus
	b.mu.Unlock()

	w.WriteHeader(status)
}

func (b *fakeBackend) handleMe(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.authorizedLocked(r) {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":         b.userID.String(),
		"email":      b.email,
		"first_name": "Алиса",
		"last_name":  "Иванова",
		"role":       string(b.role),
		"group":      "ИС-21",
		"is_active":  true,
	})
}

func (b *fakeBackend) handleCourses(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.coursesCalls++

	if b.coursesStatus != 0 {
		writeDetail(w, b.coursesStatus, "boom")
		return
	}

	if !b.authorizedLocked(r) {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode([]map[string]any{
		{"id": "c-1", "code": "CS101", "name_ru": "Программирование"},
	})
}

// Аннулирование обязано менять принимаемый токен даже в пределах
// одной секунды — иначе 401 для токена на руках у клиента не случится.
func TestBreakAccessRotatesAcceptedToken(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t)

	b.mu.Lock()
	access, _ := b.issuePairLocked()
	b.mu.Unlock()

	b.breakAccess()

	b.mu.Lock()
	defer b.mu.Unlock()

	require.NotEqual(t, access, b.access)
}

// notifyRecorder запоминает уведомления о конце сессии.
type notifyRecorder struct {
	mu      sync.Mutex
	reasons []EndReason
}

func (n *notifyRecorder) SessionEnded(reason EndReason) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.reasons = append(n.reasons, reason)
}

func (n *notifyRecorder) all() []EndReason {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]EndReason, len(n.reasons))
	copy(out, n.reasons)

	return out
}
