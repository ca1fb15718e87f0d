// session реализует управление сессией клиента edugrader:
// логин/регистрацию/выход, хранение пары токенов, прозрачное обновление
// access-токена и шлюз исходящих запросов с повтором после обновления.
//
// Основные аспекты:
//   - Manager — единственный владелец состояния сессии; все поля защищены
//     одним мьютексом, независимых писателей нет. Экземпляр безопасен для
//     конкурентного использования из разных горутин.
//   - Инвариант обновления: в любой момент к бэкенду выполняется не больше
//     одного refresh-запроса на сессию (см. EnsureFreshToken). Бэкенд
//     ротирует refresh-токены при использовании, поэтому второй параллельный
//     refresh молча убил бы сессию.
//   - Ошибки возвращаются как сентинелы пакета и проверяются через errors.Is.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Alixandros/edugrader-client/internal/models"
	"github.com/Alixandros/edugrader-client/internal/pkg/log"
	"github.com/Alixandros/edugrader-client/internal/tokenstore"
)

var (
	// ErrInvalidCredentials — пара логин/пароль отклонена бэкендом.
	// Сессия остаётся Anonymous, повтор не выполняется.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionExpired — refresh-токен отклонён бэкендом; сессия
	// завершена, хранилище токенов очищено.
	ErrSessionExpired = errors.New("session expired")

	// ErrAuthenticationFailed — запрос получил 401 даже после одного
	// повтора со свежим токеном. Фатально для сессии.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrSessionTerminated — ожидавшийся refresh разрешился уже после
	// явного logout; результат отброшен. Отличает «вы вышли сами»
	// от «сервер вас отверг».
	ErrSessionTerminated = errors.New("session terminated")

	// ErrNetwork — транспортный сбой; не трактуется как проблема
	// аутентификации, вызывающий код может повторить запрос.
	ErrNetwork = errors.New("network failure")
)

// ValidationError — ошибки регистрации по полям, пришедшие от бэкенда.
// Сессию не затрагивает.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}

	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// EndReason — причина завершения сессии, передаётся в Notifier.
type EndReason int8

const (
	// EndedByLogout — пользователь явно вышел.
	EndedByLogout EndReason = iota
	// EndedByExpiry — refresh-токен отклонён, сессию не продлить.
	EndedByExpiry
	// EndedByRejection — бэкенд отверг запрос даже со свежим токеном.
	EndedByRejection
)

func (r EndReason) String() string {
	switch r {
	case EndedByLogout:
		return "logout"
	case EndedByExpiry:
		return "expired"
	case EndedByRejection:
		return "rejected"
	default:
		return "unknown"
	}
}

// Notifier — навигационный коллаборатор: приложение-хост узнаёт о конце
// сессии и уводит пользователя на экран логина. Вызов происходит вне
// мьютекса Manager, из той горутины, которая завершила сессию.
type Notifier interface {
	SessionEnded(reason EndReason)
}

// NotifierFunc — адаптер функции к интерфейсу Notifier.
type NotifierFunc func(reason EndReason)

func (f NotifierFunc) SessionEnded(reason EndReason) { f(reason) }

// Doer — способность выполнить HTTP-запрос. В проде — *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options — зависимости и параметры Manager.
type Options struct {
	// BaseURL — корень REST API, например "http://localhost:8000/api/v1".
	BaseURL string
	// HTTPClient — транспорт; по умолчанию http.Client без общего таймаута
	// (дедлайны задаются контекстом на каждый вызов).
	HTTPClient Doer
	// Store — долговременное зеркало пары токенов; по умолчанию память.
	Store tokenstore.Store
	// Notifier — коллаборатор навигации; по умолчанию no-op.
	Notifier Notifier

	// RequestTimeout ограничивает одиночный запрос через шлюз и refresh.
	RequestTimeout time.Duration
	// LoginTimeout ограничивает логин/регистрацию.
	LoginTimeout time.Duration
	// LogoutTimeout ограничивает best-effort отзыв токена при выходе.
	LogoutTimeout time.Duration
}

// Manager владеет состоянием сессии и всеми переходами её конечного автомата.
type Manager struct {
	mu      sync.Mutex
	status  models.Status
	tokens  models.TokenPair
	profile *models.UserProfile

	// epoch растёт при каждом teardown; refresh, начатый в прошлой эпохе,
	// не имеет права трогать состояние (см. EnsureFreshToken).
	epoch  uint64
	ticket *refreshTicket
	// lastEnd — причина последнего teardown: опоздавшие наблюдатели 401
	// получают SessionExpired или SessionTerminated в зависимости от неё.
	lastEnd EndReason

	http    Doer
	store   tokenstore.Store
	notify  Notifier
	baseURL string

	requestTimeout time.Duration
	loginTimeout   time.Duration
	logoutTimeout  time.Duration
}

// New создает Manager в состоянии Anonymous.
func New(opts Options) (*Manager, error) {
	const op = "session.New"

	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("%s: empty base url", op)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("%s: invalid base url: %w", op, err)
	}

	m := &Manager{
		status:         models.StatusAnonymous,
		http:           opts.HTTPClient,
		store:          opts.Store,
		notify:         opts.Notifier,
		baseURL:        base,
		requestTimeout: opts.RequestTimeout,
		loginTimeout:   opts.LoginTimeout,
		logoutTimeout:  opts.LogoutTimeout,
	}

	if m.http == nil {
		m.http = &http.Client{}
	}
	if m.store == nil {
		m.store = tokenstore.NewMemoryStore()
	}
	if m.notify == nil {
		m.notify = NotifierFunc(func(EndReason) {})
	}

	return m, nil
}

// Restore пытается восстановить сессию из хранилища токенов.
// Вызывается один раз на старте процесса.
//
// Поведение:
//   - токенов нет — сессия остаётся Anonymous, ошибки нет;
//   - токены есть — профиль перечитывается через шлюз (истёкший access
//     лечится обычным путём через refresh); отказ аутентификации
//     зачищает хранилище и оставляет Anonymous без ошибки;
//   - транспортный сбой — сессия Anonymous, токены в хранилище
//     сохраняются для следующего запуска, возвращается ErrNetwork.
func (m *Manager) Restore(ctx context.Context) error {
	const op = "session.Restore"

	lg := log.From(ctx)

	pair, ok := m.store.Load(ctx)
	if !ok {
		return nil
	}

	m.mu.Lock()
	m.tokens = pair
	m.status = models.StatusAuthenticated
	m.mu.Unlock()

	profile, err := m.fetchProfileViaGateway(ctx)
	if err != nil {
		if errors.Is(err, ErrNetwork) {
			m.mu.Lock()
			m.tokens = models.TokenPair{}
			m.status = models.StatusAnonymous
			m.mu.Unlock()

			return fmt.Errorf("%s: %w", op, err)
		}

		// Отказ аутентификации: teardown уже выполнен шлюзом/координатором.
		lg.Info("session_restore_rejected",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)

		return nil
	}

	m.mu.Lock()
	m.profile = profile
	m.mu.Unlock()

	lg.Info("session_restored",
		slog.String("op", op),
		slog.String("role", string(profile.Role)),
	)

	return nil
}

// teardown — безусловная локальная зачистка: сброс состояния в Anonymous,
// очистка хранилища, уведомление навигационного коллаборатора.
// Инкремент epoch отменяет эффект любого ещё незавершённого refresh.
//
// Очистка хранилища выполняется под мьютексом, как и все записи пары
// (см. Login, EnsureFreshToken): запись, принятая в прошлой эпохе, не может
// вклиниться после очистки и воскресить завершённую сессию.
func (m *Manager) teardown(ctx context.Context, reason EndReason) {
	const op = "session.teardown"

	m.mu.Lock()
	m.epoch++
	m.lastEnd = reason
	m.tokens = models.TokenPair{}
	m.profile = nil
	m.status = models.StatusAnonymous

	if err := m.store.Clear(ctx); err != nil {
		log.From(ctx).Error("token_store_clear_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
	m.mu.Unlock()

	m.notify.SessionEnded(reason)
}

// currentAccessToken возвращает access-токен текущей сессии ("" — нет).
func (m *Manager) currentAccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tokens.AccessToken
}
