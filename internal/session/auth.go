package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Alixandros/edugrader-client/internal/models"
	"github.com/Alixandros/edugrader-client/internal/pkg/log"
)

// Login выполняет вход по email+пароль и устанавливает сессию.
//
// Последовательность: POST /auth/login (form-encoded, как того требует
// бэкенд), разбор claims access-токена (роль и срок годности доступны до
// похода за профилем), GET /users/me, запись пары в хранилище.
// При неверных учётных данных возвращается ErrInvalidCredentials,
// сессия остаётся Anonymous.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (*models.UserProfile, error) {
	const op = "session.Login"

	lg := log.From(ctx)

	m.mu.Lock()
	m.status = models.StatusAuthenticating
	m.mu.Unlock()

	// Любой выход из функции без установленной сессии — откат в Anonymous.
	established := false
	defer func() {
		if !established {
			m.mu.Lock()
			if m.status == models.StatusAuthenticating {
				m.status = models.StatusAnonymous
			}
			m.mu.Unlock()
		}
	}()

	if m.loginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.loginTimeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("username", identifier)
	form.Set("password", secret)

	resp, err := m.execute(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Form:   form,
	}, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return nil, fmt.Errorf("%s: incomplete token pair in response", op)
	}

	pair := models.TokenPair{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}

	claims, err := decodeAccessClaims(tr.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pair.AccessExpiresAt = claims.expiresAt()
	if pair.AccessExpiresAt.IsZero() && tr.ExpiresIn > 0 {
		pair.AccessExpiresAt = time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	profile, err := m.fetchProfile(ctx, pair.AccessToken)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.tokens = pair
	m.profile = profile
	m.status = models.StatusAuthenticated

	// Запись под тем же мьютексом, что и установка сессии: конкурентный
	// logout либо зачистит и память, и хранилище после, либо целиком до.
	// Сбой записи не отменяет логин: сессия валидна в памяти,
	// пострадает только восстановление после рестарта.
	if err := m.store.Save(ctx, pair); err != nil {
		lg.Warn("token_store_save_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
	m.mu.Unlock()
	established = true

	lg.Info("login_ok",
		slog.String("op", op),
		slog.String("role", string(profile.Role)),
	)

	return profile, nil
}

// Register создает учётную запись. Сессию не устанавливает и не меняет.
// Ошибки валидации бэкенда возвращаются по полям как *ValidationError.
func (m *Manager) Register(ctx context.Context, data RegisterData) (*models.UserProfile, error) {
	const op = "session.Register"

	if m.loginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.loginTimeout)
		defer cancel()
	}

	resp, err := m.execute(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/register",
		JSON: registerRequest{
			Email:      data.Email,
			Password:   data.Password,
			Phone:      data.Phone,
			FirstName:  data.FirstName,
			LastName:   data.LastName,
			MiddleName: data.MiddleName,
			Role:       string(data.Role),
			Group:      data.Group,
			Faculty:    data.Faculty,
		},
	}, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
	}

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		if verr := parseValidationError(resp.Body); verr != nil {
			return nil, verr
		}

		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var ur userResponse
	if err := json.Unmarshal(resp.Body, &ur); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}

	profile, err := ur.toProfile()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return profile, nil
}

// RegisterData — поля создаваемой учётной записи.
type RegisterData struct {
	Email      string
	Password   string
	Phone      string
	FirstName  string
	LastName   string
	MiddleName string
	Role       models.Role
	Group      string
	Faculty    string
}

// Logout завершает сессию.
//
// Отзыв токена на бэкенде — best-effort с коротким таймаутом; независимо
// от его исхода локальная зачистка безусловна: хранилище очищено, сессия
// Anonymous, навигационный коллаборатор уведомлён. Незавершённый refresh
// logout не ждёт — его результат будет отброшен по epoch.
func (m *Manager) Logout(ctx context.Context) {
	const op = "session.Logout"

	m.mu.Lock()
	token := m.tokens.AccessToken
	// Отменяем эффект любого refresh, который успел стартовать до logout.
	m.epoch++
	m.mu.Unlock()

	if token != "" {
		revokeCtx := ctx
		if m.logoutTimeout > 0 {
			var cancel context.CancelFunc
			revokeCtx, cancel = context.WithTimeout(ctx, m.logoutTimeout)
			defer cancel()
		}

		resp, err := m.execute(revokeCtx, Request{
			Method: http.MethodPost,
			Path:   "/auth/logout",
		}, token)
		if err != nil {
			log.From(ctx).Warn("logout_revoke_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		} else if resp.StatusCode >= http.StatusMultipleChoices {
			log.From(ctx).Warn("logout_revoke_rejected",
				slog.String("op", op),
				slog.Int("status", resp.StatusCode),
			)
		}
	}

	m.teardown(ctx, EndedByLogout)
}

// fetchProfile читает /users/me с явно переданным access-токеном.
// Используется при установке сессии, когда пара ещё не записана в Manager.
func (m *Manager) fetchProfile(ctx context.Context, token string) (*models.UserProfile, error) {
	const op = "session.fetchProfile"

	resp, err := m.execute(ctx, Request{
		Method: http.MethodGet,
		Path:   "/users/me",
	}, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	return decodeProfile(resp.Body)
}

// fetchProfileViaGateway читает /users/me через шлюз: истёкший access-токен
// по дороге обновится штатным образом.
func (m *Manager) fetchProfileViaGateway(ctx context.Context) (*models.UserProfile, error) {
	const op = "session.fetchProfileViaGateway"

	resp, err := m.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/users/me",
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	return decodeProfile(resp.Body)
}

func decodeProfile(body []byte) (*models.UserProfile, error) {
	const op = "session.decodeProfile"

	var ur userResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return nil, fmt.Errorf("%s: decode profile: %w", op, err)
	}

	profile, err := ur.toProfile()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return profile, nil
}
