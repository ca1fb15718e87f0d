package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Alixandros/edugrader-client/internal/models"
	"github.com/Alixandros/edugrader-client/internal/pkg/log"
)

// errRefreshRejected — внутренний маркер: бэкенд определённо отверг
// refresh-токен (4xx). Наружу превращается в ErrSessionExpired.
var errRefreshRejected = errors.New("refresh rejected")

// refreshTicket — общий результат одного refresh-вызова.
// Все запросы, заставшие обновление в полёте, ждут done и читают
// pair/err; поля пишутся строго до close(done).
type refreshTicket struct {
	done chan struct{}
	pair models.TokenPair
	err  error
}

// EnsureFreshToken гарантирует актуальную пару токенов.
//
// Если обновление уже в полёте — вызов присоединяется к существующему
// билету вместо второго похода на бэкенд; сколько бы запросов ни пришло
// за время обновления, refresh-вызов выполняется ровно один. Билет
// снимается только после разрешения, успешного или нет.
//
// Если logout случился, пока refresh был в полёте, результат отбрасывается,
// а ожидающие получают ErrSessionTerminated.
func (m *Manager) EnsureFreshToken(ctx context.Context) (models.TokenPair, error) {
	return m.ensureFreshToken(ctx, "")
}

// ensureFreshToken — общая точка координатора. stale — access-токен,
// который вызывающий уже счёл негодным; если сессия тем временем обзавелась
// другим токеном, чужое обновление уже отработало и новый поход не нужен.
func (m *Manager) ensureFreshToken(ctx context.Context, stale string) (models.TokenPair, error) {
	const op = "session.ensureFreshToken"

	m.mu.Lock()

	if t := m.ticket; t != nil {
		m.mu.Unlock()
		return awaitTicket(ctx, t)
	}

	if !m.tokens.Present() {
		// Сессии уже нет; причина завершения определяет класс ошибки.
		reason := m.lastEnd
		m.mu.Unlock()

		if reason == EndedByExpiry {
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrSessionExpired)
		}

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrSessionTerminated)
	}

	if stale != "" && m.tokens.AccessToken != stale && !m.tokens.Expired(time.Now().UTC()) {
		// Пока вызывающий добирался сюда, пару уже обновили.
		pair := m.tokens
		m.mu.Unlock()

		return pair, nil
	}

	t := &refreshTicket{done: make(chan struct{})}
	m.ticket = t
	epoch := m.epoch
	m.status = models.StatusRefreshing
	m.mu.Unlock()

	// Refresh общий для всех ожидающих, поэтому не наследует отмену
	// контекста инициатора — только его values (логгер и т.п.).
	pair, err := m.callRefresh(context.WithoutCancel(ctx))

	m.mu.Lock()
	m.ticket = nil

	if m.epoch != epoch {
		// Пока шло обновление, сессию явно завершили: результат в мусор.
		m.mu.Unlock()

		t.err = fmt.Errorf("%s: %w", op, ErrSessionTerminated)
		close(t.done)

		return models.TokenPair{}, t.err
	}

	switch {
	case err == nil:
		m.tokens = pair
		m.status = models.StatusAuthenticated

		// Запись под тем же мьютексом, что и проверка epoch выше:
		// logout не может завершиться между решением и записью и оставить
		// в хранилище пару уже мёртвой сессии.
		if serr := m.store.Save(ctx, pair); serr != nil {
			log.From(ctx).Error("token_store_save_failed",
				slog.String("op", op),
				slog.String("err", serr.Error()),
			)
		}
		m.mu.Unlock()

		t.pair = pair
		close(t.done)

		return pair, nil

	case errors.Is(err, errRefreshRejected):
		m.status = models.StatusTerminated
		m.mu.Unlock()

		log.From(ctx).Warn("refresh_rejected",
			slog.String("op", op),
		)

		t.err = fmt.Errorf("%s: %w", op, ErrSessionExpired)
		close(t.done)

		m.teardown(ctx, EndedByExpiry)

		return models.TokenPair{}, t.err

	default:
		// Транспортный сбой — не приговор сессии: токен всё ещё наш,
		// следующий запрос попробует обновиться снова.
		m.status = models.StatusAuthenticated
		m.mu.Unlock()

		t.err = fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
		close(t.done)

		return models.TokenPair{}, t.err
	}
}

// awaitTicket ждет разрешения чужого билета. Отмена контекста прекращает
// ожидание, но не сам refresh — он общий и продолжается для остальных.
func awaitTicket(ctx context.Context, t *refreshTicket) (models.TokenPair, error) {
	select {
	case <-ctx.Done():
		return models.TokenPair{}, ctx.Err()
	case <-t.done:
	}

	if t.err != nil {
		return models.TokenPair{}, t.err
	}

	return t.pair, nil
}

// callRefresh выполняет один POST /auth/refresh.
// 4xx — определённый отказ (errRefreshRejected); прочие сбои, включая 5xx
// и ошибки транспорта, считаются временными.
func (m *Manager) callRefresh(ctx context.Context) (models.TokenPair, error) {
	const op = "session.callRefresh"

	m.mu.Lock()
	refreshToken := m.tokens.RefreshToken
	m.mu.Unlock()

	resp, err := m.execute(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		JSON:   refreshRequest{RefreshToken: refreshToken},
	}, "")
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		// успех — разбираем ниже
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		return models.TokenPair{}, fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, errRefreshRejected)
	default:
		return models.TokenPair{}, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if tr.AccessToken == "" {
		return models.TokenPair{}, fmt.Errorf("%s: empty access token in response", op)
	}

	pair := models.TokenPair{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}
	// Бэкенд может не ротировать refresh-токен — тогда остаётся прежний.
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}

	if claims, err := decodeAccessClaims(tr.AccessToken); err == nil {
		pair.AccessExpiresAt = claims.expiresAt()
	} else if tr.ExpiresIn > 0 {
		pair.AccessExpiresAt = time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	return pair, nil
}
