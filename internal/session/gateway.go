package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Alixandros/edugrader-client/internal/models"
	"github.com/Alixandros/edugrader-client/internal/pkg/log"
)

// Request — описание исходящего запроса к бэкенду. Тело запроса задаётся
// декларативно (JSON или форма), поэтому шлюз может пересобрать запрос
// заново при повторе после обновления токена.
type Request struct {
	Method string
	// Path — путь относительно базового URL, например "/courses".
	Path  string
	Query url.Values
	// JSON — тело запроса, сериализуемое в JSON (nil — без тела).
	JSON any
	// Form — form-encoded тело; взаимоисключимо с JSON.
	Form url.Values
}

// Response — результат прошедшего через шлюз запроса.
// Тело вычитано целиком, соединение возвращено в пул.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do выполняет запрос через шлюз сессии.
//
// Поведение:
//   - к запросу прикладывается Bearer-токен текущей сессии (если он есть;
//     без сессии запрос уходит неаутентифицированным);
//   - заведомо истёкший access-токен обновляется до первой попытки;
//   - на 401 выполняется ровно один повтор после успешного refresh;
//     повторный 401 фатален для сессии (ErrAuthenticationFailed);
//   - отказ refresh завершает сессию (ErrSessionExpired);
//   - любые не-auth ответы (4xx валидации, 5xx) возвращаются как есть.
func (m *Manager) Do(ctx context.Context, req Request) (*Response, error) {
	const op = "session.Do"

	token := m.currentAccessToken()

	// Проактивное обновление: не тратим поход на заведомый 401.
	if token != "" && m.accessExpired() {
		pair, err := m.ensureFreshToken(ctx, token)
		if err != nil {
			return nil, err
		}
		token = pair.AccessToken
	}

	resp, err := m.execute(ctx, req, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, nil
	}

	// 401 с токеном: единственный повтор после обновления.
	pair, err := m.ensureFreshToken(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err = m.execute(ctx, req, pair.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		log.From(ctx).Warn("request_rejected_after_refresh",
			slog.String("op", op),
			slog.String("path", req.Path),
		)

		m.mu.Lock()
		m.status = models.StatusTerminated
		m.mu.Unlock()

		m.teardown(ctx, EndedByRejection)

		return nil, fmt.Errorf("%s: %w", op, ErrAuthenticationFailed)
	}

	return resp, nil
}

// accessExpired сообщает, что access-токен текущей сессии уже истёк.
func (m *Manager) accessExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tokens.Expired(time.Now().UTC())
}

// execute собирает и выполняет одиночный HTTP-запрос.
// Каждая попытка строит запрос заново, чтобы тело было читаемо повторно.
func (m *Manager) execute(ctx context.Context, req Request, token string) (*Response, error) {
	const op = "session.execute"

	if m.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.requestTimeout)
		defer cancel()
	}

	httpReq, err := m.buildRequest(ctx, req, token)
	if err != nil {
		return nil, err
	}

	httpResp, err := m.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// buildRequest превращает декларативный Request в *http.Request.
func (m *Manager) buildRequest(ctx context.Context, req Request, token string) (*http.Request, error) {
	const op = "session.buildRequest"

	fullURL := m.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)

	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal body: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case len(req.Form) > 0:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	return httpReq, nil
}
