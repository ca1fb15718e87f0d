// api — типизированные read-вызовы бэкенда edugrader поверх шлюза сессии.
// Пакет отвечает только за маршалинг: аутентификация, обновление токена
// и повторы — забота session.Manager.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Alixandros/edugrader-client/internal/session"
)

// Gateway — способность выполнить запрос от имени сессии.
// Реализуется session.Manager.
type Gateway interface {
	Do(ctx context.Context, req session.Request) (*session.Response, error)
}

// Client — типизированный API-клиент.
type Client struct {
	gw Gateway
}

// New создает Client поверх шлюза сессии.
func New(gw Gateway) *Client {
	return &Client{gw: gw}
}

// APIError — не-auth ошибка бэкенда (404, 409, 5xx и т.п.).
// Auth-ошибки до этого типа не доходят: их гасит или поднимает шлюз.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}

	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Detail)
}

// get выполняет GET и декодирует успешный ответ в out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	const op = "api.get"

	resp, err := c.gw.Do(ctx, session.Request{
		Method: http.MethodGet,
		Path:   path,
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{
			StatusCode: resp.StatusCode,
			Detail:     detailFrom(resp.Body),
		}
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", op, path, err)
	}

	return nil
}

// detailFrom достает строку detail из тела ошибки (если она там есть).
func detailFrom(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	return payload.Detail
}
