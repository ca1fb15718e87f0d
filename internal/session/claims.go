package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims — клиентская проекция claims access-токена.
// Подпись не проверяется: секрет знает только бэкенд, клиенту claims нужны
// для быстрых UI-решений (роль) и вычисления момента истечения до того,
// как сервер ответит 401.
type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// decodeAccessClaims разбирает access-токен без проверки подписи.
func decodeAccessClaims(token string) (*accessClaims, error) {
	const op = "session.decodeAccessClaims"

	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &claims, nil
}

// expiresAt возвращает момент истечения из claims (нулевое время — нет exp).
func (c *accessClaims) expiresAt() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}

	return c.ExpiresAt.Time.UTC()
}
