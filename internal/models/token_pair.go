package models

import "time"

// TokenPair — пара токенов, которой владеет сессия.
//
// Описание:
//   - AccessToken — короткоживущий JWT, прикладывается к каждому запросу;
//   - RefreshToken — долгоживущий секрет для выпуска новой пары;
//   - AccessExpiresAt — момент истечения access-токена (UTC).
//
// Инвариант: пара либо целиком присутствует, либо целиком отсутствует —
// access-токен без refresh-токена не бывает (см. Present).
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// Present сообщает, что пара целиком присутствует.
func (p TokenPair) Present() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Expired сообщает, что access-токен истёк к моменту now.
// Нулевое AccessExpiresAt трактуется как «неизвестно» — не истёк,
// сервер сам ответит 401 при необходимости.
func (p TokenPair) Expired(now time.Time) bool {
	if p.AccessExpiresAt.IsZero() {
		return false
	}

	return now.After(p.AccessExpiresAt)
}
