package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Alixandros/edugrader-client/internal/models"
)

// tokenResponse — ответ /auth/login и /auth/refresh.
// refresh_token в ответе refresh опционален: если бэкенд не ротирует,
// клиент продолжает пользоваться прежним.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// refreshRequest — тело /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// registerRequest — тело /auth/register.
type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Phone      string `json:"phone,omitempty"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	MiddleName string `json:"middle_name,omitempty"`
	Role       string `json:"role"`
	Group      string `json:"group,omitempty"`
	Faculty    string `json:"faculty,omitempty"`
}

// userResponse — ответ /users/me и /auth/register.
type userResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	MiddleName string `json:"middle_name"`
	Role       string `json:"role"`
	Group      string `json:"group"`
	Faculty    string `json:"faculty"`
	IsActive   bool   `json:"is_active"`
}

func (u userResponse) toProfile() (*models.UserProfile, error) {
	const op = "session.userResponse.toProfile"

	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid user id: %w", op, err)
	}

	return &models.UserProfile{
		ID:         id,
		Email:      u.Email,
		Phone:      u.Phone,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		MiddleName: u.MiddleName,
		Role:       models.Role(u.Role),
		Group:      u.Group,
		Faculty:    u.Faculty,
		IsActive:   u.IsActive,
	}, nil
}

// errorDetail — накрывает обе формы поля detail в ошибках бэкенда:
// строку ("Email already registered") и массив ошибок валидации по полям
// ([{loc: ["body", "email"], msg: "..."}]).
type errorDetail struct {
	Message string
	Items   []validationItem
}

type validationItem struct {
	Loc []json.RawMessage `json:"loc"`
	Msg string            `json:"msg"`
}

func (d *errorDetail) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		d.Message = s
		return nil
	}

	return json.Unmarshal(data, &d.Items)
}

// parseValidationError превращает тело ошибки бэкенда в ValidationError
// с привязкой к полям. Возвращает nil, если тело не разобрать.
func parseValidationError(body []byte) *ValidationError {
	var payload struct {
		Detail errorDetail `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}

	fields := make(map[string]string)

	for _, item := range payload.Detail.Items {
		if item.Msg == "" {
			continue
		}
		fields[lastLocField(item.Loc)] = item.Msg
	}

	if msg := payload.Detail.Message; msg != "" {
		// Известные строковые ответы привязываем к конкретному полю.
		switch {
		case strings.Contains(strings.ToLower(msg), "email"):
			fields["email"] = strings.ToLower(strings.TrimPrefix(msg, "Email "))
		default:
			fields["detail"] = msg
		}
	}

	if len(fields) == 0 {
		return nil
	}

	return &ValidationError{Fields: fields}
}

// lastLocField достает имя поля из loc-пути FastAPI (["body", "email"]).
func lastLocField(loc []json.RawMessage) string {
	for i := len(loc) - 1; i >= 0; i-- {
		var s string
		if err := json.Unmarshal(loc[i], &s); err == nil && s != "body" && s != "query" {
			return s
		}
	}

	return "detail"
}
