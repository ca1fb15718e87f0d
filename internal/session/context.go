package session

import "github.com/Alixandros/edugrader-client/internal/models"

// CurrentUser возвращает профиль аутентифицированного пользователя.
// Второе значение false — аутентифицированного пользователя нет.
func (m *Manager) CurrentUser() (models.UserProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.profile == nil {
		return models.UserProfile{}, false
	}

	return *m.profile, true
}

// HasRole сообщает, входит ли роль текущего пользователя в перечисленные.
// Без аутентифицированного пользователя всегда false.
func (m *Manager) HasRole(roles ...models.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.profile == nil {
		return false
	}

	for _, role := range roles {
		if m.profile.Role == role {
			return true
		}
	}

	return false
}

// Status возвращает текущее состояние сессии (для UI-гейтинга:
// спиннер на Authenticating/Refreshing и т.п.).
func (m *Manager) Status() models.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}
