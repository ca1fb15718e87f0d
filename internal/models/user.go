// models содержит доменные сущности клиента edugrader.
// Эти типы используются слоями сессии, хранилища токенов и типизированного API.
package models

import (
	"strings"

	"github.com/google/uuid"
)

// Role — роль пользователя в системе. Значения совпадают с ролями бэкенда.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid сообщает, известна ли роль клиенту.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// UserProfile — каноничный профиль пользователя, получаемый из /users/me.
// Неизменяем в течение жизни сессии; перечитывается только при новом логине.
type UserProfile struct {
	ID         uuid.UUID
	Email      string
	Phone      string
	FirstName  string
	LastName   string
	MiddleName string
	Role       Role
	Group      string
	Faculty    string
	IsActive   bool
}

// FullName собирает ФИО в порядке "Фамилия Имя Отчество",
// пропуская отсутствующие части.
func (p UserProfile) FullName() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.LastName, p.FirstName, p.MiddleName} {
		if s != "" {
			parts = append(parts, s)
		}
	}

	return strings.Join(parts, " ")
}
