package api

import (
	"context"
	"fmt"
	"time"
)

// Course — курс, как его отдаёт бэкенд.
type Course struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	NameRu          string    `json:"name_ru"`
	NameEn          string    `json:"name_en"`
	Description     string    `json:"description"`
	Credits         float64   `json:"credits"`
	MaxStudents     int       `json:"max_students"`
	Semester        string    `json:"semester"`
	AcademicYear    string    `json:"academic_year"`
	TeacherID       string    `json:"teacher_id"`
	TeacherName     string    `json:"teacher_name"`
	IsArchived      bool      `json:"is_archived"`
	StudentCount    int       `json:"student_count"`
	AssignmentCount int       `json:"assignment_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// Courses возвращает список курсов, доступных текущему пользователю.
func (c *Client) Courses(ctx context.Context) ([]Course, error) {
	var out []Course
	if err := c.get(ctx, "/courses", &out); err != nil {
		return nil, err
	}

	return out, nil
}

// CourseByID возвращает один курс.
func (c *Client) CourseByID(ctx context.Context, id string) (*Course, error) {
	var out Course
	if err := c.get(ctx, fmt.Sprintf("/courses/%s", id), &out); err != nil {
		return nil, err
	}

	return &out, nil
}
