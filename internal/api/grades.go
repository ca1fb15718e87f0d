package api

import (
	"context"
	"fmt"
	"time"
)

// Grade — оценка по сданной работе.
type Grade struct {
	ID              string             `json:"id"`
	SubmissionID    string             `json:"submission_id"`
	AssignmentID    string             `json:"assignment_id"`
	StudentID       string             `json:"student_id"`
	GraderID        string             `json:"grader_id"`
	Score           float64            `json:"score"`
	MaxScore        float64            `json:"max_score"`
	CriteriaScores  map[string]float64 `json:"criteria_scores"`
	Comments        string             `json:"comments"`
	GradedAt        time.Time          `json:"graded_at"`
	AssignmentTitle string             `json:"assignment_title"`
	GraderName      string             `json:"grader_name"`
}

// StudentGrades возвращает оценки студента по курсу.
func (c *Client) StudentGrades(ctx context.Context, studentID, courseID string) ([]Grade, error) {
	path := fmt.Sprintf("/grades/student/%s/course/%s", studentID, courseID)

	var out []Grade
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}

	return out, nil
}
