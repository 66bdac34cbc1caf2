package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/edutrack-api/internal/models"
)

// PerformanceRepository reads the grade and attendance records eligibility is computed from.
type PerformanceRepository struct {
	db *sqlx.DB
}

// NewPerformanceRepository constructs a PerformanceRepository.
func NewPerformanceRepository(db *sqlx.DB) *PerformanceRepository {
	return &PerformanceRepository{db: db}
}

// Grades returns every recorded grade of a student.
func (r *PerformanceRepository) Grades(ctx context.Context, studentID string) ([]models.GradeEntry, error) {
	const query = `SELECT subject_id, grading_period, grade_value FROM grades WHERE student_id = $1 AND grade_value IS NOT NULL`

	var grades []models.GradeEntry
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// Attendance counts a student's present days against all recorded days.
func (r *PerformanceRepository) Attendance(ctx context.Context, studentID string) (models.AttendanceTally, error) {
	const query = `SELECT COUNT(*) FILTER (WHERE status = $2) AS present, COUNT(*) AS total FROM attendance WHERE student_id = $1`

	var tally models.AttendanceTally
	if err := r.db.GetContext(ctx, &tally, query, studentID, models.AttendancePresent); err != nil {
		return models.AttendanceTally{}, fmt.Errorf("count attendance: %w", err)
	}
	return tally, nil
}

// GradesFor loads the grades of many students in one round trip, keyed by student.
func (r *PerformanceRepository) GradesFor(ctx context.Context, studentIDs []string) (map[string][]models.GradeEntry, error) {
	result := make(map[string][]models.GradeEntry, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}

	const query = `SELECT student_id, subject_id, grading_period, grade_value FROM grades WHERE student_id = ANY($1) AND grade_value IS NOT NULL`

	var rows []struct {
		StudentID string `db:"student_id"`
		models.GradeEntry
	}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list grades for students: %w", err)
	}
	for _, row := range rows {
		result[row.StudentID] = append(result[row.StudentID], row.GradeEntry)
	}
	return result, nil
}

// AttendanceFor tallies attendance of many students in one round trip. Students
// without records are absent from the map.
func (r *PerformanceRepository) AttendanceFor(ctx context.Context, studentIDs []string) (map[string]models.AttendanceTally, error) {
	result := make(map[string]models.AttendanceTally, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}

	const query = `SELECT student_id, COUNT(*) FILTER (WHERE status = $2) AS present, COUNT(*) AS total
FROM attendance WHERE student_id = ANY($1) GROUP BY student_id`

	var rows []struct {
		StudentID string `db:"student_id"`
		models.AttendanceTally
	}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(studentIDs), models.AttendancePresent); err != nil {
		return nil, fmt.Errorf("count attendance for students: %w", err)
	}
	for _, row := range rows {
		result[row.StudentID] = row.AttendanceTally
	}
	return result, nil
}
