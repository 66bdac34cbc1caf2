package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edutrack-api/internal/models"
)

const rosterColumns = `s.id, s.student_number, s.section_id, u.first_name, u.last_name, u.email,
sec.section_name, sec.grade_level AS section_grade_level, sec.school_year`

// StudentRepository reads student placement for the promotion workflow.
type StudentRepository struct {
	db   *sqlx.DB
	caps models.SchemaCapabilities
}

// NewStudentRepository constructs a StudentRepository for the detected schema.
func NewStudentRepository(db *sqlx.DB, caps models.SchemaCapabilities) *StudentRepository {
	return &StudentRepository{db: db, caps: caps}
}

// Roster lists students at gradeLevel ordered by last and first name.
// A blank schoolYear disables the year filter; otherwise students whose section
// belongs to that year (ignoring surrounding whitespace) or who have no section match.
func (r *StudentRepository) Roster(ctx context.Context, gradeLevel int, schoolYear string) ([]models.StudentRosterEntry, error) {
	var query strings.Builder
	args := []interface{}{gradeLevel}

	if r.caps.PromotionColumns {
		query.WriteString(`SELECT ` + rosterColumns + `, s.current_grade_level, s.promotion_status
FROM students s
JOIN users u ON u.id = s.user_id
LEFT JOIN sections sec ON sec.id = s.section_id
WHERE (s.current_grade_level = $1 OR sec.grade_level = $1)`)
	} else {
		query.WriteString(`SELECT ` + rosterColumns + `, NULL::int AS current_grade_level, 'Active' AS promotion_status
FROM students s
JOIN users u ON u.id = s.user_id
LEFT JOIN sections sec ON sec.id = s.section_id
WHERE sec.grade_level = $1`)
	}

	if year := strings.TrimSpace(schoolYear); year != "" {
		args = append(args, year)
		query.WriteString(fmt.Sprintf(" AND (TRIM(sec.school_year) = $%d OR s.section_id IS NULL)", len(args)))
	}
	query.WriteString(" ORDER BY u.last_name, u.first_name, s.id")

	var roster []models.StudentRosterEntry
	if err := r.db.SelectContext(ctx, &roster, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list promotion roster: %w", err)
	}
	return roster, nil
}

// FindPlacement returns the current section and promotion state of a student.
func (r *StudentRepository) FindPlacement(ctx context.Context, id string) (*models.StudentPlacement, error) {
	query := `SELECT id, student_number, section_id, current_grade_level, promotion_status, promotion_cycle_year FROM students WHERE id = $1`
	if !r.caps.PromotionColumns {
		query = `SELECT id, student_number, section_id, NULL::int AS current_grade_level, 'Active' AS promotion_status, NULL::text AS promotion_cycle_year FROM students WHERE id = $1`
	}

	var placement models.StudentPlacement
	if err := r.db.GetContext(ctx, &placement, query, id); err != nil {
		return nil, fmt.Errorf("find student placement: %w", err)
	}
	return &placement, nil
}
