package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edutrack-api/internal/models"
)

// SectionRepository reads class sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs a SectionRepository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// ListByGradeAndYear returns the sections of a grade level in a school year.
// Stored years are compared trimmed so padded legacy values still match.
func (r *SectionRepository) ListByGradeAndYear(ctx context.Context, gradeLevel int, schoolYear string) ([]models.Section, error) {
	const query = `SELECT id, section_name, grade_level, school_year, created_at, updated_at
FROM sections
WHERE grade_level = $1 AND TRIM(school_year) = $2
ORDER BY section_name`

	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, gradeLevel, strings.TrimSpace(schoolYear)); err != nil {
		return nil, fmt.Errorf("list sections by grade and year: %w", err)
	}
	return sections, nil
}

// DistinctSchoolYears lists every school year that has a section, newest first.
func (r *SectionRepository) DistinctSchoolYears(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT TRIM(school_year) AS school_year FROM sections WHERE TRIM(school_year) <> '' ORDER BY school_year DESC`

	var years []string
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list school years: %w", err)
	}
	return years, nil
}
