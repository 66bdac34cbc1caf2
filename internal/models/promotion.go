package models

import "time"

// PromotionType is the action applied to a student at the end of a school year.
type PromotionType string

const (
	PromotionTypePromoted    PromotionType = "Promoted"
	PromotionTypeRetained    PromotionType = "Retained"
	PromotionTypeTransferred PromotionType = "Transferred"
	PromotionTypeGraduated   PromotionType = "Graduated"
	PromotionTypeDropped     PromotionType = "Dropped"
)

// Valid reports whether t is a known promotion type.
func (t PromotionType) Valid() bool {
	switch t {
	case PromotionTypePromoted, PromotionTypeRetained, PromotionTypeTransferred,
		PromotionTypeGraduated, PromotionTypeDropped:
		return true
	}
	return false
}

// PromotionParams carries every input of a single promotion transaction.
type PromotionParams struct {
	StudentID      string        `db:"student_id"`
	PromotionType  PromotionType `db:"promotion_type"`
	FromGradeLevel int           `db:"from_grade_level"`
	ToGradeLevel   *int          `db:"to_grade_level"`
	FromSectionID  *string       `db:"from_section_id"`
	ToSectionID    string        `db:"to_section_id"`
	FromSchoolYear string        `db:"from_school_year"`
	ToSchoolYear   string        `db:"to_school_year"`
	ActingUserID   string        `db:"promoted_by"`
	Reason         *string       `db:"reason"`
	Notes          *string       `db:"notes"`
	PromotionDate  time.Time     `db:"promotion_date"`
}

// ResultingGradeLevel is the grade the student holds after the transaction.
// Retained students keep their grade, and a missing target grade also keeps it.
func (p PromotionParams) ResultingGradeLevel() int {
	if p.PromotionType == PromotionTypeRetained || p.ToGradeLevel == nil {
		return p.FromGradeLevel
	}
	return *p.ToGradeLevel
}

// PromotionRecord is an immutable row of student_promotions.
type PromotionRecord struct {
	ID              string        `db:"id" json:"id"`
	StudentID       string        `db:"student_id" json:"student_id"`
	StudentNumber   string        `db:"student_number" json:"student_number,omitempty"`
	StudentName     string        `db:"student_name" json:"student_name,omitempty"`
	PromotionType   PromotionType `db:"promotion_type" json:"promotion_type"`
	FromGradeLevel  int           `db:"from_grade_level" json:"from_grade_level"`
	ToGradeLevel    *int          `db:"to_grade_level" json:"to_grade_level,omitempty"`
	FromSectionID   *string       `db:"from_section_id" json:"from_section_id,omitempty"`
	FromSectionName *string       `db:"from_section_name" json:"from_section_name,omitempty"`
	ToSectionID     *string       `db:"to_section_id" json:"to_section_id,omitempty"`
	ToSectionName   *string       `db:"to_section_name" json:"to_section_name,omitempty"`
	FromSchoolYear  string        `db:"from_school_year" json:"from_school_year"`
	ToSchoolYear    string        `db:"to_school_year" json:"to_school_year"`
	Reason          *string       `db:"reason" json:"reason,omitempty"`
	Notes           *string       `db:"notes" json:"notes,omitempty"`
	PromotedBy      string        `db:"promoted_by" json:"promoted_by"`
	PromotedByName  string        `db:"promoted_by_name" json:"promoted_by_name,omitempty"`
	PromotionDate   time.Time     `db:"promotion_date" json:"promotion_date"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

// PromotionHistoryFilter narrows history listings and exports.
type PromotionHistoryFilter struct {
	StudentID     string
	ToSchoolYear  string
	PromotionType PromotionType
}

// StudentDecision is the operator's choice for one student in a batch.
type StudentDecision struct {
	StudentID     string        `json:"studentId" validate:"required"`
	PromotionType PromotionType `json:"promotionType" validate:"required,oneof=Promoted Retained Transferred Graduated Dropped"`
	ToGradeLevel  *int          `json:"toGradeLevel,omitempty" validate:"omitempty,min=1"`
	ToSectionID   string        `json:"toSectionId"`
	Reason        *string       `json:"reason,omitempty"`
	Notes         *string       `json:"notes,omitempty"`
}

// BatchRequest is a set of decisions for students moving between school years.
type BatchRequest struct {
	FromSchoolYear string            `json:"fromSchoolYear" validate:"required"`
	ToSchoolYear   string            `json:"toSchoolYear" validate:"required"`
	FromGradeLevel int               `json:"fromGradeLevel" validate:"required,min=1"`
	Students       []StudentDecision `json:"students" validate:"required,min=1"`
}

// BatchResult summarises a processed batch.
type BatchResult struct {
	ProcessedCount int      `json:"processedCount"`
	ErrorCount     int      `json:"errorCount"`
	Errors         []string `json:"errors"`
}
