package models

// PromotionStatus is the last promotion action recorded on a student.
type PromotionStatus string

const (
	PromotionStatusActive      PromotionStatus = "Active"
	PromotionStatusPromoted    PromotionStatus = "Promoted"
	PromotionStatusRetained    PromotionStatus = "Retained"
	PromotionStatusTransferred PromotionStatus = "Transferred"
	PromotionStatusGraduated   PromotionStatus = "Graduated"
	PromotionStatusDropped     PromotionStatus = "Dropped"
)

// StudentPlacement is the part of a student row the promotion workflow reads and locks.
type StudentPlacement struct {
	ID                 string          `db:"id" json:"id"`
	StudentNumber      string          `db:"student_number" json:"student_number"`
	SectionID          *string         `db:"section_id" json:"section_id,omitempty"`
	CurrentGradeLevel  *int            `db:"current_grade_level" json:"current_grade_level,omitempty"`
	PromotionStatus    PromotionStatus `db:"promotion_status" json:"promotion_status"`
	PromotionCycleYear *string         `db:"promotion_cycle_year" json:"promotion_cycle_year,omitempty"`
}

// StudentRosterEntry is one row of the promotion review screen.
type StudentRosterEntry struct {
	ID                string              `db:"id" json:"id"`
	StudentNumber     string              `db:"student_number" json:"student_number"`
	FirstName         string              `db:"first_name" json:"first_name"`
	LastName          string              `db:"last_name" json:"last_name"`
	Email             string              `db:"email" json:"email"`
	SectionID         *string             `db:"section_id" json:"section_id,omitempty"`
	SectionName       *string             `db:"section_name" json:"section_name,omitempty"`
	SectionGrade      *int                `db:"section_grade_level" json:"section_grade_level,omitempty"`
	SchoolYear        *string             `db:"school_year" json:"school_year,omitempty"`
	CurrentGradeLevel *int                `db:"current_grade_level" json:"current_grade_level"`
	PromotionStatus   PromotionStatus     `db:"promotion_status" json:"promotion_status"`
	Eligibility       EligibilitySnapshot `db:"-" json:"eligibility"`
}
