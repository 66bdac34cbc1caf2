package models

import "time"

// Section is a class group bound to one grade level and school year.
type Section struct {
	ID          string    `db:"id" json:"id"`
	SectionName string    `db:"section_name" json:"section_name"`
	GradeLevel  int       `db:"grade_level" json:"grade_level"`
	SchoolYear  string    `db:"school_year" json:"school_year"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TargetSections lists the sections that can receive students of one grade.
type TargetSections struct {
	Promoted []Section `json:"promoted"`
	Retained []Section `json:"retained"`
}

// Empty reports whether neither list has a section.
func (t TargetSections) Empty() bool {
	return len(t.Promoted) == 0 && len(t.Retained) == 0
}

// Contains reports whether sectionID is a valid destination for the given type.
func (t TargetSections) Contains(promotionType PromotionType, sectionID string) bool {
	var pool []Section
	switch promotionType {
	case PromotionTypePromoted:
		pool = t.Promoted
	case PromotionTypeRetained:
		pool = t.Retained
	default:
		pool = append(append(pool, t.Promoted...), t.Retained...)
	}
	for _, s := range pool {
		if s.ID == sectionID {
			return true
		}
	}
	return false
}
