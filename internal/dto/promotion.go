package dto

import "github.com/noah-isme/edutrack-api/internal/models"

// PromotionReviewQuery defines query parameters for the review screen.
type PromotionReviewQuery struct {
	GradeLevel   int      `form:"grade" validate:"required,min=1"`
	FromYear     string   `form:"fromYear"`
	ToYear       string   `form:"toYear"`
	PassingGrade *float64 `form:"passingGrade" validate:"omitempty,gte=0,lte=100"`
}

// PromotionReviewResponse bundles the roster with its destination sections.
type PromotionReviewResponse struct {
	GradeLevel      int                          `json:"gradeLevel"`
	FromSchoolYear  string                       `json:"fromSchoolYear"`
	ToSchoolYear    string                       `json:"toSchoolYear"`
	PassingGrade    float64                      `json:"passingGrade"`
	Students        []models.StudentRosterEntry  `json:"students"`
	Targets         models.TargetSections        `json:"targets"`
	SuggestedCounts map[models.PromotionType]int `json:"suggestedCounts"`
	Blocking        string                       `json:"blocking,omitempty"`
}

// PromotionTargetsQuery defines query parameters for destination lookups.
type PromotionTargetsQuery struct {
	GradeLevel int    `form:"grade" validate:"required,min=1"`
	ToYear     string `form:"toYear" validate:"required"`
}

// EligibilityQuery overrides the passing grade for a single evaluation.
type EligibilityQuery struct {
	PassingGrade *float64 `form:"passingGrade" validate:"omitempty,gte=0,lte=100"`
}

// PromotionHistoryExportQuery selects the history rows and the output format.
type PromotionHistoryExportQuery struct {
	SchoolYear    string `form:"schoolYear"`
	PromotionType string `form:"type" validate:"omitempty,oneof=Promoted Retained Transferred Graduated Dropped"`
	Format        string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
