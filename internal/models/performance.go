package models

// Grading periods of a school year.
const (
	GradingPeriodQ1 = "Q1"
	GradingPeriodQ2 = "Q2"
	GradingPeriodQ3 = "Q3"
	GradingPeriodQ4 = "Q4"
)

// Attendance statuses recorded per day.
const (
	AttendancePresent = "Present"
	AttendanceAbsent  = "Absent"
	AttendanceTardy   = "Tardy"
)

// GradeEntry is a single recorded grade value.
type GradeEntry struct {
	SubjectID     string  `db:"subject_id" json:"subject_id"`
	GradingPeriod string  `db:"grading_period" json:"grading_period"`
	Value         float64 `db:"grade_value" json:"grade_value"`
}

// AttendanceTally counts a student's attendance records.
type AttendanceTally struct {
	Present int `db:"present" json:"present"`
	Total   int `db:"total" json:"total"`
}

// EligibilityPolicy holds the thresholds an evaluation is checked against.
type EligibilityPolicy struct {
	PassingGrade      float64 `json:"passing_grade"`
	MinAttendanceRate float64 `json:"min_attendance_rate"`
	RequiredPeriods   int     `json:"required_periods"`
}

// EligibilitySnapshot is the derived promotion readiness of one student.
type EligibilitySnapshot struct {
	OverallAverage     float64       `json:"overall_average"`
	AttendanceRate     float64       `json:"attendance_rate"`
	GradedPeriods      int           `json:"graded_periods"`
	AllPeriodsGraded   bool          `json:"all_periods_graded"`
	Eligible           bool          `json:"eligible"`
	Suggestion         PromotionType `json:"suggestion"`
	PassingGrade       float64       `json:"passing_grade"`
	MinAttendanceRate  float64       `json:"min_attendance_rate"`
	SubjectsWithGrades int           `json:"subjects_with_grades"`
}
