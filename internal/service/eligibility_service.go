package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/edutrack-api/internal/models"
	appErrors "github.com/noah-isme/edutrack-api/pkg/errors"
)

const (
	defaultPassingGrade      = 75.0
	defaultMinAttendanceRate = 75.0
	defaultRequiredPeriods   = 4
)

type performanceRepository interface {
	Grades(ctx context.Context, studentID string) ([]models.GradeEntry, error)
	Attendance(ctx context.Context, studentID string) (models.AttendanceTally, error)
	GradesFor(ctx context.Context, studentIDs []string) (map[string][]models.GradeEntry, error)
	AttendanceFor(ctx context.Context, studentIDs []string) (map[string]models.AttendanceTally, error)
}

type placementReader interface {
	FindPlacement(ctx context.Context, id string) (*models.StudentPlacement, error)
}

// ComputeEligibility derives a snapshot from raw grade and attendance data.
// The overall average is the mean of per-subject means, so a subject with many
// recorded grades weighs the same as a subject with one.
func ComputeEligibility(grades []models.GradeEntry, tally models.AttendanceTally, policy models.EligibilityPolicy) models.EligibilitySnapshot {
	policy = normalizePolicy(policy)

	type subjectTotal struct {
		sum   float64
		count int
	}
	subjects := make(map[string]*subjectTotal)
	var order []string
	periods := make(map[string]struct{})
	for _, g := range grades {
		total, ok := subjects[g.SubjectID]
		if !ok {
			total = &subjectTotal{}
			subjects[g.SubjectID] = total
			order = append(order, g.SubjectID)
		}
		total.sum += g.Value
		total.count++
		periods[g.GradingPeriod] = struct{}{}
	}

	var overall float64
	if len(subjects) > 0 {
		sort.Strings(order)
		var sumOfMeans float64
		for _, id := range order {
			sumOfMeans += subjects[id].sum / float64(subjects[id].count)
		}
		overall = round2(sumOfMeans / float64(len(subjects)))
	}

	var attendance float64
	if tally.Total > 0 {
		attendance = round2(float64(tally.Present) / float64(tally.Total) * 100)
	}

	allPeriods := len(periods) >= policy.RequiredPeriods
	eligible := overall >= policy.PassingGrade && attendance >= policy.MinAttendanceRate && allPeriods

	suggestion := models.PromotionTypeRetained
	if eligible {
		suggestion = models.PromotionTypePromoted
	}

	return models.EligibilitySnapshot{
		OverallAverage:     overall,
		AttendanceRate:     attendance,
		GradedPeriods:      len(periods),
		AllPeriodsGraded:   allPeriods,
		Eligible:           eligible,
		Suggestion:         suggestion,
		PassingGrade:       policy.PassingGrade,
		MinAttendanceRate:  policy.MinAttendanceRate,
		SubjectsWithGrades: len(subjects),
	}
}

func normalizePolicy(policy models.EligibilityPolicy) models.EligibilityPolicy {
	if policy.RequiredPeriods <= 0 {
		policy.RequiredPeriods = defaultRequiredPeriods
	}
	return policy
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// EligibilityService reads performance records and evaluates promotion readiness.
type EligibilityService struct {
	repo     performanceRepository
	students placementReader
	policy   models.EligibilityPolicy
	logger   *zap.Logger
}

// NewEligibilityService constructs an EligibilityService. Zero thresholds fall back to 75.
func NewEligibilityService(repo performanceRepository, students placementReader, policy models.EligibilityPolicy, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.PassingGrade <= 0 {
		policy.PassingGrade = defaultPassingGrade
	}
	if policy.MinAttendanceRate <= 0 {
		policy.MinAttendanceRate = defaultMinAttendanceRate
	}
	return &EligibilityService{repo: repo, students: students, policy: normalizePolicy(policy), logger: logger}
}

// PassingGrade resolves an optional per-request override against the configured default.
func (s *EligibilityService) PassingGrade(override *float64) float64 {
	if override != nil {
		return *override
	}
	return s.policy.PassingGrade
}

func (s *EligibilityService) policyFor(passingGrade float64) models.EligibilityPolicy {
	policy := s.policy
	policy.PassingGrade = passingGrade
	return policy
}

// EvaluateEligibility computes the snapshot of one student. It has no side effects.
func (s *EligibilityService) EvaluateEligibility(ctx context.Context, studentID string, passingGrade float64) (models.EligibilitySnapshot, error) {
	grades, err := s.repo.Grades(ctx, studentID)
	if err != nil {
		return models.EligibilitySnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	tally, err := s.repo.Attendance(ctx, studentID)
	if err != nil {
		return models.EligibilitySnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return ComputeEligibility(grades, tally, s.policyFor(passingGrade)), nil
}

// EvaluateStudent is EvaluateEligibility for a student that must exist.
func (s *EligibilityService) EvaluateStudent(ctx context.Context, studentID string, passingGrade float64) (models.EligibilitySnapshot, error) {
	if _, err := s.students.FindPlacement(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EligibilitySnapshot{}, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return models.EligibilitySnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return s.EvaluateEligibility(ctx, studentID, passingGrade)
}

// EvaluateMany computes snapshots for a set of students with two queries in total.
func (s *EligibilityService) EvaluateMany(ctx context.Context, studentIDs []string, passingGrade float64) (map[string]models.EligibilitySnapshot, error) {
	grades, err := s.repo.GradesFor(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	tallies, err := s.repo.AttendanceFor(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	policy := s.policyFor(passingGrade)
	snapshots := make(map[string]models.EligibilitySnapshot, len(studentIDs))
	for _, id := range studentIDs {
		snapshots[id] = ComputeEligibility(grades[id], tallies[id], policy)
	}
	return snapshots, nil
}
