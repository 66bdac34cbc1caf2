package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edutrack-api/internal/dto"
	"github.com/noah-isme/edutrack-api/internal/models"
	appErrors "github.com/noah-isme/edutrack-api/pkg/errors"
)

const reviewCachePrefix = "promotions:review:"

type rosterRepository interface {
	Roster(ctx context.Context, gradeLevel int, schoolYear string) ([]models.StudentRosterEntry, error)
}

type eligibilityEvaluator interface {
	PassingGrade(override *float64) float64
	EvaluateMany(ctx context.Context, studentIDs []string, passingGrade float64) (map[string]models.EligibilitySnapshot, error)
}

type targetResolver interface {
	ResolveTargetSections(ctx context.Context, gradeLevel int, schoolYear string) (models.TargetSections, error)
}

type reviewCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string)
}

// RosterService builds the promotion review screen.
type RosterService struct {
	students    rosterRepository
	eligibility eligibilityEvaluator
	targets     targetResolver
	cache       reviewCache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewRosterService constructs a RosterService. cache may be nil.
func NewRosterService(students rosterRepository, eligibility eligibilityEvaluator, targets targetResolver, cache reviewCache, cacheTTL time.Duration, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{students: students, eligibility: eligibility, targets: targets, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// RosterForPromotion lists students at gradeLevel in schoolYear, each with an eligibility snapshot.
func (s *RosterService) RosterForPromotion(ctx context.Context, gradeLevel int, schoolYear string, passingGrade float64) ([]models.StudentRosterEntry, error) {
	if gradeLevel < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade level must be positive")
	}

	roster, err := s.students.Roster(ctx, gradeLevel, schoolYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	if len(roster) == 0 {
		return []models.StudentRosterEntry{}, nil
	}

	ids := make([]string, len(roster))
	for i, entry := range roster {
		ids[i] = entry.ID
	}
	snapshots, err := s.eligibility.EvaluateMany(ctx, ids, passingGrade)
	if err != nil {
		return nil, err
	}
	for i := range roster {
		roster[i].Eligibility = snapshots[roster[i].ID]
	}
	return roster, nil
}

// Review assembles the roster, destination sections and suggestion counts.
// A missing destination configuration is reported in Blocking rather than as an error
// so operators still see the roster.
func (s *RosterService) Review(ctx context.Context, query dto.PromotionReviewQuery) (*dto.PromotionReviewResponse, error) {
	passing := s.eligibility.PassingGrade(query.PassingGrade)
	fromYear := strings.TrimSpace(query.FromYear)
	toYear := strings.TrimSpace(query.ToYear)

	key := reviewCacheKey(query.GradeLevel, fromYear, toYear, passing)
	var cached dto.PromotionReviewResponse
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	roster, err := s.RosterForPromotion(ctx, query.GradeLevel, fromYear, passing)
	if err != nil {
		return nil, err
	}

	resp := &dto.PromotionReviewResponse{
		GradeLevel:      query.GradeLevel,
		FromSchoolYear:  fromYear,
		ToSchoolYear:    toYear,
		PassingGrade:    passing,
		Students:        roster,
		Targets:         models.TargetSections{Promoted: []models.Section{}, Retained: []models.Section{}},
		SuggestedCounts: map[models.PromotionType]int{models.PromotionTypePromoted: 0, models.PromotionTypeRetained: 0},
	}
	for _, entry := range roster {
		resp.SuggestedCounts[entry.Eligibility.Suggestion]++
	}

	if toYear != "" {
		targets, err := s.targets.ResolveTargetSections(ctx, query.GradeLevel, toYear)
		switch {
		case err == nil:
			resp.Targets = targets
		case errors.Is(err, appErrors.ErrNoDestinationSections):
			resp.Blocking = appErrors.FromError(err).Message
		default:
			return nil, err
		}
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, resp, s.cacheTTL)
	}
	return resp, nil
}

// InvalidateReviews drops every cached review payload.
func (s *RosterService) InvalidateReviews(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, reviewCachePrefix+"*")
}

func reviewCacheKey(gradeLevel int, fromYear, toYear string, passing float64) string {
	return fmt.Sprintf("%sg%d:%s:%s:%.2f", reviewCachePrefix, gradeLevel, fromYear, toYear, passing)
}
