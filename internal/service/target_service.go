package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/edutrack-api/internal/models"
	appErrors "github.com/noah-isme/edutrack-api/pkg/errors"
)

const defaultMaxGradeLevel = 6

type sectionRepository interface {
	ListByGradeAndYear(ctx context.Context, gradeLevel int, schoolYear string) ([]models.Section, error)
	DistinctSchoolYears(ctx context.Context) ([]string, error)
}

// TargetService resolves the sections that can receive students after a promotion run.
type TargetService struct {
	repo          sectionRepository
	maxGradeLevel int
	logger        *zap.Logger
}

// NewTargetService constructs a TargetService. maxGradeLevel is the highest grade
// with a next grade to promote into, exclusive.
func NewTargetService(repo sectionRepository, maxGradeLevel int, logger *zap.Logger) *TargetService {
	if maxGradeLevel <= 0 {
		maxGradeLevel = defaultMaxGradeLevel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TargetService{repo: repo, maxGradeLevel: maxGradeLevel, logger: logger}
}

// ResolveTargetSections lists next-grade sections for promoted students and
// same-grade sections for retained ones in the destination school year. Having
// neither is a configuration gap reported as ErrNoDestinationSections.
func (s *TargetService) ResolveTargetSections(ctx context.Context, gradeLevel int, schoolYear string) (models.TargetSections, error) {
	year := strings.TrimSpace(schoolYear)
	if gradeLevel < 1 || gradeLevel > s.maxGradeLevel {
		return models.TargetSections{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade level must be between 1 and %d", s.maxGradeLevel))
	}
	if year == "" {
		return models.TargetSections{}, appErrors.Clone(appErrors.ErrValidation, "destination school year is required")
	}

	targets := models.TargetSections{Promoted: []models.Section{}, Retained: []models.Section{}}

	if gradeLevel < s.maxGradeLevel {
		promoted, err := s.repo.ListByGradeAndYear(ctx, gradeLevel+1, year)
		if err != nil {
			return models.TargetSections{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotion sections")
		}
		if promoted != nil {
			targets.Promoted = promoted
		}
	}

	retained, err := s.repo.ListByGradeAndYear(ctx, gradeLevel, year)
	if err != nil {
		return models.TargetSections{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load retention sections")
	}
	if retained != nil {
		targets.Retained = retained
	}

	if targets.Empty() {
		s.logger.Warn("no destination sections", zap.Int("grade_level", gradeLevel), zap.String("school_year", year))
		return targets, appErrors.Clone(appErrors.ErrNoDestinationSections,
			fmt.Sprintf("no sections found for Grade %d in school year %s; create sections for the new school year first", gradeLevel, year))
	}
	return targets, nil
}

// SchoolYears lists the school years that have sections.
func (s *TargetService) SchoolYears(ctx context.Context) ([]string, error) {
	years, err := s.repo.DistinctSchoolYears(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school years")
	}
	if years == nil {
		years = []string{}
	}
	return years, nil
}
