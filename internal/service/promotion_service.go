package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/edutrack-api/internal/models"
	appErrors "github.com/noah-isme/edutrack-api/pkg/errors"
)

const (
	defaultMaxReportedErrors = 20

	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

type promotionRepository interface {
	Apply(ctx context.Context, params models.PromotionParams) error
	History(ctx context.Context, filter models.PromotionHistoryFilter) ([]models.PromotionRecord, error)
}

type reviewInvalidator interface {
	InvalidateReviews(ctx context.Context)
}

// PromotionConfig tunes batch processing.
type PromotionConfig struct {
	MaxReportedErrors int
}

// PromotionService applies promotion decisions one student at a time.
type PromotionService struct {
	repo      promotionRepository
	students  placementReader
	targets   targetResolver
	reviews   reviewInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PromotionConfig
	now       func() time.Time
}

// NewPromotionService constructs a PromotionService. reviews and metrics may be nil.
func NewPromotionService(repo promotionRepository, students placementReader, targets targetResolver, reviews reviewInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg PromotionConfig) *PromotionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxReportedErrors <= 0 {
		cfg.MaxReportedErrors = defaultMaxReportedErrors
	}
	return &PromotionService{
		repo:      repo,
		students:  students,
		targets:   targets,
		reviews:   reviews,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ApplyPromotion runs the promotion transaction for one student. A nil error
// means every step committed; otherwise nothing was written.
func (s *PromotionService) ApplyPromotion(ctx context.Context, params models.PromotionParams) error {
	if strings.TrimSpace(params.StudentID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if !params.PromotionType.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidPromotion, fmt.Sprintf("unknown promotion type %q", params.PromotionType))
	}
	if strings.TrimSpace(params.ToSectionID) == "" {
		return appErrors.Clone(appErrors.ErrInvalidPromotion, "target section is required")
	}
	if params.PromotionDate.IsZero() {
		params.PromotionDate = s.now().UTC()
	}

	if err := s.repo.Apply(ctx, params); err != nil {
		return mapPromotionError(err)
	}

	s.metrics.RecordPromotion(params.PromotionType)
	return nil
}

func mapPromotionError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "student not found")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation:
			return appErrors.Wrap(err, appErrors.ErrInvalidPromotion.Code, appErrors.ErrInvalidPromotion.Status, "referenced section or user does not exist")
		case pqCheckViolation:
			return appErrors.Wrap(err, appErrors.ErrInvalidPromotion.Code, appErrors.ErrInvalidPromotion.Status, "promotion violates a table constraint")
		}
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply promotion")
}

// ProcessBatch applies each decision in its own transaction. Destination sections
// are resolved first and a missing configuration fails the whole batch before any
// student is touched. Decisions without a target section are skipped before
// validation. An invalid or failing decision is counted and reported without
// affecting the others.
func (s *PromotionService) ProcessBatch(ctx context.Context, req models.BatchRequest, actingUserID string) (*models.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion batch")
	}

	start := s.now()
	targets, err := s.targets.ResolveTargetSections(ctx, req.FromGradeLevel, req.ToSchoolYear)
	if err != nil {
		return nil, err
	}

	result := &models.BatchResult{Errors: []string{}}
	for _, decision := range req.Students {
		if strings.TrimSpace(decision.ToSectionID) == "" {
			continue
		}

		if err := s.processDecision(ctx, req, decision, targets, actingUserID); err != nil {
			result.ErrorCount++
			if len(result.Errors) < s.cfg.MaxReportedErrors {
				result.Errors = append(result.Errors, fmt.Sprintf("Failed to process student %s: %s", decision.StudentID, appErrors.FromError(err).Message))
			}
			s.metrics.RecordPromotionFailure(appErrors.FromError(err).Code)
			s.logger.Warn("promotion decision failed",
				zap.String("student_id", decision.StudentID),
				zap.String("promotion_type", string(decision.PromotionType)),
				zap.Error(err),
			)
			continue
		}
		result.ProcessedCount++
	}

	if result.ProcessedCount > 0 && s.reviews != nil {
		s.reviews.InvalidateReviews(ctx)
	}

	elapsed := s.now().Sub(start)
	s.metrics.ObservePromotionBatch(len(req.Students), elapsed)
	s.logger.Info("promotion batch processed",
		zap.String("acting_user_id", actingUserID),
		zap.Int("grade_level", req.FromGradeLevel),
		zap.String("from_school_year", req.FromSchoolYear),
		zap.String("to_school_year", req.ToSchoolYear),
		zap.Int("processed", result.ProcessedCount),
		zap.Int("errors", result.ErrorCount),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (s *PromotionService) processDecision(ctx context.Context, req models.BatchRequest, decision models.StudentDecision, targets models.TargetSections, actingUserID string) error {
	if err := s.validator.Struct(decision); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion decision")
	}

	switch decision.PromotionType {
	case models.PromotionTypePromoted, models.PromotionTypeRetained:
		if !targets.Contains(decision.PromotionType, decision.ToSectionID) {
			return appErrors.Clone(appErrors.ErrInvalidPromotion,
				fmt.Sprintf("section %s is not a destination for %s students", decision.ToSectionID, decision.PromotionType))
		}
	}

	placement, err := s.students.FindPlacement(ctx, decision.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	return s.ApplyPromotion(ctx, models.PromotionParams{
		StudentID:      decision.StudentID,
		PromotionType:  decision.PromotionType,
		FromGradeLevel: req.FromGradeLevel,
		ToGradeLevel:   targetGradeLevel(decision, req.FromGradeLevel),
		FromSectionID:  placement.SectionID,
		ToSectionID:    decision.ToSectionID,
		FromSchoolYear: strings.TrimSpace(req.FromSchoolYear),
		ToSchoolYear:   strings.TrimSpace(req.ToSchoolYear),
		ActingUserID:   actingUserID,
		Reason:         decision.Reason,
		Notes:          decision.Notes,
		PromotionDate:  s.now().UTC(),
	})
}

// targetGradeLevel fills a missing target grade: promoted students move up one grade,
// retained students stay. Other types keep whatever the operator sent.
func targetGradeLevel(decision models.StudentDecision, fromGradeLevel int) *int {
	if decision.ToGradeLevel != nil {
		return decision.ToGradeLevel
	}
	var level int
	switch decision.PromotionType {
	case models.PromotionTypePromoted:
		level = fromGradeLevel + 1
	case models.PromotionTypeRetained:
		level = fromGradeLevel
	default:
		return nil
	}
	return &level
}

// History lists promotion records matching filter.
func (s *PromotionService) History(ctx context.Context, filter models.PromotionHistoryFilter) ([]models.PromotionRecord, error) {
	records, err := s.repo.History(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotion history")
	}
	if records == nil {
		records = []models.PromotionRecord{}
	}
	return records, nil
}

// StudentHistory lists the promotion records of one existing student.
func (s *PromotionService) StudentHistory(ctx context.Context, studentID string) ([]models.PromotionRecord, error) {
	if _, err := s.students.FindPlacement(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return s.History(ctx, models.PromotionHistoryFilter{StudentID: studentID})
}
