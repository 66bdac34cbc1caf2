package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edutrack-api/internal/models"
	appErrors "github.com/noah-isme/edutrack-api/pkg/errors"
)

type stubPromotionRepo struct {
	applied []models.PromotionParams
	failFor map[string]error
	history []models.PromotionRecord
}

func (s *stubPromotionRepo) Apply(ctx context.Context, params models.PromotionParams) error {
	if err, ok := s.failFor[params.StudentID]; ok {
		return err
	}
	s.applied = append(s.applied, params)
	return nil
}

func (s *stubPromotionRepo) History(ctx context.Context, filter models.PromotionHistoryFilter) ([]models.PromotionRecord, error) {
	var out []models.PromotionRecord
	for _, r := range s.history {
		if filter.StudentID == "" || r.StudentID == filter.StudentID {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubInvalidator struct{ calls int }

func (s *stubInvalidator) InvalidateReviews(ctx context.Context) { s.calls++ }

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

type promotionFixture struct {
	svc         *PromotionService
	repo        *stubPromotionRepo
	targets     *stubTargetResolver
	invalidator *stubInvalidator
	metrics     *MetricsService
}

func newPromotionFixture() promotionFixture {
	repo := &stubPromotionRepo{failFor: map[string]error{}}
	students := &stubPlacementReader{placements: map[string]*models.StudentPlacement{
		"s1": {ID: "s1", SectionID: strPtr("sec-3a")},
		"s2": {ID: "s2", SectionID: strPtr("sec-3a")},
		"s3": {ID: "s3"},
	}}
	targets := &stubTargetResolver{targets: models.TargetSections{
		Promoted: []models.Section{section("sec-4a", 4, "2025-2026")},
		Retained: []models.Section{section("sec-3b", 3, "2025-2026")},
	}}
	invalidator := &stubInvalidator{}
	metrics := NewMetricsService()
	svc := NewPromotionService(repo, students, targets, invalidator, metrics, nil, nil, PromotionConfig{MaxReportedErrors: 2})
	svc.now = func() time.Time { return time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC) }
	return promotionFixture{svc: svc, repo: repo, targets: targets, invalidator: invalidator, metrics: metrics}
}

func batch(decisions ...models.StudentDecision) models.BatchRequest {
	return models.BatchRequest{FromSchoolYear: "2024-2025", ToSchoolYear: "2025-2026", FromGradeLevel: 3, Students: decisions}
}

func promote(id string) models.StudentDecision {
	return models.StudentDecision{StudentID: id, PromotionType: models.PromotionTypePromoted, ToSectionID: "sec-4a"}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	f := newPromotionFixture()
	f.repo.failFor["s2"] = errors.New("deadlock detected")

	result, err := f.svc.ProcessBatch(context.Background(), batch(promote("s1"), promote("s2"), promote("s3")), "admin-1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "s2")
	require.Len(t, f.repo.applied, 2)
	assert.Equal(t, "s1", f.repo.applied[0].StudentID)
	assert.Equal(t, "s3", f.repo.applied[1].StudentID)
	assert.Equal(t, 1, f.invalidator.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.promotions.WithLabelValues("Promoted")))
}

func TestProcessBatchFillsPlacementAndDerivedGrade(t *testing.T) {
	f := newPromotionFixture()
	decision := promote("s1")
	decision.Reason = strPtr("met all requirements")

	_, err := f.svc.ProcessBatch(context.Background(), batch(decision), "admin-1")
	require.NoError(t, err)

	require.Len(t, f.repo.applied, 1)
	applied := f.repo.applied[0]
	assert.Equal(t, "sec-3a", *applied.FromSectionID)
	assert.Equal(t, 4, *applied.ToGradeLevel)
	assert.Equal(t, 4, applied.ResultingGradeLevel())
	assert.Equal(t, "admin-1", applied.ActingUserID)
	assert.Equal(t, "2025-2026", applied.ToSchoolYear)
	assert.Equal(t, "met all requirements", *applied.Reason)
	assert.False(t, applied.PromotionDate.IsZero())
}

func TestProcessBatchRetainedKeepsGrade(t *testing.T) {
	f := newPromotionFixture()
	decision := models.StudentDecision{StudentID: "s1", PromotionType: models.PromotionTypeRetained, ToSectionID: "sec-3b", ToGradeLevel: intPtr(4)}

	result, err := f.svc.ProcessBatch(context.Background(), batch(decision), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 3, f.repo.applied[0].ResultingGradeLevel())
}

func TestProcessBatchSkipsDecisionsWithoutSection(t *testing.T) {
	f := newPromotionFixture()
	skipped := models.StudentDecision{StudentID: "s2", PromotionType: models.PromotionTypePromoted}

	result, err := f.svc.ProcessBatch(context.Background(), batch(promote("s1"), skipped), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Zero(t, result.ErrorCount)
	assert.Len(t, f.repo.applied, 1)
}

func TestProcessBatchBlockedByConfigurationGap(t *testing.T) {
	f := newPromotionFixture()
	f.targets.err = appErrors.Clone(appErrors.ErrNoDestinationSections, "no sections")

	result, err := f.svc.ProcessBatch(context.Background(), batch(promote("s1")), "admin-1")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, appErrors.ErrNoDestinationSections))
	assert.Empty(t, f.repo.applied)
	assert.Zero(t, f.invalidator.calls)
}

func TestProcessBatchRejectsSectionOutsideTargets(t *testing.T) {
	f := newPromotionFixture()
	wrongGrade := models.StudentDecision{StudentID: "s1", PromotionType: models.PromotionTypePromoted, ToSectionID: "sec-3b"}
	transferred := models.StudentDecision{StudentID: "s2", PromotionType: models.PromotionTypeTransferred, ToSectionID: "sec-elsewhere"}

	result, err := f.svc.ProcessBatch(context.Background(), batch(wrongGrade, transferred), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Contains(t, result.Errors[0], "not a destination")
	assert.Equal(t, "s2", f.repo.applied[0].StudentID)
	assert.Nil(t, f.repo.applied[0].ToGradeLevel)
}

func TestProcessBatchCapsReportedErrors(t *testing.T) {
	f := newPromotionFixture()
	for _, id := range []string{"s1", "s2", "s3"} {
		f.repo.failFor[id] = errors.New("boom")
	}

	result, err := f.svc.ProcessBatch(context.Background(), batch(promote("s1"), promote("s2"), promote("s3")), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.ErrorCount)
	assert.Len(t, result.Errors, 2)
	assert.Zero(t, f.invalidator.calls)
}

func TestProcessBatchUnknownStudent(t *testing.T) {
	f := newPromotionFixture()

	result, err := f.svc.ProcessBatch(context.Background(), batch(promote("ghost")), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Contains(t, result.Errors[0], "student not found")
}

func TestProcessBatchValidation(t *testing.T) {
	f := newPromotionFixture()

	_, err := f.svc.ProcessBatch(context.Background(), models.BatchRequest{}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	noSchoolYear := batch(promote("s1"))
	noSchoolYear.ToSchoolYear = ""
	_, err = f.svc.ProcessBatch(context.Background(), noSchoolYear, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.repo.applied)
}

func TestProcessBatchSkipsUnselectedRowsBeforeValidation(t *testing.T) {
	f := newPromotionFixture()
	unselected := models.StudentDecision{StudentID: "s2"}

	result, err := f.svc.ProcessBatch(context.Background(), batch(promote("s1"), unselected), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Zero(t, result.ErrorCount)
	assert.Empty(t, result.Errors)
	require.Len(t, f.repo.applied, 1)
	assert.Equal(t, "s1", f.repo.applied[0].StudentID)
}

func TestProcessBatchCountsInvalidDecisionAndContinues(t *testing.T) {
	f := newPromotionFixture()
	misspelled := models.StudentDecision{StudentID: "s2", PromotionType: "Promotd", ToSectionID: "sec-4a"}

	result, err := f.svc.ProcessBatch(context.Background(), batch(promote("s1"), misspelled, promote("s3")), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Failed to process student s2: invalid promotion decision")
	require.Len(t, f.repo.applied, 2)
	assert.Equal(t, "s1", f.repo.applied[0].StudentID)
	assert.Equal(t, "s3", f.repo.applied[1].StudentID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.promotionErrors.WithLabelValues(appErrors.ErrValidation.Code)))
}

func TestApplyPromotionMapsErrors(t *testing.T) {
	f := newPromotionFixture()
	f.repo.failFor["fk"] = fmt.Errorf("update student placement: %w", &pq.Error{Code: "23503"})
	f.repo.failFor["other"] = errors.New("connection reset")

	err := f.svc.ApplyPromotion(context.Background(), models.PromotionParams{StudentID: "fk", PromotionType: models.PromotionTypePromoted, ToSectionID: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidPromotion))

	err = f.svc.ApplyPromotion(context.Background(), models.PromotionParams{StudentID: "other", PromotionType: models.PromotionTypePromoted, ToSectionID: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	err = f.svc.ApplyPromotion(context.Background(), models.PromotionParams{StudentID: "s1", PromotionType: "Expelled", ToSectionID: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidPromotion))

	err = f.svc.ApplyPromotion(context.Background(), models.PromotionParams{StudentID: "s1", PromotionType: models.PromotionTypePromoted})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidPromotion))
	assert.Empty(t, f.repo.applied)
}

func TestStudentHistory(t *testing.T) {
	f := newPromotionFixture()
	f.repo.history = []models.PromotionRecord{{ID: "h1", StudentID: "s1"}, {ID: "h2", StudentID: "s2"}}

	records, err := f.svc.StudentHistory(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "h1", records[0].ID)

	records, err = f.svc.StudentHistory(context.Background(), "s3")
	require.NoError(t, err)
	assert.NotNil(t, records)

	_, err = f.svc.StudentHistory(context.Background(), "ghost")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
