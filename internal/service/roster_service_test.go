package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edutrack-api/internal/dto"
	"github.com/noah-isme/edutrack-api/internal/models"
	appErrors "github.com/noah-isme/edutrack-api/pkg/errors"
)

type stubRosterRepo struct {
	entries []models.StudentRosterEntry
	calls   int
	year    string
}

func (s *stubRosterRepo) Roster(ctx context.Context, gradeLevel int, schoolYear string) ([]models.StudentRosterEntry, error) {
	s.calls++
	s.year = schoolYear
	out := make([]models.StudentRosterEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

type stubTargetResolver struct {
	targets models.TargetSections
	err     error
	calls   int
}

func (s *stubTargetResolver) ResolveTargetSections(ctx context.Context, gradeLevel int, schoolYear string) (models.TargetSections, error) {
	s.calls++
	return s.targets, s.err
}

type memoryCache struct {
	items       map[string]interface{}
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string]interface{}{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) bool {
	v, ok := m.items[key]
	if !ok {
		return false
	}
	*dest.(*dto.PromotionReviewResponse) = *v.(*dto.PromotionReviewResponse)
	return true
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	m.items[key] = value
}

func (m *memoryCache) Invalidate(ctx context.Context, pattern string) {
	m.invalidated = append(m.invalidated, pattern)
	m.items = map[string]interface{}{}
}

func newRosterFixture() (*RosterService, *stubRosterRepo, *stubTargetResolver, *memoryCache) {
	roster := &stubRosterRepo{entries: []models.StudentRosterEntry{
		{ID: "s1", FirstName: "Ana", LastName: "Reyes"},
		{ID: "s2", FirstName: "Juan", LastName: "Santos"},
	}}
	perf := &stubPerformanceRepo{
		grades:     map[string][]models.GradeEntry{"s1": allQuarters("math", 88), "s2": allQuarters("math", 60)},
		attendance: map[string]models.AttendanceTally{"s1": {Present: 19, Total: 20}, "s2": {Present: 19, Total: 20}},
	}
	eligibility := NewEligibilityService(perf, &stubPlacementReader{}, defaultPolicy, nil)
	targets := &stubTargetResolver{targets: models.TargetSections{
		Promoted: []models.Section{section("sec-4a", 4, "2025-2026")},
		Retained: []models.Section{section("sec-3a", 3, "2025-2026")},
	}}
	cache := newMemoryCache()
	return NewRosterService(roster, eligibility, targets, cache, time.Minute, nil), roster, targets, cache
}

func TestRosterForPromotionAttachesSnapshots(t *testing.T) {
	svc, _, _, _ := newRosterFixture()

	roster, err := svc.RosterForPromotion(context.Background(), 3, "2024-2025", 75)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, models.PromotionTypePromoted, roster[0].Eligibility.Suggestion)
	assert.Equal(t, models.PromotionTypeRetained, roster[1].Eligibility.Suggestion)
}

func TestRosterForPromotionEmpty(t *testing.T) {
	svc := NewRosterService(&stubRosterRepo{}, nil, nil, nil, 0, nil)

	roster, err := svc.RosterForPromotion(context.Background(), 3, "", 75)
	require.NoError(t, err)
	assert.NotNil(t, roster)
	assert.Empty(t, roster)
}

func TestReviewCountsSuggestionsAndCaches(t *testing.T) {
	svc, roster, targets, cache := newRosterFixture()
	query := dto.PromotionReviewQuery{GradeLevel: 3, FromYear: " 2024-2025", ToYear: "2025-2026 "}

	resp, err := svc.Review(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SuggestedCounts[models.PromotionTypePromoted])
	assert.Equal(t, 1, resp.SuggestedCounts[models.PromotionTypeRetained])
	assert.Len(t, resp.Targets.Promoted, 1)
	assert.Equal(t, "2024-2025", roster.year)
	assert.Empty(t, resp.Blocking)

	_, err = svc.Review(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 1, roster.calls)
	assert.Equal(t, 1, targets.calls)

	svc.InvalidateReviews(context.Background())
	assert.Equal(t, []string{"promotions:review:*"}, cache.invalidated)

	_, err = svc.Review(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 2, roster.calls)
}

func TestReviewReportsConfigurationGap(t *testing.T) {
	svc, _, targets, _ := newRosterFixture()
	targets.err = appErrors.Clone(appErrors.ErrNoDestinationSections, "no sections found for Grade 3 in school year 2030-2031")

	resp, err := svc.Review(context.Background(), dto.PromotionReviewQuery{GradeLevel: 3, ToYear: "2030-2031"})
	require.NoError(t, err)
	assert.Equal(t, "no sections found for Grade 3 in school year 2030-2031", resp.Blocking)
	assert.Len(t, resp.Students, 2)
}
