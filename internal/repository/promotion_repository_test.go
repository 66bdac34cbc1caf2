package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edutrack-api/internal/models"
)

var fixedNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func newPromotionRepo(t *testing.T, caps models.SchemaCapabilities) (*PromotionRepository, sqlmock.Sqlmock, func()) {
	db, mock, cleanup := newMock(t)
	repo := NewPromotionRepository(db, caps)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock, cleanup
}

func promotedParams() models.PromotionParams {
	from := "sec-3a"
	return models.PromotionParams{
		StudentID:      "s1",
		PromotionType:  models.PromotionTypePromoted,
		FromGradeLevel: 3,
		ToGradeLevel:   intPtr(4),
		FromSectionID:  &from,
		ToSectionID:    "sec-4a",
		FromSchoolYear: "2024-2025",
		ToSchoolYear:   "2025-2026",
		ActingUserID:   "admin-1",
		PromotionDate:  fixedNow,
	}
}

func expectLock(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_number", "section_id", "current_grade_level", "promotion_status", "promotion_cycle_year"}).
			AddRow("s1", "100000000001", "sec-3a", 3, "Active", nil))
}

func TestApplyCommitsAllSteps(t *testing.T) {
	repo, mock, cleanup := newPromotionRepo(t, models.FullSchema)
	defer cleanup()

	mock.ExpectBegin()
	expectLock(mock)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET section_id = $1, promotion_status = $2, current_grade_level = $3, promotion_cycle_year = $4")).
		WithArgs("sec-4a", "Promoted", 4, "2025-2026", fixedNow, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO student_promotions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), promotedParams()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRollsBackWhenAuditFails(t *testing.T) {
	repo, mock, cleanup := newPromotionRepo(t, models.FullSchema)
	defer cleanup()

	mock.ExpectBegin()
	expectLock(mock)
	mock.ExpectExec("UPDATE students").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO student_promotions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Apply(context.Background(), promotedParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert promotion audit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRetainedKeepsFromGrade(t *testing.T) {
	repo, mock, cleanup := newPromotionRepo(t, models.FullSchema)
	defer cleanup()

	params := promotedParams()
	params.PromotionType = models.PromotionTypeRetained
	params.ToGradeLevel = intPtr(4)
	params.ToSectionID = "sec-3b"

	mock.ExpectBegin()
	expectLock(mock)
	mock.ExpectExec("UPDATE students").
		WithArgs("sec-3b", "Retained", 3, "2025-2026", fixedNow, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO student_promotions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), params))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyLegacySchemaUpdatesSectionOnly(t *testing.T) {
	repo, mock, cleanup := newPromotionRepo(t, models.LegacySchema)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_number, section_id FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_number", "section_id"}).AddRow("s1", "100000000001", "sec-3a"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET section_id = $1, updated_at = $2 WHERE id = $3")).
		WithArgs("sec-4a", fixedNow, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), promotedParams()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMissingStudentRollsBack(t *testing.T) {
	repo, mock, cleanup := newPromotionRepo(t, models.FullSchema)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("s1").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.Apply(context.Background(), promotedParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock student")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionDescription(t *testing.T) {
	params := promotedParams()
	assert.Equal(t, "Student promotion: Promoted from Grade 3 to Grade 4", PromotionDescription(params))

	params.PromotionType = models.PromotionTypeRetained
	params.ToGradeLevel = intPtr(3)
	assert.Equal(t, "Student promotion: Retained from Grade 3 to Grade 3", PromotionDescription(params))

	params.PromotionType = models.PromotionTypeTransferred
	params.ToGradeLevel = nil
	assert.Equal(t, "Student promotion: Transferred from Grade 3 to same grade", PromotionDescription(params))
}

func TestApplyRecordsLockedSectionAsOrigin(t *testing.T) {
	repo, mock, cleanup := newPromotionRepo(t, models.FullSchema)
	defer cleanup()

	params := promotedParams()
	moved := "sec-3c"
	params.FromSectionID = &moved

	mock.ExpectBegin()
	expectLock(mock)
	mock.ExpectExec("UPDATE students").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO student_promotions").
		WithArgs(sqlmock.AnyArg(), "s1", "Promoted", 3, 4, "sec-3a", "sec-4a", "2024-2025", "2025-2026",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "admin-1", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), params))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionAuditPayload(t *testing.T) {
	before := models.StudentPlacement{ID: "s1", PromotionStatus: models.PromotionStatusActive}
	entry, err := promotionAudit(promotedParams(), before, 4, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, models.AuditActionPromotion, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "admin-1", *entry.UserID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.NewValues, &payload))
	assert.Equal(t, "Student promotion: Promoted from Grade 3 to Grade 4", payload["description"])
	assert.Equal(t, float64(4), payload["current_grade_level"])
}

func TestHistoryFilters(t *testing.T) {
	repo, mock, cleanup := newPromotionRepo(t, models.FullSchema)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "student_id", "student_number", "student_name", "promotion_type", "from_grade_level", "to_grade_level",
		"from_section_id", "from_section_name", "to_section_id", "to_section_name", "from_school_year", "to_school_year", "reason", "notes",
		"promoted_by", "promoted_by_name", "promotion_date", "created_at"}).
		AddRow("h1", "s1", "100000000001", "Reyes, Ana", "Promoted", 3, 4, "sec-3a", "Sampaguita", "sec-4a", "Narra",
			"2024-2025", "2025-2026", nil, nil, "admin-1", "Maria Santos", fixedNow, fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND sp.student_id = $1 AND TRIM(sp.to_school_year) = $2")).
		WithArgs("s1", "2025-2026").
		WillReturnRows(rows)

	records, err := repo.History(context.Background(), models.PromotionHistoryFilter{StudentID: "s1", ToSchoolYear: " 2025-2026"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Narra", *records[0].ToSectionName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryWithoutTable(t *testing.T) {
	repo, mock, cleanup := newPromotionRepo(t, models.LegacySchema)
	defer cleanup()

	records, err := repo.History(context.Background(), models.PromotionHistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
