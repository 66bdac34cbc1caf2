package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edutrack-api/internal/models"
)

// PromotionRepository applies promotion decisions and reads their history.
type PromotionRepository struct {
	db   *sqlx.DB
	caps models.SchemaCapabilities
	now  func() time.Time
}

// NewPromotionRepository constructs a PromotionRepository for the detected schema.
func NewPromotionRepository(db *sqlx.DB, caps models.SchemaCapabilities) *PromotionRepository {
	return &PromotionRepository{db: db, caps: caps, now: time.Now}
}

type promotionRow struct {
	ID string `db:"id"`
	models.PromotionParams
	CreatedAt time.Time `db:"created_at"`
}

// Apply moves one student in a single transaction: the student row is locked,
// its placement updated, a history row appended and an audit entry written.
// The origin section is taken from the locked row, not from params.
// Parts of the schema that are not installed are skipped. Any failure rolls
// back every step.
func (r *PromotionRepository) Apply(ctx context.Context, params models.PromotionParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin promotion tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var before models.StudentPlacement
	lockQuery := `SELECT id, student_number, section_id, current_grade_level, promotion_status, promotion_cycle_year FROM students WHERE id = $1 FOR UPDATE`
	if !r.caps.PromotionColumns {
		lockQuery = `SELECT id, student_number, section_id FROM students WHERE id = $1 FOR UPDATE`
	}
	if err = tx.GetContext(ctx, &before, lockQuery, params.StudentID); err != nil {
		return fmt.Errorf("lock student: %w", err)
	}
	params.FromSectionID = before.SectionID

	now := r.now().UTC()
	gradeLevel := params.ResultingGradeLevel()
	if r.caps.PromotionColumns {
		const updateQuery = `UPDATE students SET section_id = $1, promotion_status = $2, current_grade_level = $3, promotion_cycle_year = $4, updated_at = $5 WHERE id = $6`
		_, err = tx.ExecContext(ctx, updateQuery, params.ToSectionID, string(params.PromotionType), gradeLevel, strings.TrimSpace(params.ToSchoolYear), now, params.StudentID)
	} else {
		const updateQuery = `UPDATE students SET section_id = $1, updated_at = $2 WHERE id = $3`
		_, err = tx.ExecContext(ctx, updateQuery, params.ToSectionID, now, params.StudentID)
	}
	if err != nil {
		return fmt.Errorf("update student placement: %w", err)
	}

	if r.caps.PromotionTable {
		row := promotionRow{ID: uuid.NewString(), PromotionParams: params, CreatedAt: now}
		if row.PromotionDate.IsZero() {
			row.PromotionDate = now
		}
		const insertQuery = `INSERT INTO student_promotions (id, student_id, promotion_type, from_grade_level, to_grade_level, from_section_id, to_section_id, from_school_year, to_school_year, reason, notes, promoted_by, promotion_date, created_at)
VALUES (:id, :student_id, :promotion_type, :from_grade_level, :to_grade_level, :from_section_id, :to_section_id, :from_school_year, :to_school_year, :reason, :notes, :promoted_by, :promotion_date, :created_at)`
		if _, err = tx.NamedExecContext(ctx, insertQuery, row); err != nil {
			return fmt.Errorf("insert promotion history: %w", err)
		}
	}

	if r.caps.AuditTable {
		var entry *models.AuditLog
		if entry, err = promotionAudit(params, before, gradeLevel, now); err != nil {
			return err
		}
		const auditQuery = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
		if _, err = tx.NamedExecContext(ctx, auditQuery, entry); err != nil {
			return fmt.Errorf("insert promotion audit: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit promotion: %w", err)
	}
	return nil
}

// PromotionDescription renders the human readable line stored with the audit entry.
func PromotionDescription(params models.PromotionParams) string {
	target := "same grade"
	if params.ToGradeLevel != nil {
		target = fmt.Sprintf("Grade %d", *params.ToGradeLevel)
	}
	return fmt.Sprintf("Student promotion: %s from Grade %d to %s", params.PromotionType, params.FromGradeLevel, target)
}

func promotionAudit(params models.PromotionParams, before models.StudentPlacement, gradeLevel int, now time.Time) (*models.AuditLog, error) {
	oldValues, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("marshal promotion audit: %w", err)
	}
	newValues, err := json.Marshal(map[string]interface{}{
		"description":         PromotionDescription(params),
		"promotion_type":      params.PromotionType,
		"section_id":          params.ToSectionID,
		"current_grade_level": gradeLevel,
		"from_school_year":    params.FromSchoolYear,
		"to_school_year":      params.ToSchoolYear,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal promotion audit: %w", err)
	}

	var userID *string
	if params.ActingUserID != "" {
		id := params.ActingUserID
		userID = &id
	}
	studentID := params.StudentID
	return &models.AuditLog{
		ID:         uuid.NewString(),
		UserID:     userID,
		Action:     models.AuditActionPromotion,
		Resource:   "student",
		ResourceID: &studentID,
		OldValues:  oldValues,
		NewValues:  newValues,
		CreatedAt:  now,
	}, nil
}

// History lists promotion records newest first.
func (r *PromotionRepository) History(ctx context.Context, filter models.PromotionHistoryFilter) ([]models.PromotionRecord, error) {
	if !r.caps.PromotionTable {
		return []models.PromotionRecord{}, nil
	}

	conditions := []string{"1=1"}
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("sp.student_id = $%d", len(args)))
	}
	if year := strings.TrimSpace(filter.ToSchoolYear); year != "" {
		args = append(args, year)
		conditions = append(conditions, fmt.Sprintf("TRIM(sp.to_school_year) = $%d", len(args)))
	}
	if filter.PromotionType != "" {
		args = append(args, string(filter.PromotionType))
		conditions = append(conditions, fmt.Sprintf("sp.promotion_type = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT sp.id, sp.student_id, s.student_number, CONCAT_WS(', ', su.last_name, su.first_name) AS student_name,
sp.promotion_type, sp.from_grade_level, sp.to_grade_level, sp.from_section_id, fs.section_name AS from_section_name,
sp.to_section_id, ts.section_name AS to_section_name, sp.from_school_year, sp.to_school_year, sp.reason, sp.notes,
sp.promoted_by, COALESCE(CONCAT_WS(' ', pu.first_name, pu.last_name), '') AS promoted_by_name, sp.promotion_date, sp.created_at
FROM student_promotions sp
JOIN students s ON s.id = sp.student_id
JOIN users su ON su.id = s.user_id
LEFT JOIN sections fs ON fs.id = sp.from_section_id
LEFT JOIN sections ts ON ts.id = sp.to_section_id
LEFT JOIN users pu ON pu.id = sp.promoted_by
WHERE %s
ORDER BY sp.promotion_date DESC, sp.created_at DESC`, strings.Join(conditions, " AND "))

	var records []models.PromotionRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list promotion history: %w", err)
	}
	return records, nil
}
