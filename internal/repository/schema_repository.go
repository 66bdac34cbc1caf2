package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edutrack-api/internal/models"
)

// SchemaRepository inspects which optional tables and columns are installed.
type SchemaRepository struct {
	db *sqlx.DB
}

// NewSchemaRepository constructs a SchemaRepository.
func NewSchemaRepository(db *sqlx.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

// Detect probes information_schema for the promotion columns, the history table and the audit table.
func (r *SchemaRepository) Detect(ctx context.Context) (models.SchemaCapabilities, error) {
	const query = `SELECT
(SELECT COUNT(*) FROM information_schema.columns
  WHERE table_schema = current_schema() AND table_name = 'students'
  AND column_name IN ('promotion_status', 'current_grade_level', 'promotion_cycle_year')) = 3 AS promotion_columns,
EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'student_promotions') AS promotion_table,
EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'audit_logs') AS audit_table`

	var caps models.SchemaCapabilities
	if err := r.db.GetContext(ctx, &caps, query); err != nil {
		return models.SchemaCapabilities{}, fmt.Errorf("detect schema capabilities: %w", err)
	}
	return caps, nil
}
