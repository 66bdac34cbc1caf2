package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edutrack-api/internal/dto"
	"github.com/noah-isme/edutrack-api/internal/models"
)

type stubHistoryReader struct {
	records []models.PromotionRecord
	filter  models.PromotionHistoryFilter
}

func (s *stubHistoryReader) History(ctx context.Context, filter models.PromotionHistoryFilter) ([]models.PromotionRecord, error) {
	s.filter = filter
	return s.records, nil
}

func TestExportPromotionHistoryCSV(t *testing.T) {
	reader := &stubHistoryReader{records: []models.PromotionRecord{{
		StudentNumber:  "100000000001",
		StudentName:    "Reyes, Ana",
		PromotionType:  models.PromotionTypePromoted,
		FromGradeLevel: 3,
		ToGradeLevel:   intPtr(4),
		ToSectionName:  strPtr("Narra"),
		FromSchoolYear: "2024-2025",
		ToSchoolYear:   "2025-2026",
		PromotedByName: "Maria Santos",
		PromotionDate:  time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}}}
	svc := NewExportService(reader, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC) }

	doc, err := svc.PromotionHistory(context.Background(), dto.PromotionHistoryExportQuery{SchoolYear: "2025-2026", PromotionType: "Promoted"})
	require.NoError(t, err)
	assert.Equal(t, "promotions_2025-2026_20250603.csv", doc.Filename)
	assert.Equal(t, models.PromotionTypePromoted, reader.filter.PromotionType)
	assert.Equal(t, 1, doc.Rows)

	buf := &bytes.Buffer{}
	require.NoError(t, doc.WriteTo(buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Student Number,Student,Type"))
	assert.Contains(t, lines[1], `"Reyes, Ana",Promoted,3,4,,Narra`)
	assert.Contains(t, lines[1], "2025-06-02")
}

func TestExportPromotionHistoryPDF(t *testing.T) {
	svc := NewExportService(&stubHistoryReader{}, nil, nil, nil)

	doc, err := svc.PromotionHistory(context.Background(), dto.PromotionHistoryExportQuery{Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.True(t, strings.HasPrefix(doc.Filename, "promotions_all_"))

	buf := &bytes.Buffer{}
	require.NoError(t, doc.WriteTo(buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}
