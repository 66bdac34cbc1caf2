package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edutrack-api/internal/dto"
	"github.com/noah-isme/edutrack-api/internal/models"
	"github.com/noah-isme/edutrack-api/pkg/export"
)

var historyHeaders = []string{
	"Student Number", "Student", "Type", "From Grade", "To Grade", "From Section", "To Section",
	"From School Year", "To School Year", "Reason", "Promoted By", "Date",
}

type historyReader interface {
	History(ctx context.Context, filter models.PromotionHistoryFilter) ([]models.PromotionRecord, error)
}

type datasetWriter interface {
	Write(w io.Writer, data export.Dataset, title string) error
	ContentType() string
	Extension() string
}

// HistoryExport is a rendered-on-demand promotion history document.
type HistoryExport struct {
	Filename    string
	ContentType string
	Rows        int

	writer  datasetWriter
	dataset export.Dataset
	title   string
}

// WriteTo streams the document to w.
func (e *HistoryExport) WriteTo(w io.Writer) error {
	return e.writer.Write(w, e.dataset, e.title)
}

// ExportService turns promotion history into CSV or PDF downloads.
type ExportService struct {
	history historyReader
	csv     datasetWriter
	pdf     datasetWriter
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportService constructs an ExportService. Nil writers use the default exporters.
func NewExportService(history historyReader, csv, pdf datasetWriter, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{history: history, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// PromotionHistory loads the matching records and prepares the document.
func (s *ExportService) PromotionHistory(ctx context.Context, query dto.PromotionHistoryExportQuery) (*HistoryExport, error) {
	records, err := s.history.History(ctx, models.PromotionHistoryFilter{
		ToSchoolYear:  query.SchoolYear,
		PromotionType: models.PromotionType(query.PromotionType),
	})
	if err != nil {
		return nil, err
	}

	writer := s.csv
	if strings.EqualFold(query.Format, "pdf") {
		writer = s.pdf
	}

	title := "Promotion History"
	slug := "all"
	if year := strings.TrimSpace(query.SchoolYear); year != "" {
		title = fmt.Sprintf("Promotion History %s", year)
		slug = year
	}

	s.logger.Info("promotion history export prepared", zap.Int("rows", len(records)), zap.String("format", writer.Extension()))
	return &HistoryExport{
		Filename:    fmt.Sprintf("promotions_%s_%s.%s", slug, s.now().UTC().Format("20060102"), writer.Extension()),
		ContentType: writer.ContentType(),
		Rows:        len(records),
		writer:      writer,
		dataset:     historyDataset(records),
		title:       title,
	}, nil
}

func historyDataset(records []models.PromotionRecord) export.Dataset {
	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]string{
			"Student Number":   r.StudentNumber,
			"Student":          r.StudentName,
			"Type":             string(r.PromotionType),
			"From Grade":       strconv.Itoa(r.FromGradeLevel),
			"To Grade":         optionalInt(r.ToGradeLevel),
			"From Section":     optionalString(r.FromSectionName),
			"To Section":       optionalString(r.ToSectionName),
			"From School Year": r.FromSchoolYear,
			"To School Year":   r.ToSchoolYear,
			"Reason":           optionalString(r.Reason),
			"Promoted By":      r.PromotedByName,
			"Date":             r.PromotionDate.Format("2006-01-02"),
		})
	}
	return export.Dataset{Headers: historyHeaders, Rows: rows}
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
