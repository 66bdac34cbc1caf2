package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edutrack-api/internal/dto"
	"github.com/noah-isme/edutrack-api/internal/models"
	"github.com/noah-isme/edutrack-api/internal/service"
	appErrors "github.com/noah-isme/edutrack-api/pkg/errors"
	"github.com/noah-isme/edutrack-api/pkg/response"
)

type promotionReviewer interface {
	Review(ctx context.Context, query dto.PromotionReviewQuery) (*dto.PromotionReviewResponse, error)
}

type promotionTargets interface {
	ResolveTargetSections(ctx context.Context, gradeLevel int, schoolYear string) (models.TargetSections, error)
	SchoolYears(ctx context.Context) ([]string, error)
}

type promotionProcessor interface {
	ProcessBatch(ctx context.Context, req models.BatchRequest, actingUserID string) (*models.BatchResult, error)
	StudentHistory(ctx context.Context, studentID string) ([]models.PromotionRecord, error)
}

type eligibilityChecker interface {
	PassingGrade(override *float64) float64
	EvaluateStudent(ctx context.Context, studentID string, passingGrade float64) (models.EligibilitySnapshot, error)
}

type historyExporter interface {
	PromotionHistory(ctx context.Context, query dto.PromotionHistoryExportQuery) (*service.HistoryExport, error)
}

// PromotionHandler exposes the end-of-year promotion workflow.
type PromotionHandler struct {
	reviews     promotionReviewer
	targets     promotionTargets
	promotions  promotionProcessor
	eligibility eligibilityChecker
	exports     historyExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPromotionHandler builds a new handler.
func NewPromotionHandler(reviews promotionReviewer, targets promotionTargets, promotions promotionProcessor, eligibility eligibilityChecker, exports historyExporter, validate *validator.Validate, logger *zap.Logger) *PromotionHandler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionHandler{
		reviews:     reviews,
		targets:     targets,
		promotions:  promotions,
		eligibility: eligibility,
		exports:     exports,
		validator:   validate,
		logger:      logger,
	}
}

// Review godoc
// @Summary Review students for promotion
// @Description Roster of a grade level with eligibility snapshots, destination sections and suggestion counts
// @Tags Promotions
// @Produce json
// @Param grade query int true "Grade level"
// @Param fromYear query string false "Current school year"
// @Param toYear query string false "Destination school year"
// @Param passingGrade query number false "Passing grade override"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /promotions/review [get]
func (h *PromotionHandler) Review(c *gin.Context) {
	var query dto.PromotionReviewQuery
	if err := bindQuery(c, h.validator, &query); err != nil {
		response.Error(c, err)
		return
	}

	resp, err := h.reviews.Review(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Targets godoc
// @Summary List destination sections
// @Tags Promotions
// @Produce json
// @Param grade query int true "Grade level being promoted"
// @Param toYear query string true "Destination school year"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /promotions/targets [get]
func (h *PromotionHandler) Targets(c *gin.Context) {
	var query dto.PromotionTargetsQuery
	if err := bindQuery(c, h.validator, &query); err != nil {
		response.Error(c, err)
		return
	}

	targets, err := h.targets.ResolveTargetSections(c.Request.Context(), query.GradeLevel, query.ToYear)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, targets, nil)
}

// SchoolYears godoc
// @Summary List school years that have sections
// @Tags Promotions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /promotions/school-years [get]
func (h *PromotionHandler) SchoolYears(c *gin.Context) {
	years, err := h.targets.SchoolYears(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, nil)
}

// Batch godoc
// @Summary Apply promotion decisions
// @Description Each student is promoted in its own transaction; failures are counted and do not stop the batch
// @Tags Promotions
// @Accept json
// @Produce json
// @Param payload body models.BatchRequest true "Promotion decisions"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /promotions/batch [post]
func (h *PromotionHandler) Batch(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid promotion payload"))
		return
	}

	result, err := h.promotions.ProcessBatch(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	meta := map[string]interface{}{"message": batchMessage(result)}
	response.JSON(c, http.StatusOK, result, nil, meta)
}

func batchMessage(result *models.BatchResult) string {
	msg := fmt.Sprintf("Successfully processed %s.", plural(result.ProcessedCount, "student"))
	if result.ErrorCount > 0 {
		msg += fmt.Sprintf(" %s occurred.", plural(result.ErrorCount, "error"))
	}
	return msg
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// StudentEligibility godoc
// @Summary Evaluate one student's promotion eligibility
// @Tags Promotions
// @Produce json
// @Param id path string true "Student ID"
// @Param passingGrade query number false "Passing grade override"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/eligibility [get]
func (h *PromotionHandler) StudentEligibility(c *gin.Context) {
	var query dto.EligibilityQuery
	if err := bindQuery(c, h.validator, &query); err != nil {
		response.Error(c, err)
		return
	}

	snapshot, err := h.eligibility.EvaluateStudent(c.Request.Context(), c.Param("id"), h.eligibility.PassingGrade(query.PassingGrade))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// StudentHistory godoc
// @Summary Promotion history of a student
// @Tags Promotions
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/promotions [get]
func (h *PromotionHandler) StudentHistory(c *gin.Context) {
	records, err := h.promotions.StudentHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// ExportHistory godoc
// @Summary Download promotion history
// @Tags Promotions
// @Produce text/csv
// @Produce application/pdf
// @Param schoolYear query string false "Destination school year"
// @Param type query string false "Promotion type"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /promotions/history/export [get]
func (h *PromotionHandler) ExportHistory(c *gin.Context) {
	var query dto.PromotionHistoryExportQuery
	if err := bindQuery(c, h.validator, &query); err != nil {
		response.Error(c, err)
		return
	}

	doc, err := h.exports.PromotionHistory(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Attachment(c, doc.Filename, doc.ContentType)
	if err := doc.WriteTo(c.Writer); err != nil {
		h.logger.Error("promotion history export failed", zap.String("file", doc.Filename), zap.Error(err))
		_ = c.Error(err)
	}
}
