package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edutrack-api/internal/models"
	"github.com/noah-isme/edutrack-api/pkg/config"
)

type detectorStub struct {
	caps   models.SchemaCapabilities
	err    error
	called bool
}

func (d *detectorStub) Detect(ctx context.Context) (models.SchemaCapabilities, error) {
	d.called = true
	return d.caps, d.err
}

func TestResolveSchemaForcedModes(t *testing.T) {
	detector := &detectorStub{}

	caps, err := resolveSchema(context.Background(), config.SchemaModeFull, detector)
	require.NoError(t, err)
	assert.Equal(t, models.FullSchema, caps)

	caps, err = resolveSchema(context.Background(), config.SchemaModeLegacy, detector)
	require.NoError(t, err)
	assert.Equal(t, models.LegacySchema, caps)
	assert.False(t, detector.called)
}

func TestResolveSchemaAutoDetects(t *testing.T) {
	detector := &detectorStub{caps: models.SchemaCapabilities{PromotionTable: true}}

	caps, err := resolveSchema(context.Background(), config.SchemaModeAuto, detector)
	require.NoError(t, err)
	assert.True(t, detector.called)
	assert.True(t, caps.PromotionTable)
	assert.False(t, caps.PromotionColumns)
}

func TestResolveSchemaDetectFailure(t *testing.T) {
	_, err := resolveSchema(context.Background(), config.SchemaModeAuto, &detectorStub{err: errors.New("permission denied")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detect promotion schema")
}

type auditRecorder struct {
	entries []*models.AuditLog
}

func (r *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

func serveExport(t *testing.T, caps models.SchemaCapabilities, writer *auditRecorder) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	chain := auditedWhenInstalled(caps, writer, nil, func(c *gin.Context) { c.Status(http.StatusOK) })
	r := gin.New()
	r.GET("/promotions/history/export", chain...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/promotions/history/export", nil))
	return w.Code
}

func TestExportAuditedWithAuditTable(t *testing.T) {
	writer := &auditRecorder{}

	require.Equal(t, http.StatusOK, serveExport(t, models.FullSchema, writer))
	require.Len(t, writer.entries, 1)
	assert.Equal(t, models.AuditActionExport, writer.entries[0].Action)
	assert.Equal(t, "student_promotions", writer.entries[0].Resource)
}

func TestExportNotAuditedWithoutAuditTable(t *testing.T) {
	writer := &auditRecorder{}

	require.Equal(t, http.StatusOK, serveExport(t, models.SchemaCapabilities{PromotionTable: true}, writer))
	assert.Empty(t, writer.entries)
	assert.Len(t, auditedWhenInstalled(models.SchemaCapabilities{}, writer, nil, func(c *gin.Context) {}), 1)
}
