package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/edutrack-api/internal/middleware"
	"github.com/noah-isme/edutrack-api/internal/models"
	"github.com/noah-isme/edutrack-api/pkg/config"
	"github.com/noah-isme/edutrack-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edutrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edutrack-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, logr *zap.Logger, a *app) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	if a.metrics != nil {
		r.Use(middleware.Metrics(a.metrics))
	}
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", a.metricsH.Health)
	r.GET("/ready", a.metricsH.Ready)
	if a.metrics != nil {
		r.GET("/metrics", a.metricsH.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", a.authH.Login)

	admin := api.Group("")
	admin.Use(middleware.JWT(a.auth), middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))

	promotions := admin.Group("/promotions")
	promotions.GET("/review", a.promotionH.Review)
	promotions.GET("/targets", a.promotionH.Targets)
	promotions.GET("/school-years", a.promotionH.SchoolYears)
	promotions.POST("/batch", a.promotionH.Batch)
	promotions.GET("/history/export", auditedWhenInstalled(a.caps, a.users, logr, a.promotionH.ExportHistory)...)

	students := admin.Group("/students/:id")
	students.GET("/eligibility", a.promotionH.StudentEligibility)
	students.GET("/promotions", a.promotionH.StudentHistory)

	return r
}

// auditedWhenInstalled prefixes h with the audit middleware when the audit table exists.
func auditedWhenInstalled(caps models.SchemaCapabilities, writer middleware.AuditWriter, logr *zap.Logger, h gin.HandlerFunc) []gin.HandlerFunc {
	if !caps.AuditTable {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{middleware.Audit(writer, logr, models.AuditActionExport, "student_promotions"), h}
}
