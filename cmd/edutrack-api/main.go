package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/edutrack-api/api/swagger"
	"github.com/noah-isme/edutrack-api/internal/handler"
	"github.com/noah-isme/edutrack-api/internal/models"
	"github.com/noah-isme/edutrack-api/internal/repository"
	"github.com/noah-isme/edutrack-api/internal/service"
	"github.com/noah-isme/edutrack-api/pkg/cache"
	"github.com/noah-isme/edutrack-api/pkg/config"
	"github.com/noah-isme/edutrack-api/pkg/database"
	"github.com/noah-isme/edutrack-api/pkg/logger"
)

// @title EduTrack API
// @version 1.0.0
// @description End-of-year student promotion for elementary schools
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, review cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	caps, err := resolveSchema(ctx, cfg.Promotions.SchemaMode, repository.NewSchemaRepository(db))
	if err != nil {
		return err
	}
	logr.Info("promotion schema resolved",
		zap.String("mode", cfg.Promotions.SchemaMode),
		zap.Bool("promotion_columns", caps.PromotionColumns),
		zap.Bool("promotion_table", caps.PromotionTable),
		zap.Bool("audit_table", caps.AuditTable),
	)

	router := newRouter(cfg, logr, buildApp(cfg, logr, db, redisClient, caps))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type schemaDetector interface {
	Detect(ctx context.Context) (models.SchemaCapabilities, error)
}

// resolveSchema returns the capability set for mode, probing the database when mode is auto.
func resolveSchema(ctx context.Context, mode string, detector schemaDetector) (models.SchemaCapabilities, error) {
	switch mode {
	case config.SchemaModeFull:
		return models.FullSchema, nil
	case config.SchemaModeLegacy:
		return models.LegacySchema, nil
	}
	caps, err := detector.Detect(ctx)
	if err != nil {
		return models.SchemaCapabilities{}, fmt.Errorf("detect promotion schema: %w", err)
	}
	return caps, nil
}

type app struct {
	caps       models.SchemaCapabilities
	auth       *service.AuthService
	users      *repository.UserRepository
	metrics    *service.MetricsService
	authH      *handler.AuthHandler
	promotionH *handler.PromotionHandler
	metricsH   *handler.MetricsHandler
}

func buildApp(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, caps models.SchemaCapabilities) *app {
	validate := validator.New()
	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db, caps)
	sectionRepo := repository.NewSectionRepository(db)
	performanceRepo := repository.NewPerformanceRepository(db)
	promotionRepo := repository.NewPromotionRepository(db, caps)
	cacheRepo := repository.NewCacheRepository(redisClient)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Promotions.ReviewCacheTTL, logr, cacheRepo.Enabled())
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	eligibilitySvc := service.NewEligibilityService(performanceRepo, studentRepo, models.EligibilityPolicy{
		PassingGrade:      cfg.Promotions.PassingGrade,
		MinAttendanceRate: cfg.Promotions.MinAttendanceRate,
		RequiredPeriods:   cfg.Promotions.RequiredPeriods,
	}, logr)
	targetSvc := service.NewTargetService(sectionRepo, cfg.Promotions.MaxGradeLevel, logr)
	rosterSvc := service.NewRosterService(studentRepo, eligibilitySvc, targetSvc, cacheSvc, cfg.Promotions.ReviewCacheTTL, logr)
	promotionSvc := service.NewPromotionService(promotionRepo, studentRepo, targetSvc, rosterSvc, metrics, validate, logr, service.PromotionConfig{
		MaxReportedErrors: cfg.Promotions.MaxReportedErrors,
	})
	exportSvc := service.NewExportService(promotionRepo, nil, nil, logr)

	deps := map[string]handler.Pinger{"postgres": db}
	if cacheRepo.Enabled() {
		deps["redis"] = handler.PingerFunc(cacheRepo.Ping)
	}

	return &app{
		caps:       caps,
		auth:       authSvc,
		users:      userRepo,
		metrics:    metrics,
		authH:      handler.NewAuthHandler(authSvc),
		promotionH: handler.NewPromotionHandler(rosterSvc, targetSvc, promotionSvc, eligibilitySvc, exportSvc, validate, logr),
		metricsH:   handler.NewMetricsHandler(metrics, deps, caps, logr),
	}
}
