package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ecoinfx/forms-api/internal/handler"
	"github.com/ecoinfx/forms-api/internal/middleware"
	"github.com/ecoinfx/forms-api/internal/models"
	"github.com/ecoinfx/forms-api/internal/repository"
	"github.com/ecoinfx/forms-api/internal/service"
	"github.com/ecoinfx/forms-api/pkg/cache"
	"github.com/ecoinfx/forms-api/pkg/config"
	"github.com/ecoinfx/forms-api/pkg/database"
	"github.com/ecoinfx/forms-api/pkg/jobs"
	"github.com/ecoinfx/forms-api/pkg/logger"
	corsmiddleware "github.com/ecoinfx/forms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ecoinfx/forms-api/pkg/middleware/requestid"
	"github.com/ecoinfx/forms-api/pkg/storage"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, questionnaire caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsService := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Questionnaires.CacheTTL, logr, redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	questionnaireRepo := repository.NewQuestionnaireRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "forms-api",
	})

	questionnaireService := service.NewQuestionnaireService(questionnaireRepo, cacheService, userRepo, validate, logr, cfg.Questionnaires.CacheTTL)

	applicationService, err := service.NewApplicationService(applicationRepo, questionnaireService, userRepo, validate, logr)
	if err != nil {
		logr.Sugar().Fatalw("answers schema failed its self-check", "error", err)
	}

	uploadStorage, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare attachment storage", "error", err)
	}
	uploadSigner := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)
	attachmentService := service.NewAttachmentService(attachmentRepo, applicationService, uploadStorage, uploadSigner, userRepo, logr, service.AttachmentServiceConfig{
		MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})

	var exportService *service.ExportService
	if cfg.Exports.Enabled {
		exportStorage, storageErr := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if storageErr != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", storageErr)
		}
		exportService = service.NewExportService(applicationService, questionnaireService, exportStorage, uploadSigner, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: 24 * time.Hour,
		}, logr, nil, nil)
	}

	authHandler := handler.NewAuthHandler(authService)
	questionnaireHandler := handler.NewQuestionnaireHandler(questionnaireService)
	applicationHandler := handler.NewApplicationHandler(applicationService)
	attachmentHandler := handler.NewAttachmentHandler(attachmentService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	questionnaires := api.Group("/questionnaires", middleware.JWT(authService))
	{
		questionnaires.GET("/schema", questionnaireHandler.Schema)
		questionnaires.GET("", questionnaireHandler.List)
		questionnaires.POST("", middleware.RequireRoles(models.RoleAdmin), questionnaireHandler.Create)
		questionnaires.GET("/:slug", questionnaireHandler.GetLatest)
		questionnaires.GET("/:slug/versions/:version", questionnaireHandler.GetVersion)
	}

	applications := api.Group("/applications", middleware.JWT(authService))
	{
		applications.GET("/schema", applicationHandler.AnswersSchema)
		applications.POST("", applicationHandler.Create)
		applications.GET("", applicationHandler.List)
		applications.GET("/:key", applicationHandler.Get)
		applications.PUT("/:key/document", applicationHandler.UpdateDocument)
		applications.POST("/:key/submit", applicationHandler.Submit)
		applications.POST("/:key/status", middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin), applicationHandler.Transition)
		applications.DELETE("/:key", applicationHandler.Discard)

		applications.POST("/:key/attachments", attachmentHandler.Upload)
		applications.GET("/:key/attachments", attachmentHandler.List)
		applications.GET("/:key/attachments/:attachmentKey", attachmentHandler.Get)
		applications.GET("/:key/attachments/:attachmentKey/download", attachmentHandler.Download)
		applications.DELETE("/:key/attachments/:attachmentKey", attachmentHandler.Delete)

		if exportService != nil {
			applications.POST("/:key/export", exportHandler.Generate)
		}
	}
	if exportService != nil {
		api.GET("/exports/:token", middleware.JWT(authService), exportHandler.Download)
	}

	api.GET("/system/metrics", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if exportService != nil {
		cleanup := jobs.NewQueue("export-cleanup", func(ctx context.Context, job jobs.Job) error {
			removed, cleanupErr := exportService.Cleanup(0)
			if cleanupErr != nil {
				return cleanupErr
			}
			if len(removed) > 0 {
				logr.Sugar().Infow("expired exports removed", "count", len(removed))
			}
			return nil
		}, jobs.QueueConfig{Workers: 1, BufferSize: 4, Logger: logr})
		cleanup.Start(ctx)
		defer cleanup.Stop()

		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := cleanup.Enqueue(jobs.Job{Type: "cleanup"}); err != nil {
						logr.Sugar().Warnw("failed to enqueue export cleanup", "error", err)
					}
				}
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
