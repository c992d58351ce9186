package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/asliddin-dev/edu-crm-api/api/swagger"
	"github.com/asliddin-dev/edu-crm-api/internal/handler"
	"github.com/asliddin-dev/edu-crm-api/internal/middleware"
	"github.com/asliddin-dev/edu-crm-api/internal/repository"
	"github.com/asliddin-dev/edu-crm-api/internal/service"
	"github.com/asliddin-dev/edu-crm-api/pkg/cache"
	"github.com/asliddin-dev/edu-crm-api/pkg/config"
	"github.com/asliddin-dev/edu-crm-api/pkg/database"
	"github.com/asliddin-dev/edu-crm-api/pkg/logger"
	corsmiddleware "github.com/asliddin-dev/edu-crm-api/pkg/middleware/cors"
	reqidmiddleware "github.com/asliddin-dev/edu-crm-api/pkg/middleware/requestid"
)

// @title Edu CRM API
// @version 1.0.0
// @description Student registration lifecycle service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logr.Sugar().Fatalw("failed to run migrations", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, stats caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	partitions := repository.NewPartitionStore(cfg.Partitions.Enabled)
	registrationRepo := repository.NewRegistrationRepository(db, partitions)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	registrationSvc := service.NewRegistrationService(registrationRepo, auditRepo, metrics, validate, logr)
	schedulingSvc := service.NewSchedulingService(registrationRepo, metrics, validate, logr)
	notificationSvc := service.NewNotificationService(registrationRepo, logr)
	statsSvc := service.NewStatsService(registrationRepo, cacheRepo, cfg.Stats.CacheTTL, logr)
	authSvc := service.NewAuthService(cfg.JWT, cfg.Admin, logr)

	var reminderSvc *service.ReminderService
	if cfg.Reminders.Enabled {
		reminderSvc = service.NewReminderService(registrationRepo, metrics, cfg.Reminders, logr)
		reminderSvc.Start(ctx)
		defer reminderSvc.Stop()
	}

	registrationHandler := handler.NewRegistrationHandler(registrationSvc, schedulingSvc, notificationSvc, auditRepo)
	statsHandler := handler.NewStatsHandler(statsSvc)
	authHandler := handler.NewAuthHandler(authSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)

		api.POST("/registrations", registrationHandler.Create)
		api.GET("/registrations", registrationHandler.List)
		api.GET("/registrations/:id", registrationHandler.Get)
		api.GET("/registrations/owner/:owner_id", registrationHandler.ListByOwner)
		api.POST("/registrations/:id/transition", registrationHandler.Transition)
		api.POST("/registrations/:id/trial", registrationHandler.ScheduleTrial)
		api.POST("/registrations/:id/lesson", registrationHandler.ScheduleLesson)
		api.POST("/registrations/:id/consultation", registrationHandler.ScheduleConsultation)
		api.POST("/registrations/:id/notified", registrationHandler.MarkNotified)
		api.POST("/registrations/:id/reminder-sent", registrationHandler.MarkReminderSent)
		api.PATCH("/registrations/:id/progress", registrationHandler.UpdateProgress)

		api.GET("/stats/statuses", statsHandler.CountByStatus)
		api.GET("/stats/weekly", statsHandler.Weekly)

		admin := api.Group("")
		admin.Use(middleware.JWTAuth(authSvc))
		{
			admin.POST("/registrations/:id/force-transition", registrationHandler.ForceTransition)
			admin.GET("/registrations/:id/audit", registrationHandler.AuditTrail)
			admin.DELETE("/registrations/:id", registrationHandler.Delete)
			admin.POST("/partitions/resync", registrationHandler.ResyncPartitions)
			admin.GET("/stats/export", statsHandler.Export)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
