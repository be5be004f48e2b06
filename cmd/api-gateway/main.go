package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/lynn75965/biblelessonspark-sub002/api/swagger"
	"github.com/lynn75965/biblelessonspark-sub002/internal/handler"
	"github.com/lynn75965/biblelessonspark-sub002/internal/middleware"
	"github.com/lynn75965/biblelessonspark-sub002/internal/models"
	"github.com/lynn75965/biblelessonspark-sub002/internal/repository"
	"github.com/lynn75965/biblelessonspark-sub002/internal/service"
	"github.com/lynn75965/biblelessonspark-sub002/pkg/cache"
	"github.com/lynn75965/biblelessonspark-sub002/pkg/config"
	"github.com/lynn75965/biblelessonspark-sub002/pkg/database"
	"github.com/lynn75965/biblelessonspark-sub002/pkg/logger"
	corsmiddleware "github.com/lynn75965/biblelessonspark-sub002/pkg/middleware/cors"
	reqidmiddleware "github.com/lynn75965/biblelessonspark-sub002/pkg/middleware/requestid"
)

// @title LessonSpark Membership Transfer API
// @version 1.0.0
// @description Organization membership transfer-request workflow service
// @BasePath /api/v1
// @schemes http

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
	defer db.Close()

	transferRepo := repository.NewTransferRepository(db, repository.ListLimits{
		Default: cfg.Transfers.DefaultPageSize,
		Max:     cfg.Transfers.MaxPageSize,
	})
	orgRepo := repository.NewOrganizationRepository(db)
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	directory := service.NewDirectoryService(orgRepo, userRepo)
	metricsSvc := service.NewMetricsService()

	var notificationSvc *service.NotificationService
	if cfg.Notifications.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, inbox-only notifications", "error", err)
			notificationSvc = service.NewNotificationService(notificationRepo, nil, "", logr)
		} else {
			defer redisClient.Close()
			notificationSvc = service.NewNotificationService(notificationRepo, redisClient, cfg.Notifications.Channel, logr)
		}
	} else {
		notificationSvc = service.NewNotificationService(notificationRepo, nil, "", logr)
	}

	transferSvc := service.NewTransferService(transferRepo, directory, directory, notificationSvc, userRepo, metricsSvc, logr)

	transferHandler := handler.NewTransferHandler(transferSvc, metricsSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))

	if cfg.Transfers.Enabled {
		transfers := api.Group("/transfers")
		transfers.POST("", middleware.RequireRoles(models.RoleOrgManager, models.RoleTeacher), transferHandler.Create)
		transfers.GET("", transferHandler.List)
		transfers.GET("/:id", transferHandler.Get)
		transfers.POST("/:id/respond", transferHandler.Respond)
		transfers.POST("/:id/process", middleware.RequireRoles(models.RoleAdmin), transferHandler.Process)
		transfers.POST("/:id/cancel", transferHandler.Cancel)
	}

	notifications := api.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.POST("/:id/read", notificationHandler.MarkRead)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
