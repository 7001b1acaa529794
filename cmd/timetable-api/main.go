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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Timetable templates, weekly slots and dated lesson generation.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db, logr); err != nil {
			logr.Fatal("migrations failed", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.LessonTTL, logr, cfg.Cache.Enabled)

	templateRepo := repository.NewTimetableTemplateRepository(db)
	slotRepo := repository.NewTimetableSlotRepository(db)
	lessonRepo := repository.NewLessonInstanceRepository(db)
	policyRepo := repository.NewCalendarPolicyRepository(db)
	classSubjectRepo := repository.NewClassSubjectRepository(db)
	academicYearRepo := repository.NewAcademicYearRepository(db)

	detector := service.NewScheduleConflictDetector()
	authSvc := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})
	templateSvc := service.NewTimetableTemplateService(templateRepo, academicYearRepo, db, validate, logr)
	slotSvc := service.NewTimetableSlotService(slotRepo, templateRepo, classSubjectRepo, detector, db, validate, metrics, logr)
	policySvc := service.NewCalendarPolicyService(policyRepo, cacheSvc, cfg.Cache.PolicyTTL, logr)
	lessonSvc := service.NewLessonService(lessonRepo, classSubjectRepo, detector, db, service.LessonServiceConfig{
		Cache:        cacheSvc,
		CacheTTL:     cfg.Cache.LessonTTL,
		Metrics:      metrics,
		Logger:       logr,
		Validator:    validate,
		MaxRangeDays: cfg.Generation.MaxRangeDays,
	})
	generatorSvc := service.NewLessonGeneratorService(templateRepo, slotRepo, policySvc, lessonRepo, db, service.LessonGeneratorConfig{
		Cache:        lessonSvc,
		Metrics:      metrics,
		Logger:       logr,
		MaxRangeDays: cfg.Generation.MaxRangeDays,
	})

	generationJob := service.NewLessonGenerationJob(templateRepo, generatorSvc, cfg.Generation.HorizonDays, logr)
	queue := jobs.NewQueue("lesson-generation", generationJob.Handle, jobs.QueueConfig{
		Workers:    cfg.Generation.Workers,
		BufferSize: 64,
		MaxRetries: cfg.Generation.Retries,
		RetryDelay: cfg.Generation.RetryDelay,
		JobTimeout: cfg.Generation.JobTimeout,
		Logger:     logr,
	})
	generationJob.AttachQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Generation.CronEnabled {
		scheduler := jobs.NewScheduler(logr, cfg.Generation.JobTimeout)
		err := scheduler.Register("lesson-horizon", cfg.Generation.CronSpec, func(ctx context.Context) error {
			_, err := generationJob.RunHorizon(ctx)
			return err
		})
		if err != nil {
			logr.Fatal("invalid generation cron", zap.String("spec", cfg.Generation.CronSpec), zap.Error(err))
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(metrics, cfg.Metrics.Path, "/health", "/ready"))
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Templates: handler.NewTimetableTemplateHandler(templateSvc, logr),
		Slots:     handler.NewTimetableSlotHandler(slotSvc),
		Lessons:   handler.NewLessonHandler(lessonSvc, generatorSvc, generationJob, logr),
		Calendar:  handler.NewCalendarPolicyHandler(policySvc),
		Metrics:   metricsHandler,
	}, authSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
