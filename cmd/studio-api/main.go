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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/studio-booking-api/api/swagger"
	"github.com/noah-isme/studio-booking-api/internal/handler"
	"github.com/noah-isme/studio-booking-api/internal/middleware"
	"github.com/noah-isme/studio-booking-api/internal/repository"
	"github.com/noah-isme/studio-booking-api/internal/service"
	"github.com/noah-isme/studio-booking-api/pkg/cache"
	"github.com/noah-isme/studio-booking-api/pkg/config"
	"github.com/noah-isme/studio-booking-api/pkg/database"
	"github.com/noah-isme/studio-booking-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/studio-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/studio-booking-api/pkg/middleware/requestid"
)

// @title Studio Booking API
// @version 1.0.0
// @description Class scheduling, booking and attendance for a fitness studio.
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, running without cache", zap.Error(err))
			redisClient = nil
		}
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "studio", logr)
		defer cacheRepo.Close() //nolint:errcheck
	}
	var cacheBackend service.CacheRepository
	if cacheRepo != nil {
		cacheBackend = cacheRepo
	}
	cacheSvc := service.NewCacheService(cacheBackend, metrics, cfg.Cache.UpcomingTTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	validate := validator.New()
	tx := repository.NewTransactor(db, cfg.Database.TxMaxRetries, logr)
	templateRepo := repository.NewClassTemplateRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	userRepo := repository.NewUserRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)

	creditSvc := service.NewCreditService(tx, creditRepo, enrollmentRepo, userRepo, metrics, logr)
	bookingSvc := service.NewBookingService(service.BookingServiceParams{
		Tx:          tx,
		Instances:   instanceRepo,
		Templates:   templateRepo,
		Enrollments: enrollmentRepo,
		Users:       userRepo,
		Memberships: membershipRepo,
		Credits:     creditSvc,
		Cache:       cacheSvc,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
	})
	classSvc := service.NewClassService(service.ClassServiceParams{
		Tx:        tx,
		Templates: templateRepo,
		Instances: instanceRepo,
		Users:     userRepo,
		Cache:     cacheSvc,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
		Horizon:   cfg.Booking.ExpansionHorizon,
	})
	cancellationSvc := service.NewCancellationService(tx, instanceRepo, enrollmentRepo, creditSvc, cacheSvc, metrics, logr)
	attendanceSvc := service.NewAttendanceService(service.AttendanceServiceParams{
		Tx:          tx,
		Enrollments: enrollmentRepo,
		Instances:   instanceRepo,
		Templates:   templateRepo,
		Users:       userRepo,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
		GracePeriod: cfg.Booking.MissedGracePeriod,
	})
	paymentSvc := service.NewPaymentService(bookingSvc, validate, logr)
	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metrics != nil {
		r.Use(middleware.Metrics(metrics))
	}

	checks := map[string]handler.Pinger{
		"postgres": handler.PingFunc(db.PingContext),
	}
	if cacheRepo != nil {
		checks["redis"] = cacheRepo
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metrics != nil {
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Register(r.Group(cfg.APIPrefix), handler.Handlers{
		Classes:     handler.NewClassHandler(classSvc),
		Instances:   handler.NewInstanceHandler(bookingSvc, cancellationSvc, attendanceSvc),
		Enrollments: handler.NewEnrollmentHandler(attendanceSvc),
		Me:          handler.NewMeHandler(bookingSvc, creditSvc),
		Staff:       handler.NewStaffHandler(attendanceSvc),
		Payments:    handler.NewPaymentHandler(paymentSvc),
	}, authSvc, cfg.Payments.WebhookSecret)

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
