package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/uni-contrib-api/api/swagger"
	"github.com/noah-isme/uni-contrib-api/internal/handler"
	"github.com/noah-isme/uni-contrib-api/internal/middleware"
	"github.com/noah-isme/uni-contrib-api/internal/repository"
	"github.com/noah-isme/uni-contrib-api/internal/router"
	"github.com/noah-isme/uni-contrib-api/internal/service"
	"github.com/noah-isme/uni-contrib-api/pkg/cache"
	"github.com/noah-isme/uni-contrib-api/pkg/config"
	"github.com/noah-isme/uni-contrib-api/pkg/database"
	"github.com/noah-isme/uni-contrib-api/pkg/jobs"
	"github.com/noah-isme/uni-contrib-api/pkg/logger"
	"github.com/noah-isme/uni-contrib-api/pkg/mail"
	"github.com/noah-isme/uni-contrib-api/pkg/media"
	corsmiddleware "github.com/noah-isme/uni-contrib-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-contrib-api/pkg/middleware/requestid"
	"github.com/noah-isme/uni-contrib-api/pkg/storage"
)

// @title University Contribution API
// @version 1.0.0
// @description Faculty, event and student contribution management
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
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

	redisClient, err := cache.NewRedis(ctx, cfg.Redis, cfg.Cache)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	files, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		return fmt.Errorf("init file storage: %w", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	mailer := mail.New(cfg.Mail, logr)

	userRepo := repository.NewUserRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	eventRepo := repository.NewEventRepository(db)
	contributionRepo := repository.NewContributionRepository(db)
	store := repository.NewDocumentStore(db)

	cascade := service.NewFacultyCascade(store, metrics, logr, cfg.Cascade.ExclusiveCoordinator)
	retrier := service.NewCascadeRetrier(cascade, facultyRepo, metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Cascade.RetryWorkers,
		MaxRetries: cfg.Cascade.RetryMax,
		RetryDelay: cfg.Cascade.RetryDelay,
	})
	retrier.Start(ctx)
	defer retrier.Stop()

	uploader := service.NewUploader(files, media.NewInspector(cfg.Uploads.AllowedMIMEs, cfg.Uploads.MaxFileSizeBytes), cfg.Uploads.ThumbnailWidth, logr)
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	authSvc := service.NewAuthService(userRepo, facultyRepo, mailer, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(service.UserServiceDeps{
		Repo:      userRepo,
		Faculties: facultyRepo,
		Cascade:   cascade,
		Retrier:   retrier,
		Store:     store,
		Cache:     cacheSvc,
		Validator: validate,
		Logger:    logr,
	})
	facultySvc := service.NewFacultyService(service.FacultyServiceDeps{
		Repo:          facultyRepo,
		Users:         userRepo,
		Cascade:       cascade,
		Retrier:       retrier,
		Cache:         cacheSvc,
		Uploader:      uploader,
		Audit:         userRepo,
		BannerBaseURL: cfg.Uploads.PublicBaseURL + "/media/banners",
		Validator:     validate,
		Logger:        logr,
	})
	eventSvc := service.NewEventService(eventRepo, facultyRepo, store, cacheSvc, userRepo, validate, logr)
	contributionSvc := service.NewContributionService(service.ContributionServiceDeps{
		Repo:            contributionRepo,
		Events:          eventRepo,
		Users:           userRepo,
		Uploader:        uploader,
		Files:           files,
		Signer:          signer,
		Mailer:          mailer,
		Audit:           userRepo,
		DownloadBaseURL: cfg.Uploads.PublicBaseURL + cfg.APIPrefix + "/files/download",
		Validator:       validate,
		Logger:          logr,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	router.Register(r, router.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Faculties:     handler.NewFacultyHandler(facultySvc),
		Events:        handler.NewEventHandler(eventSvc),
		Contributions: handler.NewContributionHandler(contributionSvc),
		Metrics: handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
			"database": db.PingContext,
			"redis":    cacheRepo.Ping,
		}),
	}, router.Options{
		APIPrefix:  cfg.APIPrefix,
		BannerDir:  filepath.Join(cfg.Uploads.StorageDir, "banners"),
		EnableDocs: cfg.Env != config.EnvProduction,
		Tokens:     authSvc,
		Audit:      userRepo,
		Logger:     logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
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

	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
