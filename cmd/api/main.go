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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/plan-export-api/api/swagger"
	"github.com/noah-isme/plan-export-api/internal/handler"
	"github.com/noah-isme/plan-export-api/internal/middleware"
	"github.com/noah-isme/plan-export-api/internal/repository"
	"github.com/noah-isme/plan-export-api/internal/service"
	"github.com/noah-isme/plan-export-api/pkg/cache"
	"github.com/noah-isme/plan-export-api/pkg/config"
	"github.com/noah-isme/plan-export-api/pkg/database"
	"github.com/noah-isme/plan-export-api/pkg/export"
	"github.com/noah-isme/plan-export-api/pkg/jobs"
	"github.com/noah-isme/plan-export-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/plan-export-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/plan-export-api/pkg/middleware/requestid"
	"github.com/noah-isme/plan-export-api/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

// @title Plan Export API
// @version 1.0.0
// @description Exports innovation practice course records as documents and class archives
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	checks := map[string]handler.Pinger{"postgres": db}

	notifier := repository.NewNotificationRepository(nil, cfg.Notify.Channel, logr)
	if cfg.Notify.Enabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		notifier = repository.NewNotificationRepository(redisClient, cfg.Notify.Channel, logr)
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	staging, err := storage.NewLocalStorage(cfg.Export.StagingDir)
	if err != nil {
		return err
	}
	output, err := storage.NewLocalStorage(cfg.Export.OutputDir)
	if err != nil {
		return err
	}
	renderer, err := newRenderer(cfg.Export)
	if err != nil {
		return err
	}

	metricsSvc := service.NewMetricsService()
	aggregator := service.NewAggregatorService(
		repository.NewProfileRepository(db),
		repository.NewRecordRepository(db),
	)
	documents := service.NewDocumentService(service.DocumentServiceConfig{
		InstitutionTitle: cfg.Export.InstitutionTitle,
		LogoPaths:        cfg.Export.LogoPaths,
	})
	runner := service.NewExportService(documents, renderer, staging, logr)
	archiver := service.NewArchiveService(staging, output, logr)
	signer := storage.NewSignedURLSigner(cfg.Export.SignedURLSecret, cfg.Export.SignedURLTTL)
	planExports := service.NewPlanExportService(
		aggregator, runner, archiver, staging, output, signer, notifier, metricsSvc, logr,
		service.PlanExportConfig{
			APIPrefix:    cfg.APIPrefix,
			Concurrency:  cfg.Export.Concurrency,
			JobTimeout:   cfg.Export.JobTimeout,
			BatchTimeout: cfg.Export.BatchTimeout,
		},
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	planHandler := handler.NewPlanExportHandler(planExports, metricsSvc)
	api := r.Group(cfg.APIPrefix)
	plans := api.Group("/plans")
	plans.POST("/export", planHandler.Export)
	plans.GET("/export/stats", planHandler.Stats)
	plans.GET("/download/:token", planHandler.Download)

	if cfg.Jobs.Enabled {
		jobRepo := repository.NewExportJobRepository(db)
		worker := service.NewExportJobWorker(jobRepo, planExports, logr)
		queue := jobs.NewQueue("plan-exports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Jobs.Workers,
			MaxRetries: cfg.Jobs.Retries,
			RetryDelay: cfg.Jobs.RetryDelay,
			Retryable:  service.IsRetryable,
			OnGiveUp:   worker.MarkFailed,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		jobSvc := service.NewExportJobService(jobRepo, queue, logr)
		jobSvc.RecoverPendingJobs(ctx)

		jobHandler := handler.NewExportJobHandler(jobSvc)
		plans.POST("/export/jobs", jobHandler.Create)
		plans.GET("/export/jobs/:id", jobHandler.Status)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "format", renderer.Extension())
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

	logr.Sugar().Infow("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRenderer(cfg config.ExportConfig) (export.Renderer, error) {
	switch cfg.Format {
	case "pdf":
		return export.NewPDFExporter(export.PDFOptions{FontPath: cfg.FontPath, FontFamily: cfg.FontFamily}), nil
	case "docx":
		return export.NewDOCXExporter(export.DOCXOptions{FontFamily: cfg.FontFamily}), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", cfg.Format)
	}
}
