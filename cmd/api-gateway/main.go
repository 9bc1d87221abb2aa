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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tilawah-live-api/api/swagger"
	"github.com/noah-isme/tilawah-live-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tilawah-live-api/internal/middleware"
	"github.com/noah-isme/tilawah-live-api/internal/service"
	"github.com/noah-isme/tilawah-live-api/pkg/config"
	"github.com/noah-isme/tilawah-live-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tilawah-live-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tilawah-live-api/pkg/middleware/requestid"
)

// @title Tilawah Live API
// @version 0.1.0
// @description Live co-reading sessions: access gate, presence, position sync and scholar roster
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := openStorage(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer store.close()

	metrics := service.NewMetricsService()
	validate := validator.New()

	audit := service.NewAuditDispatcher(store.audit, metrics, logr, service.AuditDispatcherConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
	})
	audit.Start(ctx)
	defer audit.Stop()

	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	access := service.NewAccessService(store.access, audit, validate, logr)
	sessions := service.NewSessionService(store.sessions, store.batches, store.presence, access, audit, metrics, logr, service.SessionServiceConfig{
		Location:   cfg.Live.Location(),
		StaleAfter: cfg.Live.StaleAfter,
	})
	heartbeat := service.NewHeartbeatService(store.presence, store.sessions, metrics, logr)
	aggregator := service.NewAggregatorService(store.batches, store.presence, metrics, logr, service.AggregatorConfig{
		StaleAfter:   cfg.Live.StaleAfter,
		FetchTimeout: cfg.Live.RosterFetchTimeout,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, cfg.CORS.MaxAge))
	r.Use(internalmiddleware.Metrics(metrics))

	routes{
		access:     handler.NewAccessHandler(access),
		sessions:   handler.NewSessionHandler(sessions, cfg.Live.DailySessionLimit),
		presence:   handler.NewPresenceHandler(heartbeat),
		scholars:   handler.NewScholarHandler(aggregator, cfg.Live.ScholarPollInterval, cfg.Live.StaleAfter),
		metrics:    handler.NewMetricsHandler(metrics.Handler(), store.checks),
		authorizer: internalmiddleware.JWT(tokens),
	}.register(r, cfg.APIPrefix)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("storage", cfg.StorageDriver))
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
