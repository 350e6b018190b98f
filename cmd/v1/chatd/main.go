package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/config"
	"github.com/harborchat/harbor/internal/v1/dal"
	"github.com/harborchat/harbor/internal/v1/db"
	"github.com/harborchat/harbor/internal/v1/health"
	"github.com/harborchat/harbor/internal/v1/logging"
	"github.com/harborchat/harbor/internal/v1/middleware"
	"github.com/harborchat/harbor/internal/v1/server"
	"github.com/harborchat/harbor/internal/v1/service"
	"github.com/harborchat/harbor/internal/v1/tracing"
	"github.com/harborchat/harbor/internal/v1/workerpool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatd:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a local-development convenience; production injects real
	// environment variables.
	if err := godotenv.Load(); err == nil {
		fmt.Println("loaded environment from .env")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Development()); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logging.GetLogger().Sync() }()
	ctx := context.Background()

	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "chatd", cfg.OtelCollectorAddr)
		if err != nil {
			return fmt.Errorf("initialize tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logging.Error(context.Background(), "tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	pool, err := db.NewPool(db.PoolConfig{
		Host:           cfg.DBHost,
		Port:           cfg.DBPort,
		Username:       cfg.DBUsername,
		Password:       cfg.DBPassword,
		Database:       cfg.DBDatabase,
		MinConns:       cfg.DBPoolMin,
		MaxConns:       cfg.DBPoolMax,
		AcquireTimeout: cfg.DBConnTimeout,
		IdleTimeout:    cfg.DBIdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("database pool: %w", err)
	}
	defer pool.Close()

	gateway := db.NewGateway(pool, cfg.DBConnTimeout)
	store := dal.New(gateway)
	manager := service.NewManager(store)

	workers := workerpool.New(cfg.ThreadPool)
	defer workers.Stop()

	srv := server.New(server.Options{
		Service:        manager,
		Workers:        workers,
		MaxReadBuffer:  cfg.MaxReadBuffer,
		MaxWriteBuffer: cfg.MaxWriteBuffer,
		TokenTTL:       cfg.TokenExpire,
		SweepInterval:  cfg.CleanupInterval,
	})
	if err := srv.PreloadRooms(ctx); err != nil {
		return err
	}

	reactor, err := server.NewReactor(srv, cfg.ServerPort, cfg.EpollTimeout)
	if err != nil {
		return err
	}

	srv.StartSweeper()
	go reactor.Run()
	logging.Info(ctx, "chat server listening",
		zap.Int("port", cfg.ServerPort),
		zap.Int("workers", cfg.ThreadPool))

	opsServer := newOpsServer(cfg, pool, srv.Registry())
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(context.Background(), "ops server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logging.Info(ctx, "shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "ops server shutdown failed", zap.Error(err))
	}
	reactor.Stop()
	srv.Stop()
	return nil
}

// newOpsServer builds the HTTP sidecar serving probes and metrics.
func newOpsServer(cfg *config.Config, pool *db.Pool, reg *server.Registry) *http.Server {
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID())

	probes := health.NewHandler(pool, reg)
	router.GET("/health/live", probes.Liveness)
	router.GET("/health/ready", probes.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.OpsPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
