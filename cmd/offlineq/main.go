// @title Offline Queue API
// @version 1.0
// @description 离线写请求队列：入队、回放与观测
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/offline-queue/config"
	"github.com/d60-Lab/offline-queue/internal/api"
	"github.com/d60-Lab/offline-queue/internal/api/handler"
	"github.com/d60-Lab/offline-queue/internal/connectivity"
	"github.com/d60-Lab/offline-queue/internal/repository"
	"github.com/d60-Lab/offline-queue/internal/service"
	"github.com/d60-Lab/offline-queue/internal/transport"
	"github.com/d60-Lab/offline-queue/pkg/alert"
	"github.com/d60-Lab/offline-queue/pkg/database"
	"github.com/d60-Lab/offline-queue/pkg/logger"
	"github.com/d60-Lab/offline-queue/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sentryOn, err := alert.Init(cfg.Sentry.DSN, cfg.Sentry.Environment)
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	defer alert.Flush(2 * time.Second)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	replayer, err := transport.NewHTTPReplayer(cfg.Sync.UpstreamURL, cfg.Sync.RequestTimeout)
	if err != nil {
		return err
	}
	monitor := connectivity.NewMonitor(cfg.Sync.InitialOnline)

	opts := []service.Option{
		service.WithMaxRetries(cfg.Sync.MaxRetries),
		service.WithBackoff(cfg.Sync.BaseBackoff, cfg.Sync.MaxBackoff),
		service.WithSyncInterval(cfg.Sync.Interval),
		service.WithReplayRate(cfg.Sync.ReplayRate),
	}
	if sentryOn {
		opts = append(opts, service.WithFailureReporter(alert.NewSentryReporter(nil)))
	}
	engine := service.NewSyncEngine(store, replayer, monitor, opts...)
	stopEngine := engine.Start(ctx)

	var upstream *url.URL
	if cfg.Sync.UpstreamURL != "" {
		if upstream, err = url.Parse(cfg.Sync.UpstreamURL); err != nil {
			return fmt.Errorf("parse upstream url: %w", err)
		}
	}
	h := handler.New(engine, monitor, upstream, nil)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(cfg, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Sync.HealthURL != "" {
		g.Go(func() error {
			client := &http.Client{Timeout: cfg.Sync.RequestTimeout}
			monitor.Probe(gctx, client, cfg.Sync.HealthURL, cfg.Sync.ProbeInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
		return stopEngine(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("offlineq exited", zap.Error(err))
		return err
	}
	logger.Info("offlineq stopped")
	return nil
}

func openStore(cfg *config.Config) (repository.QueueRepository, func(), error) {
	switch cfg.Store.Backend {
	case "redis":
		client, err := database.InitRedis(cfg)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisQueueRepository(client, cfg.Store.KeyPrefix), func() { _ = client.Close() }, nil
	default:
		db, err := database.InitDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewQueueRepository(db), closeFn, nil
	}
}
