package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/api"
	"github.com/FlexMeasures/flexmeasures/internal/buildconfig"
	"github.com/FlexMeasures/flexmeasures/internal/config"
	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/events"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	dbURL := config.DatabaseURL()
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	if config.SecretKey() == "" {
		logger.Fatal("SECRET_KEY is required")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	var publisher domain.EventPublisher = events.NopPublisher{}
	if brokers := config.KafkaBrokers(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, config.KafkaTopic(), logger)
		logger.Info("publishing sensor data events", zap.Strings("brokers", brokers), zap.String("topic", config.KafkaTopic()))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close event publisher", zap.Error(err))
		}
	}()

	app := api.NewApp(pool, publisher, logger)

	// Start background services
	app.Forecasting.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("version", buildconfig.String()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Forecasting.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
