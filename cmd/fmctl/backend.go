package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/FlexMeasures/flexmeasures/internal/config"
	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/export"
	"github.com/FlexMeasures/flexmeasures/internal/reporting"
	"github.com/FlexMeasures/flexmeasures/internal/service"
	"github.com/FlexMeasures/flexmeasures/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type accountAdder interface {
	CreateAccount(ctx context.Context, name string) (*domain.Account, error)
	CreateUser(ctx context.Context, nu service.NewUser) (*domain.User, error)
}

type assetAdder interface {
	CreateType(ctx context.Context, t domain.AssetType) (*domain.AssetType, error)
	Create(ctx context.Context, a *domain.Asset) error
}

type weatherSensorAdder interface {
	Create(ctx context.Context, ws *domain.WeatherSensor) error
}

type annotationAdder interface {
	Add(ctx context.Context, na service.NewAnnotation) (*domain.Annotation, error)
}

type configLoader interface {
	Load(ctx context.Context, data []byte) (*reporting.Config, error)
}

type reportRunner interface {
	Run(ctx context.Context, req service.ReportRequest) (*service.ReportResult, error)
}

// backend is what the commands talk to.
type backend struct {
	accounts    accountAdder
	assets      assetAdder
	weather     weatherSensorAdder
	annotations annotationAdder
	configs     configLoader
	reports     reportRunner

	// s3Sink opens an S3 export target for a bucket.
	s3Sink func(ctx context.Context, bucket string) (domain.ReportSink, error)

	close func()
}

func connect(ctx context.Context, logger *zap.Logger) (*backend, error) {
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Debug("connected to database")

	accountStore := store.NewAccountStore(pool)
	userStore := store.NewUserStore(pool)
	sensorStore := store.NewSensorStore(pool)
	sourceStore := store.NewDataSourceStore(pool)
	beliefStore := store.NewBeliefStore(pool)

	accountSvc := service.NewAccountService(accountStore, userStore)
	assetSvc := service.NewAssetService(store.NewAssetStore(pool), sensorStore, config.AddressingScheme(), config.NamingAuthority())
	assetSvc.SetMarketStore(store.NewMarketStore(pool))

	reporter, err := reporting.NewReporter(sensorStore, beliefStore, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("reporter: %w", err)
	}

	return &backend{
		accounts:    accountSvc,
		assets:      assetSvc,
		weather:     service.NewWeatherService(store.NewWeatherSensorStore(pool), sensorStore),
		annotations: service.NewAnnotationService(store.NewAnnotationStore(pool), sourceStore, accountSvc),
		configs:     reporter.Validator(),
		reports: service.NewReportService(reporter, service.NewSensorService(sensorStore, beliefStore),
			beliefStore, sourceStore, logger),
		s3Sink: func(ctx context.Context, bucket string) (domain.ReportSink, error) {
			return export.NewS3Sink(ctx, bucket, "reports", logger)
		},
		close: pool.Close,
	}, nil
}

// withBackend opens the backend for the duration of fn.
func withBackend(fn func(ctx context.Context, b *backend) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	b, err := openBackend(ctx, logger)
	if err != nil {
		return err
	}
	if b.close != nil {
		defer b.close()
	}
	return fn(ctx, b)
}
