package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/api/handlers"
	mw "github.com/FlexMeasures/flexmeasures/internal/api/middleware"
	"github.com/FlexMeasures/flexmeasures/internal/buildconfig"
	"github.com/FlexMeasures/flexmeasures/internal/config"
	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/service"
	"github.com/FlexMeasures/flexmeasures/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router      *chi.Mux
	Forecasting *service.ForecastingService
	Metrics     *mw.Metrics
}

// Authenticator both hands out and checks auth tokens.
type Authenticator interface {
	mw.Authenticator
	handlers.TokenIssuer
}

// Dependencies are what the routes are served by.
type Dependencies struct {
	Auth    Authenticator
	Power   handlers.PowerExchanger
	Sensors handlers.SensorInspector
	Weather handlers.WeatherLocator
	Ping    func(ctx context.Context) error // database check for /health
	Metrics *mw.Metrics

	RateLimitRPS   float64
	RateLimitBurst int
}

func NewApp(db *pgxpool.Pool, events domain.EventPublisher, logger *zap.Logger) *App {
	// Stores
	userStore := store.NewUserStore(db)
	sensorStore := store.NewSensorStore(db)
	sourceStore := store.NewDataSourceStore(db)
	beliefStore := store.NewBeliefStore(db)
	assetStore := store.NewAssetStore(db)
	marketStore := store.NewMarketStore(db)
	weatherStore := store.NewWeatherSensorStore(db)
	jobStore := store.NewForecastingJobStore(db)
	profileStore := store.NewDailyProfileStore(db)

	// Services
	authSvc := service.NewAuthService(userStore, []byte(config.SecretKey()), config.TokenMaxAge())
	assetSvc := service.NewAssetService(assetStore, sensorStore, config.AddressingScheme(), config.NamingAuthority())
	assetSvc.SetMarketStore(marketStore)
	sensorSvc := service.NewSensorService(sensorStore, beliefStore)
	weatherSvc := service.NewWeatherService(weatherStore, sensorStore)
	powerSvc := service.NewPowerService(assetSvc, sensorStore, beliefStore, sourceStore, jobStore, events, logger)
	forecastingSvc := service.NewForecastingService(jobStore, sensorStore, beliefStore, sourceStore, profileStore, logger)
	forecastingSvc.SetInterval(config.ForecastInterval())

	metrics := &mw.Metrics{}
	r := NewRouter(Dependencies{
		Auth:           authSvc,
		Power:          powerSvc,
		Sensors:        sensorSvc,
		Weather:        weatherSvc,
		Ping:           db.Ping,
		Metrics:        metrics,
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
	}, logger)

	return &App{Router: r, Forecasting: forecastingSvc, Metrics: metrics}
}

// NewRouter wires the HTTP API onto its dependencies.
func NewRouter(d Dependencies, logger *zap.Logger) *chi.Mux {
	if d.Metrics == nil {
		d.Metrics = &mw.Metrics{}
	}
	authHandler := handlers.NewAuthHandler(d.Auth)
	sensorHandler := handlers.NewSensorHandler(d.Sensors)
	weatherHandler := handlers.NewWeatherHandler(d.Weather)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(d.Metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(d.RateLimitRPS, d.RateLimitBurst))
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/health", healthHandler(d.Ping))
	r.Get("/metrics", metricsHandler(d.Metrics, time.Now()))

	r.Route("/api", func(r chi.Router) {
		r.Get("/", handlers.Versions)
		r.Post("/requestAuthToken", authHandler.RequestAuthToken)

		for _, version := range handlers.APIVersions {
			listing := handlers.Listings[version]
			h := handlers.NewUSEFHandler(listing, d.Power)

			r.Route("/"+version, func(r chi.Router) {
				r.With(mw.ResponseType("GetServiceResponse")).Get("/getService", h.GetService)

				// USEF services: authenticate, then check the sender's role
				usef := func(name, responseType string) chi.Router {
					return r.With(
						mw.ResponseType(responseType),
						mw.TokenAuth(d.Auth),
						mw.RolesAccepted(listing.Access(name)...),
					)
				}
				getMeterData := usef("getMeterData", "GetMeterDataResponse")
				getMeterData.Get("/getMeterData", h.GetMeterData)
				getMeterData.Post("/getMeterData", h.GetMeterData)
				usef("postMeterData", "PostMeterDataResponse").Post("/postMeterData", h.PostMeterData)

				if listing.Offers("getPrognosis") {
					usef("getPrognosis", "GetPrognosisResponse").Get("/getPrognosis", h.GetPrognosis)
				}
				if listing.Offers("postPrognosis") {
					usef("postPrognosis", "PostPrognosisResponse").Post("/postPrognosis", h.PostPrognosis)
				}
			})
		}

		r.Route("/dev", func(r chi.Router) {
			r.Use(mw.TokenAuth(d.Auth))
			r.Use(mw.RolesAccepted(domain.RoleAdmin))

			r.Get("/sensors/{id}/status", sensorHandler.Status)
			r.Get("/sensors/{id}/data", sensorHandler.Data)
			r.Get("/weather-sensors/closest", weatherHandler.Closest)
		})
	})

	return r
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func metricsHandler(metrics *mw.Metrics, start time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(start)
		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}
		for k, v := range metrics.Snapshot() {
			response[k] = v
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and services satisfy interfaces at compile time.
var (
	_ domain.AccountStore        = (*store.AccountStore)(nil)
	_ domain.UserStore           = (*store.UserStore)(nil)
	_ domain.SensorStore         = (*store.SensorStore)(nil)
	_ domain.DataSourceStore     = (*store.DataSourceStore)(nil)
	_ domain.BeliefStore         = (*store.BeliefStore)(nil)
	_ domain.AssetStore          = (*store.AssetStore)(nil)
	_ domain.MarketStore         = (*store.MarketStore)(nil)
	_ domain.WeatherSensorStore  = (*store.WeatherSensorStore)(nil)
	_ domain.AnnotationStore     = (*store.AnnotationStore)(nil)
	_ domain.ForecastingJobStore = (*store.ForecastingJobStore)(nil)
	_ domain.DailyProfileStore   = (*store.DailyProfileStore)(nil)

	_ Authenticator            = (*service.AuthService)(nil)
	_ handlers.PowerExchanger  = (*service.PowerService)(nil)
	_ handlers.SensorInspector = (*service.SensorService)(nil)
	_ handlers.WeatherLocator  = (*service.WeatherService)(nil)
)
