package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/store"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
	"go.uber.org/zap"
)

const (
	DefaultModelSearchTerm = "analog"

	defaultForecastInterval = 30 * time.Second
	defaultForecastBatch    = 10
	defaultAnalogDays       = 5
	oneDay                  = 24 * time.Hour
)

var (
	ErrUnknownModel     = errors.New("unknown forecasting model")
	ErrNotEnoughHistory = errors.New("not enough history to forecast")
)

// forecastModel is a forecasting model that can be asked for by search term.
// When it fails, the job is retried with the fallback model.
type forecastModel struct {
	name     string
	version  int
	fallback string
	run      func(s *ForecastingService, ctx context.Context, sensor *domain.Sensor, job domain.ForecastingJob) ([]timeseries.Row, error)
}

func (m forecastModel) identifier() string {
	return fmt.Sprintf("%s (v%d)", m.name, m.version)
}

var forecastModels = map[string]forecastModel{
	"analog": {name: "analog ensemble model", version: 1, fallback: "naive", run: (*ForecastingService).analogForecast},
	"naive":  {name: "naive model", version: 1, run: (*ForecastingService).naiveForecast},
}

type ForecastingService struct {
	jobs     domain.ForecastingJobStore
	sensors  domain.SensorStore
	beliefs  domain.BeliefStore
	sources  domain.DataSourceStore
	profiles domain.DailyProfileStore
	logger   *zap.Logger

	interval   time.Duration
	batchSize  int
	analogDays int
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

func NewForecastingService(
	jobs domain.ForecastingJobStore,
	sensors domain.SensorStore,
	beliefs domain.BeliefStore,
	sources domain.DataSourceStore,
	profiles domain.DailyProfileStore,
	logger *zap.Logger,
) *ForecastingService {
	return &ForecastingService{
		jobs:       jobs,
		sensors:    sensors,
		beliefs:    beliefs,
		sources:    sources,
		profiles:   profiles,
		logger:     logger,
		interval:   defaultForecastInterval,
		batchSize:  defaultForecastBatch,
		analogDays: defaultAnalogDays,
		stopCh:     make(chan struct{}),
	}
}

func (s *ForecastingService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *ForecastingService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("forecasting worker started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				s.RunPending(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("forecasting worker stopped")
				return
			}
		}
	}()
}

func (s *ForecastingService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunPending claims a batch of pending jobs and runs them. It returns the
// number of jobs claimed.
func (s *ForecastingService) RunPending(ctx context.Context) int {
	jobs, err := s.jobs.ClaimPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("failed to claim forecasting jobs", zap.Error(err))
		return 0
	}

	for _, job := range jobs {
		if err := s.Run(ctx, job); err != nil {
			s.logger.Warn("forecasting job failed",
				zap.Int64("job_id", job.ID),
				zap.Int64("sensor_id", job.SensorID),
				zap.Error(err))
			if err := s.jobs.MarkFailed(ctx, job.ID, err.Error()); err != nil {
				s.logger.Error("failed to mark forecasting job failed", zap.Int64("job_id", job.ID), zap.Error(err))
			}
			continue
		}
		if err := s.jobs.MarkFinished(ctx, job.ID); err != nil {
			s.logger.Error("failed to mark forecasting job finished", zap.Int64("job_id", job.ID), zap.Error(err))
		}
	}
	return len(jobs)
}

// Run makes and saves the forecasts a job asks for, falling back on simpler
// models when a model fails.
func (s *ForecastingService) Run(ctx context.Context, job domain.ForecastingJob) error {
	sensor, err := s.sensors.GetByID(ctx, job.SensorID)
	if err != nil {
		return fmt.Errorf("sensor %d: %w", job.SensorID, err)
	}

	term := job.ModelSearchTerm
	if term == "" {
		term = DefaultModelSearchTerm
	}
	for {
		m, ok := forecastModels[term]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownModel, term)
		}
		rows, err := m.run(s, ctx, sensor, job)
		if err == nil {
			return s.save(ctx, sensor, job, m, rows)
		}
		if m.fallback == "" {
			return err
		}
		s.logger.Info("forecasting model failed, falling back",
			zap.String("model", m.identifier()),
			zap.String("fallback", m.fallback),
			zap.Error(err))
		term = m.fallback
	}
}

func (s *ForecastingService) save(ctx context.Context, sensor *domain.Sensor, job domain.ForecastingJob, m forecastModel, rows []timeseries.Row) error {
	source := &domain.DataSource{
		Name:    "FlexMeasures",
		Type:    domain.SourceTypeForecaster,
		Model:   m.identifier(),
		Version: strconv.Itoa(m.version),
	}
	if err := s.sources.GetOrCreate(ctx, source); err != nil {
		return fmt.Errorf("data source: %w", err)
	}

	beliefs := make([]domain.Belief, 0, len(rows))
	for _, r := range rows {
		beliefs = append(beliefs, domain.Belief{
			SensorID:      sensor.ID,
			EventStart:    r.Start,
			BeliefHorizon: job.Horizon,
			SourceID:      source.ID,
			EventValue:    r.Value,
		})
	}
	saved, err := s.beliefs.Save(ctx, beliefs)
	if err != nil {
		return fmt.Errorf("save forecasts: %w", err)
	}
	s.logger.Debug("forecasts saved",
		zap.Int64("job_id", job.ID),
		zap.String("model", m.identifier()),
		zap.Int64("saved", saved))
	return nil
}

// analogForecast looks up the historical days most similar to the last day
// known when the forecast is made, and averages what happened the same
// number of days after them.
func (s *ForecastingService) analogForecast(ctx context.Context, sensor *domain.Sensor, job domain.ForecastingJob) ([]timeseries.Row, error) {
	s.refreshProfiles(ctx, sensor, job.Start.Add(-job.Horizon), job.End.Add(-job.Horizon))

	var rows []timeseries.Row
	for d := job.Start.UTC().Truncate(oneDay); d.Before(job.End); d = d.Add(oneDay) {
		first := d
		if first.Before(job.Start) {
			first = job.Start
		}
		ref := sensor.BeliefTime(first, job.Horizon).UTC().Truncate(oneDay).Add(-oneDay)
		lead := d.Sub(ref)

		profile, err := s.dailyProfile(ctx, sensor, ref)
		if err != nil {
			return nil, err
		}
		similar, err := s.profiles.FindSimilar(ctx, sensor.ID, profile.Values, ref.Add(oneDay-lead), s.analogDays)
		if err != nil {
			return nil, err
		}

		sum := make([]float64, len(profile.Values))
		n := 0
		for _, sim := range similar {
			next, err := s.profiles.Get(ctx, sensor.ID, sim.Day.Add(lead))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if len(next.Values) != len(sum) {
				continue
			}
			for i, v := range next.Values {
				sum[i] += float64(v)
			}
			n++
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: no analog days for %s", ErrNotEnoughHistory, ref.Format(time.DateOnly))
		}

		for i, v := range sum {
			start := d.Add(time.Duration(i) * sensor.EventResolution)
			if start.Before(job.Start) || !start.Before(job.End) {
				continue
			}
			rows = append(rows, timeseries.Row{Start: start, Value: v / float64(n)})
		}
	}
	return rows, nil
}

// naiveForecast repeats the measurements of whole days before, going back
// far enough for them to be known when the forecast is made.
func (s *ForecastingService) naiveForecast(ctx context.Context, sensor *domain.Sensor, job domain.ForecastingJob) ([]timeseries.Row, error) {
	lag := oneDay
	for lag < job.Horizon {
		lag += oneDay
	}
	frame, err := s.measurements(ctx, sensor, job.Start.Add(-lag), job.End.Add(-lag))
	if err != nil {
		return nil, err
	}

	var rows []timeseries.Row
	for _, r := range frame.Rows() {
		if math.IsNaN(r.Value) {
			continue
		}
		rows = append(rows, timeseries.Row{Start: r.Start.Add(lag), Value: r.Value})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no measurements %s before", ErrNotEnoughHistory, timeseries.FormatDuration(lag))
	}
	return rows, nil
}

// measurements returns the most recent measurements, beliefs formed no
// earlier than the event could be known, about events in [start, end).
func (s *ForecastingService) measurements(ctx context.Context, sensor *domain.Sensor, start, end time.Time) (*timeseries.Frame, error) {
	var zero time.Duration
	q := domain.BeliefSearch{
		SensorID:              sensor.ID,
		EventStartsAfter:      start,
		EventEndsBefore:       end,
		HorizonsAtMost:        &zero,
		MostRecentBeliefsOnly: true,
	}
	beliefs, err := s.beliefs.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search measurements: %w", err)
	}
	return timeseries.ToFrame(sensor, timeseries.Select(sensor, beliefs, q)), nil
}

func (s *ForecastingService) dailyProfile(ctx context.Context, sensor *domain.Sensor, d time.Time) (*domain.DailyProfile, error) {
	p, err := s.profiles.Get(ctx, sensor.ID, d)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.UpdateProfile(ctx, sensor, d)
}

// refreshProfiles recomputes the profiles of complete days in [start, end).
func (s *ForecastingService) refreshProfiles(ctx context.Context, sensor *domain.Sensor, start, end time.Time) {
	for d := start.UTC().Truncate(oneDay); d.Before(end); d = d.Add(oneDay) {
		if _, err := s.UpdateProfile(ctx, sensor, d); err != nil && !errors.Is(err, ErrNotEnoughHistory) {
			s.logger.Warn("failed to update daily profile",
				zap.Int64("sensor_id", sensor.ID),
				zap.Time("day", d),
				zap.Error(err))
		}
	}
}

// UpdateProfile stores the measurements of a UTC day as a profile. Days with
// missing measurements have no profile.
func (s *ForecastingService) UpdateProfile(ctx context.Context, sensor *domain.Sensor, d time.Time) (*domain.DailyProfile, error) {
	frame, err := s.measurements(ctx, sensor, d, d.Add(oneDay))
	if err != nil {
		return nil, err
	}
	frame = frame.Reindex(d, d.Add(oneDay))

	values := make([]float32, 0, frame.Len())
	for _, v := range frame.Values() {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: %s is incomplete", ErrNotEnoughHistory, d.Format(time.DateOnly))
		}
		values = append(values, float32(v))
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s has no measurements", ErrNotEnoughHistory, d.Format(time.DateOnly))
	}

	p := &domain.DailyProfile{SensorID: sensor.ID, Day: d, Values: values}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("store daily profile: %w", err)
	}
	return p, nil
}
