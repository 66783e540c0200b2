package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
	"go.uber.org/zap"
)

type DataKind string

const (
	MeterData DataKind = "meter_data"
	Prognosis DataKind = "prognosis"
)

var (
	ErrInvalidPeriod     = errors.New("invalid period")
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrInvalidHorizon    = errors.New("invalid horizon")
)

// ConnectionGroup pairs connections with the values posted for (or returned
// about) the group. NaN marks a missing value.
type ConnectionGroup struct {
	Connections []string
	Values      []float64
}

type PowerPost struct {
	Kind     DataKind
	Groups   []ConnectionGroup
	Start    time.Time
	Duration time.Duration
	// Horizon is relative to the end of the whole period, or to the end of
	// each event when Rolling. Nil means the beliefs are formed now.
	Horizon *time.Duration
	Rolling bool
	User    *domain.User
}

type PostResult struct {
	Saved int64
	Jobs  int
}

type PowerQuery struct {
	Kind       DataKind
	Groups     []ConnectionGroup
	Start      time.Time
	Duration   time.Duration
	Resolution time.Duration // zero means the resolution of the data
	Horizon    *time.Duration
	SourceIDs  []int64
	User       *domain.User
}

type PowerData struct {
	Groups     []ConnectionGroup
	Resolution time.Duration
}

// PowerService exchanges power data about assets. Consumption is exchanged
// as positive values and stored as negative values.
type PowerService struct {
	assets  *AssetService
	sensors domain.SensorStore
	beliefs domain.BeliefStore
	sources domain.DataSourceStore
	jobs    domain.ForecastingJobStore
	events  domain.EventPublisher
	logger  *zap.Logger

	now func() time.Time
}

func NewPowerService(
	assets *AssetService,
	sensors domain.SensorStore,
	beliefs domain.BeliefStore,
	sources domain.DataSourceStore,
	jobs domain.ForecastingJobStore,
	events domain.EventPublisher,
	logger *zap.Logger,
) *PowerService {
	return &PowerService{
		assets:  assets,
		sensors: sensors,
		beliefs: beliefs,
		sources: sources,
		jobs:    jobs,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

type postTarget struct {
	asset   *domain.Asset
	sensor  *domain.Sensor
	address string
	values  []float64
}

// Post stores the posted values as beliefs of the posting user. Every
// connection is resolved before anything is stored. New meter data triggers
// forecasting jobs for each asset.
func (s *PowerService) Post(ctx context.Context, p PowerPost) (*PostResult, error) {
	if p.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidPeriod)
	}
	if p.Horizon != nil {
		if p.Kind == MeterData && *p.Horizon > 0 {
			return nil, fmt.Errorf("%w: meter data cannot be recorded ahead of time", ErrInvalidHorizon)
		}
		if p.Kind == Prognosis && *p.Horizon < 0 {
			return nil, fmt.Errorf("%w: prognoses must be made ahead of time", ErrInvalidHorizon)
		}
	}
	end := p.Start.Add(p.Duration)

	var targets []postTarget
	for _, g := range p.Groups {
		if len(g.Connections) == 0 {
			return nil, fmt.Errorf("%w: no connection given", ErrUnknownConnection)
		}
		if len(g.Values) == 0 {
			return nil, fmt.Errorf("%w: no values given", ErrInvalidResolution)
		}
		if p.Duration%time.Duration(len(g.Values)) != 0 {
			return nil, fmt.Errorf("%w: %d values do not divide %s", ErrInvalidResolution, len(g.Values), timeseries.FormatDuration(p.Duration))
		}
		resolution := p.Duration / time.Duration(len(g.Values))
		for _, c := range g.Connections {
			a, sensor, err := s.resolve(ctx, c, p.User)
			if err != nil {
				return nil, err
			}
			if !p.Start.Equal(p.Start.Truncate(sensor.EventResolution)) {
				return nil, fmt.Errorf("%w: start must be a multiple of %s", ErrInvalidPeriod, timeseries.FormatDuration(sensor.EventResolution))
			}
			values, err := upsample(g.Values, resolution, sensor.EventResolution)
			if err != nil {
				return nil, err
			}
			targets = append(targets, postTarget{asset: a, sensor: sensor, address: c, values: values})
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no connection given", ErrUnknownConnection)
	}

	source := &domain.DataSource{Name: p.User.Username, Type: domain.SourceTypeUser, UserID: &p.User.ID}
	if err := s.sources.GetOrCreate(ctx, source); err != nil {
		return nil, fmt.Errorf("data source: %w", err)
	}

	now := s.now()
	var beliefs []domain.Belief
	for _, t := range targets {
		res := t.sensor.EventResolution
		last := end.Add(-res)
		for i, v := range t.values {
			if math.IsNaN(v) {
				continue
			}
			start := p.Start.Add(time.Duration(i) * res)
			beliefs = append(beliefs, domain.Belief{
				SensorID:      t.sensor.ID,
				EventStart:    start,
				BeliefHorizon: beliefHorizon(p, t.sensor, start, last, now),
				SourceID:      source.ID,
				EventValue:    flipSign(v),
			})
		}
	}
	saved, err := s.beliefs.Save(ctx, beliefs)
	if err != nil {
		return nil, fmt.Errorf("save beliefs: %w", err)
	}

	var jobs []domain.ForecastingJob
	if p.Kind == MeterData {
		for _, h := range domain.ForecastHorizons {
			for _, t := range targets {
				assetID := t.asset.ID
				jobs = append(jobs, domain.ForecastingJob{
					SensorID:        t.sensor.ID,
					AssetID:         &assetID,
					Horizon:         h,
					Start:           p.Start.Add(h),
					End:             end.Add(h),
					ModelSearchTerm: DefaultModelSearchTerm,
				})
			}
		}
		if err := s.jobs.Create(ctx, jobs); err != nil {
			return nil, fmt.Errorf("create forecasting jobs: %w", err)
		}
	}

	for _, t := range targets {
		err := s.events.PublishSensorData(ctx, domain.SensorDataEvent{
			SensorID: t.sensor.ID,
			SourceID: source.ID,
			Start:    p.Start,
			End:      end,
			Count:    int64(len(t.values)),
			Kind:     string(p.Kind),
		})
		if err != nil {
			s.logger.Warn("failed to publish sensor data event", zap.Int64("sensor_id", t.sensor.ID), zap.Error(err))
		}
	}

	s.logger.Info("power data posted",
		zap.String("kind", string(p.Kind)),
		zap.Int64("user_id", p.User.ID),
		zap.Int("connections", len(targets)),
		zap.Int64("saved", saved),
		zap.Int("jobs", len(jobs)),
	)
	return &PostResult{Saved: saved, Jobs: len(jobs)}, nil
}

// Get returns, per group, the summed values of its connections. Events
// without data are NaN.
func (s *PowerService) Get(ctx context.Context, q PowerQuery) (*PowerData, error) {
	if q.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidPeriod)
	}
	end := q.Start.Add(q.Duration)
	out := &PowerData{Resolution: q.Resolution}

	for _, g := range q.Groups {
		if len(g.Connections) == 0 {
			return nil, fmt.Errorf("%w: no connection given", ErrUnknownConnection)
		}
		var total *timeseries.Frame
		for _, c := range g.Connections {
			_, sensor, err := s.resolve(ctx, c, q.User)
			if err != nil {
				return nil, err
			}
			res := q.Resolution
			if res == 0 {
				res = sensor.EventResolution
			}
			if res < sensor.EventResolution || res%sensor.EventResolution != 0 || q.Duration%res != 0 {
				return nil, fmt.Errorf("%w: %s does not fit data at %s", ErrInvalidResolution, timeseries.FormatDuration(res), timeseries.FormatDuration(sensor.EventResolution))
			}
			if !q.Start.Equal(q.Start.Truncate(res)) {
				return nil, fmt.Errorf("%w: start must be a multiple of %s", ErrInvalidPeriod, timeseries.FormatDuration(res))
			}
			out.Resolution = res

			frame, err := s.load(ctx, sensor, q, end)
			if err != nil {
				return nil, err
			}
			if res != sensor.EventResolution {
				if frame, err = frame.Resample(res).Aggregate("mean"); err != nil {
					return nil, err
				}
			}
			if total == nil {
				total = frame
			} else {
				total = total.Combine(timeseries.Add, frame)
			}
		}

		values := total.Values()
		for i, v := range values {
			values[i] = flipSign(v)
		}
		out.Groups = append(out.Groups, ConnectionGroup{Connections: g.Connections, Values: values})
	}
	return out, nil
}

func (s *PowerService) load(ctx context.Context, sensor *domain.Sensor, q PowerQuery, end time.Time) (*timeseries.Frame, error) {
	search := domain.BeliefSearch{
		SensorID:              sensor.ID,
		EventStartsAfter:      q.Start,
		EventEndsBefore:       end,
		SourceIDs:             q.SourceIDs,
		HorizonsAtLeast:       q.Horizon,
		MostRecentBeliefsOnly: true,
	}
	beliefs, err := s.beliefs.Search(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("search beliefs: %w", err)
	}
	frame := timeseries.ToFrame(sensor, timeseries.Select(sensor, beliefs, search))
	return frame.Reindex(q.Start, end), nil
}

func (s *PowerService) resolve(ctx context.Context, connection string, u *domain.User) (*domain.Asset, *domain.Sensor, error) {
	a, err := s.assets.ResolveConnection(ctx, connection, u)
	if err != nil {
		return nil, nil, err
	}
	sensor, err := s.sensors.GetByID(ctx, a.SensorID)
	if err != nil {
		return nil, nil, fmt.Errorf("power sensor of asset %d: %w", a.ID, err)
	}
	return a, sensor, nil
}

// beliefHorizon derives the horizon of a posted value about the event at
// start. A fixed horizon refers to the knowledge time of the last event.
func beliefHorizon(p PowerPost, sensor *domain.Sensor, start, last time.Time, now time.Time) time.Duration {
	switch {
	case p.Horizon == nil:
		return sensor.HorizonAt(start, now)
	case p.Rolling:
		return *p.Horizon
	default:
		beliefTime := sensor.KnowledgeTime(last).Add(-*p.Horizon)
		return sensor.HorizonAt(start, beliefTime)
	}
}

// upsample repeats values posted at a coarser resolution. Power is an
// average over the event, so repeating keeps it intact.
func upsample(values []float64, from, to time.Duration) ([]float64, error) {
	if from < to || from%to != 0 {
		return nil, fmt.Errorf("%w: %s is not a multiple of %s", ErrInvalidResolution, timeseries.FormatDuration(from), timeseries.FormatDuration(to))
	}
	k := int(from / to)
	if k == 1 {
		return values, nil
	}
	out := make([]float64, 0, len(values)*k)
	for _, v := range values {
		for i := 0; i < k; i++ {
			out = append(out, v)
		}
	}
	return out, nil
}

// flipSign converts between exchanged and stored values without producing -0.
func flipSign(v float64) float64 {
	return 0 - v
}
