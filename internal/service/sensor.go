package service

import (
	"context"
	"errors"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/schemas"
	"github.com/FlexMeasures/flexmeasures/internal/store"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
)

var ErrSensorNotFound = errors.New("sensor not found")

type SensorService struct {
	sensors domain.SensorStore
	beliefs domain.BeliefStore
}

func NewSensorService(sensors domain.SensorStore, beliefs domain.BeliefStore) *SensorService {
	return &SensorService{sensors: sensors, beliefs: beliefs}
}

func (s *SensorService) Get(ctx context.Context, id int64) (*domain.Sensor, error) {
	sensor, err := s.sensors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSensorNotFound
		}
		return nil, err
	}
	return sensor, nil
}

// Status evaluates how fresh the sensor's data is at now.
func (s *SensorService) Status(ctx context.Context, id int64, spec *schemas.StatusSpec, now time.Time) (*timeseries.Status, error) {
	sensor, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	q := spec.StalenessSearch.BeliefSearch(id)
	beliefs, err := s.beliefs.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	st := timeseries.EvaluateStatus(sensor, beliefs, q, time.Duration(spec.MaxStaleness), now)
	return &st, nil
}

// Data returns the most recent beliefs matching q as a frame.
func (s *SensorService) Data(ctx context.Context, q domain.BeliefSearch) (*timeseries.Frame, error) {
	sensor, err := s.Get(ctx, q.SensorID)
	if err != nil {
		return nil, err
	}
	beliefs, err := s.beliefs.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	q.MostRecentBeliefsOnly = true
	return timeseries.ToFrame(sensor, timeseries.Select(sensor, beliefs, q)), nil
}
