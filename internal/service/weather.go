package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/store"
)

var (
	ErrInvalidWeatherSensor  = errors.New("invalid weather sensor")
	ErrWeatherSensorConflict = errors.New("a weather sensor of this type already exists at this location")
	ErrNoWeatherSensor       = errors.New("no weather sensor of this type")
)

type WeatherService struct {
	weather domain.WeatherSensorStore
	sensors domain.SensorStore
}

func NewWeatherService(weather domain.WeatherSensorStore, sensors domain.SensorStore) *WeatherService {
	return &WeatherService{weather: weather, sensors: sensors}
}

// Create registers a weather sensor and the sensor its data is recorded on.
func (s *WeatherService) Create(ctx context.Context, ws *domain.WeatherSensor) error {
	*ws = domain.NewWeatherSensor(*ws)
	typ := domain.NewWeatherSensorType(domain.WeatherSensorType{Name: ws.WeatherSensorTypeName})
	if typ.IconName() == "" {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidWeatherSensor, ws.WeatherSensorTypeName)
	}
	ws.WeatherSensorTypeName = typ.Name
	if ws.Name == "" {
		ws.Name = typ.Name
	}
	if ws.Unit == "" {
		return fmt.Errorf("%w: unit is required", ErrInvalidWeatherSensor)
	}
	if ws.Latitude < -90 || ws.Latitude > 90 || ws.Longitude < -180 || ws.Longitude > 180 {
		return fmt.Errorf("%w: location out of range", ErrInvalidWeatherSensor)
	}

	existing, err := s.weather.ListByType(ctx, typ.Name)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Latitude == ws.Latitude && e.Longitude == ws.Longitude {
			return ErrWeatherSensorConflict
		}
	}

	sensor := &domain.Sensor{
		Name:             ws.Name,
		Unit:             ws.Unit,
		EventResolution:  ws.Resolution(),
		Timezone:         "UTC",
		KnowledgeHorizon: domain.KnowledgeHorizon{Kind: domain.KnowledgeExPost},
	}
	if err := s.sensors.Create(ctx, sensor); err != nil {
		return fmt.Errorf("create weather data sensor: %w", err)
	}
	ws.SensorID = sensor.ID

	if err := s.weather.Create(ctx, ws); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrWeatherSensorConflict
		}
		return err
	}
	return nil
}

// Closest returns the weather sensor of the given type nearest to the
// location, with its distance in km.
func (s *WeatherService) Closest(ctx context.Context, typeName string, lat, lng float64) (*domain.WeatherSensor, float64, error) {
	sensors, err := s.weather.ListByType(ctx, domain.NormalizeName(typeName))
	if err != nil {
		return nil, 0, err
	}
	var closest *domain.WeatherSensor
	best := math.Inf(1)
	for i := range sensors {
		if d := sensors[i].GreatCircleDistance(lat, lng); d < best {
			closest, best = &sensors[i], d
		}
	}
	if closest == nil {
		return nil, 0, fmt.Errorf("%w: %q", ErrNoWeatherSensor, typeName)
	}
	return closest, best, nil
}
