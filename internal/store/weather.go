package store

import (
	"context"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WeatherSensorStore struct {
	db *pgxpool.Pool
}

func NewWeatherSensorStore(db *pgxpool.Pool) *WeatherSensorStore {
	return &WeatherSensorStore{db: db}
}

func (s *WeatherSensorStore) Create(ctx context.Context, ws *domain.WeatherSensor) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO weather_sensors (name, display_name, weather_sensor_type_name, unit, latitude, longitude, sensor_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		ws.Name, ws.DisplayName, ws.WeatherSensorTypeName, ws.Unit, ws.Latitude, ws.Longitude, ws.SensorID,
	).Scan(&ws.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *WeatherSensorStore) ListByType(ctx context.Context, typeName string) ([]domain.WeatherSensor, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, display_name, weather_sensor_type_name, unit, latitude, longitude, sensor_id
		 FROM weather_sensors WHERE weather_sensor_type_name = $1
		 ORDER BY id`,
		typeName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sensors []domain.WeatherSensor
	for rows.Next() {
		var ws domain.WeatherSensor
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.DisplayName, &ws.WeatherSensorTypeName, &ws.Unit, &ws.Latitude, &ws.Longitude, &ws.SensorID); err != nil {
			return nil, err
		}
		sensors = append(sensors, ws)
	}
	return sensors, rows.Err()
}
