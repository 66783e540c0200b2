package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SensorStore struct {
	db *pgxpool.Pool
}

func NewSensorStore(db *pgxpool.Pool) *SensorStore {
	return &SensorStore{db: db}
}

func (s *SensorStore) Create(ctx context.Context, sensor *domain.Sensor) error {
	if sensor.KnowledgeHorizon.Kind == "" {
		sensor.KnowledgeHorizon.Kind = domain.KnowledgeExPost
	}
	if sensor.Timezone == "" {
		sensor.Timezone = "UTC"
	}
	kh, err := json.Marshal(sensor.KnowledgeHorizon)
	if err != nil {
		return fmt.Errorf("marshal knowledge horizon: %w", err)
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO sensors (name, unit, event_resolution, timezone, knowledge_horizon)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		sensor.Name, sensor.Unit, sensor.EventResolution, sensor.Timezone, kh,
	).Scan(&sensor.ID, &sensor.CreatedAt)
}

func (s *SensorStore) GetByID(ctx context.Context, id int64) (*domain.Sensor, error) {
	sensor := &domain.Sensor{}
	var kh []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, name, unit, event_resolution, timezone, knowledge_horizon, created_at
		 FROM sensors WHERE id = $1`,
		id,
	).Scan(&sensor.ID, &sensor.Name, &sensor.Unit, &sensor.EventResolution, &sensor.Timezone, &kh, &sensor.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(kh, &sensor.KnowledgeHorizon); err != nil {
		return nil, fmt.Errorf("unmarshal knowledge horizon of sensor %d: %w", id, err)
	}
	return sensor, nil
}
