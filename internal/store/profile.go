package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// DailyProfileStore keeps one vector of values per sensor and day, searched
// by cosine distance.
type DailyProfileStore struct {
	db *pgxpool.Pool
}

func NewDailyProfileStore(db *pgxpool.Pool) *DailyProfileStore {
	return &DailyProfileStore{db: db}
}

func (s *DailyProfileStore) Upsert(ctx context.Context, p *domain.DailyProfile) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO daily_profiles (sensor_id, day, profile) VALUES ($1, $2, $3)
		 ON CONFLICT (sensor_id, day) DO UPDATE SET profile = EXCLUDED.profile`,
		p.SensorID, p.Day, pgvector.NewVector(p.Values),
	)
	return err
}

func (s *DailyProfileStore) Get(ctx context.Context, sensorID int64, day time.Time) (*domain.DailyProfile, error) {
	p := &domain.DailyProfile{}
	var vec pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT sensor_id, day, profile FROM daily_profiles WHERE sensor_id = $1 AND day = $2`,
		sensorID, day,
	).Scan(&p.SensorID, &p.Day, &vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Values = vec.Slice()
	return p, nil
}

func (s *DailyProfileStore) FindSimilar(ctx context.Context, sensorID int64, values []float32, before time.Time, limit int) ([]domain.DailyProfileWithDistance, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(ctx,
		`SELECT sensor_id, day, profile, profile <=> $2 AS distance
		 FROM daily_profiles
		 WHERE sensor_id = $1 AND day < $3 AND vector_dims(profile) = vector_dims($2)
		 ORDER BY profile <=> $2
		 LIMIT $4`,
		sensorID, pgvector.NewVector(values), before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.DailyProfileWithDistance
	for rows.Next() {
		var p domain.DailyProfileWithDistance
		var vec pgvector.Vector
		var distance float64
		if err := rows.Scan(&p.SensorID, &p.Day, &vec, &distance); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.Values = vec.Slice()
		p.Distance = float32(distance)
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
