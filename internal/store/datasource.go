package store

import (
	"context"
	"errors"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DataSourceStore struct {
	db *pgxpool.Pool
}

func NewDataSourceStore(db *pgxpool.Pool) *DataSourceStore {
	return &DataSourceStore{db: db}
}

// GetOrCreate relies on the unique (name, type, user_id, model, version)
// constraint: a conflicting insert is turned into an update that returns the
// existing row.
func (s *DataSourceStore) GetOrCreate(ctx context.Context, ds *domain.DataSource) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO data_sources (name, type, user_id, model, version)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name, type, user_id, model, version) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		ds.Name, string(ds.Type), ds.UserID, ds.Model, ds.Version,
	).Scan(&ds.ID)
}

func (s *DataSourceStore) GetByID(ctx context.Context, id int64) (*domain.DataSource, error) {
	ds := &domain.DataSource{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, type, user_id, model, version FROM data_sources WHERE id = $1`,
		id,
	).Scan(&ds.ID, &ds.Name, &ds.Type, &ds.UserID, &ds.Model, &ds.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ds, nil
}

// ListBySensor returns the sources that have beliefs about the sensor.
func (s *DataSourceStore) ListBySensor(ctx context.Context, sensorID int64) ([]domain.DataSource, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, type, user_id, model, version FROM data_sources
		 WHERE id IN (SELECT DISTINCT source_id FROM timed_beliefs WHERE sensor_id = $1)
		 ORDER BY id`,
		sensorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.DataSource
	for rows.Next() {
		var ds domain.DataSource
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.Type, &ds.UserID, &ds.Model, &ds.Version); err != nil {
			return nil, err
		}
		sources = append(sources, ds)
	}
	return sources, rows.Err()
}
