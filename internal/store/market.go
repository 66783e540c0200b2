package store

import (
	"context"
	"errors"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MarketStore struct {
	db *pgxpool.Pool
}

func NewMarketStore(db *pgxpool.Pool) *MarketStore {
	return &MarketStore{db: db}
}

func (s *MarketStore) GetByID(ctx context.Context, id int64) (*domain.Market, error) {
	return s.get(ctx, `SELECT id, name, display_name, unit, sensor_id FROM markets WHERE id = $1`, id)
}

func (s *MarketStore) GetByName(ctx context.Context, name string) (*domain.Market, error) {
	return s.get(ctx, `SELECT id, name, display_name, unit, sensor_id FROM markets WHERE name = $1`, name)
}

func (s *MarketStore) get(ctx context.Context, query string, arg any) (*domain.Market, error) {
	m := &domain.Market{}
	err := s.db.QueryRow(ctx, query, arg).Scan(&m.ID, &m.Name, &m.DisplayName, &m.Unit, &m.SensorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}
