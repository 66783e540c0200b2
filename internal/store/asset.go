package store

import (
	"context"
	"errors"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AssetStore struct {
	db *pgxpool.Pool
}

func NewAssetStore(db *pgxpool.Pool) *AssetStore {
	return &AssetStore{db: db}
}

const assetColumns = `a.id, a.name, a.display_name, a.asset_type_name, a.unit, a.capacity_in_mw,
	a.min_soc_in_mwh, a.max_soc_in_mwh, a.soc_in_mwh, a.soc_datetime, a.latitude, a.longitude,
	a.owner_id, a.market_id, a.sensor_id, a.flex_context,
	t.name, t.display_name, t.is_consumer, t.is_producer, t.can_curtail, t.can_shift,
	t.daily_seasonality, t.weekly_seasonality, t.yearly_seasonality`

func (s *AssetStore) Create(ctx context.Context, a *domain.Asset) error {
	var flexContext []byte
	if len(a.FlexContext) > 0 {
		flexContext = a.FlexContext
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO assets (name, display_name, asset_type_name, unit, capacity_in_mw,
		                     min_soc_in_mwh, max_soc_in_mwh, soc_in_mwh, soc_datetime,
		                     latitude, longitude, owner_id, market_id, sensor_id, flex_context)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id`,
		a.Name, a.DisplayName, a.AssetTypeName, a.Unit, a.CapacityInMW,
		a.MinSOCInMWh, a.MaxSOCInMWh, a.SOCInMWh, a.SOCDatetime,
		a.Latitude, a.Longitude, a.OwnerID, a.MarketID, a.SensorID, flexContext,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *AssetStore) GetByID(ctx context.Context, id int64) (*domain.Asset, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+assetColumns+`
		 FROM assets a JOIN asset_types t ON t.name = a.asset_type_name
		 WHERE a.id = $1`,
		id,
	)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AssetStore) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Asset, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+assetColumns+`
		 FROM assets a JOIN asset_types t ON t.name = a.asset_type_name
		 WHERE a.owner_id = $1
		 ORDER BY a.id`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func (s *AssetStore) CreateType(ctx context.Context, t *domain.AssetType) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO asset_types (name, display_name, is_consumer, is_producer, can_curtail, can_shift,
		                          daily_seasonality, weekly_seasonality, yearly_seasonality)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.Name, t.DisplayName, t.IsConsumer, t.IsProducer, t.CanCurtail, t.CanShift,
		t.DailySeasonality, t.WeeklySeasonality, t.YearlySeasonality,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *AssetStore) GetType(ctx context.Context, name string) (*domain.AssetType, error) {
	t := &domain.AssetType{}
	err := s.db.QueryRow(ctx,
		`SELECT name, display_name, is_consumer, is_producer, can_curtail, can_shift,
		        daily_seasonality, weekly_seasonality, yearly_seasonality
		 FROM asset_types WHERE name = $1`,
		name,
	).Scan(&t.Name, &t.DisplayName, &t.IsConsumer, &t.IsProducer, &t.CanCurtail, &t.CanShift,
		&t.DailySeasonality, &t.WeeklySeasonality, &t.YearlySeasonality)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	a := &domain.Asset{AssetType: &domain.AssetType{}}
	var flexContext []byte
	err := row.Scan(
		&a.ID, &a.Name, &a.DisplayName, &a.AssetTypeName, &a.Unit, &a.CapacityInMW,
		&a.MinSOCInMWh, &a.MaxSOCInMWh, &a.SOCInMWh, &a.SOCDatetime, &a.Latitude, &a.Longitude,
		&a.OwnerID, &a.MarketID, &a.SensorID, &flexContext,
		&a.AssetType.Name, &a.AssetType.DisplayName, &a.AssetType.IsConsumer, &a.AssetType.IsProducer,
		&a.AssetType.CanCurtail, &a.AssetType.CanShift,
		&a.AssetType.DailySeasonality, &a.AssetType.WeeklySeasonality, &a.AssetType.YearlySeasonality,
	)
	if err != nil {
		return nil, err
	}
	a.FlexContext = flexContext
	return a, nil
}
