package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/schemas"
	"github.com/FlexMeasures/flexmeasures/internal/store"
)

var (
	ErrAssetNotFound      = errors.New("asset not found")
	ErrAssetTypeNotFound  = errors.New("asset type not found")
	ErrAssetTypeConflict  = errors.New("asset type already exists")
	ErrInvalidAsset       = errors.New("invalid asset")
	ErrInvalidDomain      = errors.New("invalid entity address")
	ErrUnknownConnection  = errors.New("connection not found")
	ErrInvalidFlexContext = errors.New("invalid flex context")
)

type AssetService struct {
	assets  domain.AssetStore
	sensors domain.SensorStore
	markets domain.MarketStore

	scheme    string
	authority string
}

// NewAssetService creates the service. Entity addresses of its assets use the
// given scheme and naming authority, e.g. "ea1" and "2018-06.localhost".
func NewAssetService(assets domain.AssetStore, sensors domain.SensorStore, scheme, authority string) *AssetService {
	return &AssetService{assets: assets, sensors: sensors, scheme: scheme, authority: authority}
}

// SetMarketStore enables checking the market assets are priced on.
func (s *AssetService) SetMarketStore(markets domain.MarketStore) {
	s.markets = markets
}

func (s *AssetService) CreateType(ctx context.Context, t domain.AssetType) (*domain.AssetType, error) {
	t = domain.NewAssetType(t)
	if t.Name == "" {
		return nil, fmt.Errorf("%w: asset type name is required", ErrInvalidAsset)
	}
	if err := s.assets.CreateType(ctx, &t); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAssetTypeConflict
		}
		return nil, err
	}
	return &t, nil
}

// Create validates the asset and its flex context and gives it a power
// sensor at the asset resolution.
func (s *AssetService) Create(ctx context.Context, a *domain.Asset) error {
	*a = domain.NewAsset(*a)
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAsset)
	}
	if a.CapacityInMW < 0 {
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidAsset)
	}
	if a.Latitude < -90 || a.Latitude > 90 || a.Longitude < -180 || a.Longitude > 180 {
		return fmt.Errorf("%w: location out of range", ErrInvalidAsset)
	}

	t, err := s.assets.GetType(ctx, a.AssetTypeName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrAssetTypeNotFound, a.AssetTypeName)
		}
		return err
	}
	a.AssetType = t

	if a.MarketID != nil && s.markets != nil {
		if _, err := s.markets.GetByID(ctx, *a.MarketID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: market %d not found", ErrInvalidAsset, *a.MarketID)
			}
			return err
		}
	}

	if len(a.FlexContext) > 0 {
		if _, err := schemas.LoadFlexContext(ctx, a.FlexContext, s.sensors); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFlexContext, err)
		}
	}

	sensor := &domain.Sensor{
		Name:             a.Name,
		Unit:             a.Unit,
		EventResolution:  a.Resolution(),
		Timezone:         "UTC",
		KnowledgeHorizon: domain.KnowledgeHorizon{Kind: domain.KnowledgeExPost},
	}
	if err := s.sensors.Create(ctx, sensor); err != nil {
		return fmt.Errorf("create power sensor: %w", err)
	}
	a.SensorID = sensor.ID

	return s.assets.Create(ctx, a)
}

func (s *AssetService) GetByID(ctx context.Context, id int64) (*domain.Asset, error) {
	a, err := s.assets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AssetService) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Asset, error) {
	return s.assets.ListByOwner(ctx, ownerID)
}

func (s *AssetService) EntityAddress(a *domain.Asset) string {
	return a.EntityAddress(s.scheme, s.authority)
}

// ResolveConnection finds the asset an entity address refers to. Assets of
// other owners are reported as unknown, except to admins.
func (s *AssetService) ResolveConnection(ctx context.Context, address string, u *domain.User) (*domain.Asset, error) {
	ea, err := domain.ParseEntityAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	if ea.Scheme != s.scheme || ea.DateCode+"."+ea.NamingAuthority != s.authority {
		return nil, fmt.Errorf("%w: %q is not issued by %s.%s", ErrInvalidDomain, address, s.scheme, s.authority)
	}

	a, err := s.assets.GetByID(ctx, ea.AssetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, address)
		}
		return nil, err
	}
	if a.OwnerID != ea.OwnerID || (a.OwnerID != u.ID && !u.HasRole(domain.RoleAdmin)) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, address)
	}
	return a, nil
}
