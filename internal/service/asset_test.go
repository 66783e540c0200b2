package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssetFixture(t *testing.T) (*AssetService, *mockAssetStore, *mockSensorStore) {
	t.Helper()
	assets := newMockAssetStore()
	sensors := newMockSensorStore()
	svc := NewAssetService(assets, sensors, "ea1", "2018-06.localhost")
	_, err := svc.CreateType(context.Background(), domain.AssetType{Name: "Charging Station", IsConsumer: true, CanShift: true})
	require.NoError(t, err)
	return svc, assets, sensors
}

func TestAssetService_CreateType(t *testing.T) {
	svc, assets, _ := newAssetFixture(t)

	typ := assets.types["charging_station"]
	require.NotNil(t, typ)
	assert.Equal(t, "Charging station", typ.DisplayName)

	_, err := svc.CreateType(context.Background(), domain.AssetType{Name: "charging station"})
	assert.ErrorIs(t, err, ErrAssetTypeConflict)
}

func TestAssetService_Create(t *testing.T) {
	svc, _, sensors := newAssetFixture(t)
	ctx := context.Background()

	a := &domain.Asset{Name: "CS 1 (MW)", AssetTypeName: "charging_station", CapacityInMW: 2, OwnerID: 7}
	require.NoError(t, svc.Create(ctx, a))

	assert.Equal(t, "CS 1", a.Name)
	assert.Equal(t, "Cs 1", a.DisplayName)
	assert.Equal(t, "MW", a.Unit)
	require.NotNil(t, a.AssetType)
	assert.True(t, a.IsPureConsumer())

	sensor, err := sensors.GetByID(ctx, a.SensorID)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, sensor.EventResolution)
	assert.Equal(t, "MW", sensor.Unit)

	assert.Equal(t, "ea1.2018-06.localhost:7:1", svc.EntityAddress(a))

	owned, err := svc.ListByOwner(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestAssetService_Create_Invalid(t *testing.T) {
	svc, _, _ := newAssetFixture(t)
	ctx := context.Background()

	err := svc.Create(ctx, &domain.Asset{Name: "x", AssetTypeName: "rocket", CapacityInMW: 1})
	assert.ErrorIs(t, err, ErrAssetTypeNotFound)

	err = svc.Create(ctx, &domain.Asset{Name: "x", AssetTypeName: "charging_station", CapacityInMW: -1})
	assert.ErrorIs(t, err, ErrInvalidAsset)

	err = svc.Create(ctx, &domain.Asset{Name: "x", AssetTypeName: "charging_station", Latitude: 91})
	assert.ErrorIs(t, err, ErrInvalidAsset)

	err = svc.Create(ctx, &domain.Asset{
		Name:          "x",
		AssetTypeName: "charging_station",
		FlexContext:   json.RawMessage(`{"site-power-capacity": "-5 kW"}`),
	})
	assert.ErrorIs(t, err, ErrInvalidFlexContext)

	err = svc.Create(ctx, &domain.Asset{
		Name:          "x",
		AssetTypeName: "charging_station",
		FlexContext:   json.RawMessage(`{"consumption-price-sensor": 99}`),
	})
	assert.ErrorIs(t, err, ErrInvalidFlexContext)
	assert.ErrorContains(t, err, "No sensor found with id 99.")
}

func TestAssetService_CreateWithFlexContext(t *testing.T) {
	svc, _, _ := newAssetFixture(t)
	ctx := context.Background()

	first := &domain.Asset{Name: "CS 1", AssetTypeName: "charging_station", CapacityInMW: 2}
	require.NoError(t, svc.Create(ctx, first))

	second := &domain.Asset{
		Name:          "CS 2",
		AssetTypeName: "charging_station",
		CapacityInMW:  2,
		FlexContext:   json.RawMessage(`{"site-power-capacity": "1.5 MW", "inflexible-device-sensors": [1]}`),
	}
	assert.NoError(t, svc.Create(ctx, second))
}

func TestAssetService_ResolveConnection(t *testing.T) {
	svc, _, _ := newAssetFixture(t)
	ctx := context.Background()

	owner := &domain.User{ID: 1, Roles: []domain.Role{domain.RoleProsumer}}
	other := &domain.User{ID: 2, Roles: []domain.Role{domain.RoleProsumer}}
	admin := &domain.User{ID: 3, Roles: []domain.Role{domain.RoleAdmin}}

	a := &domain.Asset{Name: "CS 1", AssetTypeName: "charging_station", CapacityInMW: 2, OwnerID: owner.ID}
	require.NoError(t, svc.Create(ctx, a))

	got, err := svc.ResolveConnection(ctx, "ea1.2018-06.localhost:1:1", owner)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = svc.ResolveConnection(ctx, "ea1.2018-06.localhost:1:1", admin)
	assert.NoError(t, err)

	tests := []struct {
		name    string
		address string
		user    *domain.User
		wantErr error
	}{
		{"asset name instead of address", "CS 1", owner, ErrInvalidDomain},
		{"other naming authority", "ea1.2018-06.example.com:1:1", owner, ErrInvalidDomain},
		{"other scheme", "ea2.2018-06.localhost:1:1", owner, ErrInvalidDomain},
		{"unknown asset", "ea1.2018-06.localhost:1:99", owner, ErrUnknownConnection},
		{"wrong owner in address", "ea1.2018-06.localhost:2:1", owner, ErrUnknownConnection},
		{"someone else's asset", "ea1.2018-06.localhost:1:1", other, ErrUnknownConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ResolveConnection(ctx, tt.address, tt.user)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
