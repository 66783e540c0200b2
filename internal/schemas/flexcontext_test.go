package schemas

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sensorsByID map[int64]*domain.Sensor

func (m sensorsByID) GetByID(_ context.Context, id int64) (*domain.Sensor, error) {
	s, ok := m[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

var knownSensors = sensorsByID{
	1: {ID: 1, Name: "epex_da"},
	2: {ID: 2, Name: "pv"},
	3: {ID: 3, Name: "site limit"},
}

func TestParsePower(t *testing.T) {
	tests := map[string]float64{
		"1 MW":     1,
		"1.5MW":    1.5,
		"500 kW":   0.5,
		"2 GW":     2000,
		"250000 W": 0.25,
		"-1 MW":    -1,
	}
	for in, want := range tests {
		got, err := ParsePower(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-12, in)
	}

	for _, in := range []string{"", "MW", "1", "1 MWh", "one MW"} {
		_, err := ParsePower(in)
		assert.Error(t, err, in)
	}
}

func TestLoadFlexContext(t *testing.T) {
	fc, err := LoadFlexContext(context.Background(), []byte(`{
		"site-power-capacity": "1500 kW",
		"site-consumption-capacity": {"sensor": 3},
		"power-limit-deviation-cost": 1000,
		"consumption-price-sensor": 1,
		"inflexible-device-sensors": [2]
	}`), knownSensors)
	require.NoError(t, err)

	require.NotNil(t, fc.SitePowerCapacity)
	assert.InDelta(t, 1.5, fc.SitePowerCapacity.MW, 1e-12)
	require.NotNil(t, fc.SiteConsumptionCapacity.SensorID)
	assert.Equal(t, int64(3), *fc.SiteConsumptionCapacity.SensorID)
	assert.Equal(t, 1000.0, *fc.PowerLimitDeviationCost)
	assert.Equal(t, int64(1), *fc.ConsumptionPriceSensor)
	assert.Equal(t, []int64{2}, fc.InflexibleDeviceSensors)
	assert.Nil(t, fc.ProductionPriceSensor)

	b, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"site-power-capacity": "1.5 MW",
		"site-consumption-capacity": {"sensor": 3},
		"power-limit-deviation-cost": 1000,
		"consumption-price-sensor": 1,
		"inflexible-device-sensors": [2]
	}`, string(b))
}

func TestLoadFlexContext_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		field string
	}{
		{"negative capacity", `{"site-power-capacity": "-1 MW"}`, "site-power-capacity"},
		{"energy unit", `{"site-production-capacity": "1 MWh"}`, "site-production-capacity"},
		{"plain number", `{"site-production-capacity": 5}`, "site-production-capacity"},
		{"unknown price sensor", `{"production-price-sensor": 99}`, "production-price-sensor"},
		{"unknown capacity sensor", `{"site-power-capacity": {"sensor": 99}}`, "site-power-capacity"},
		{"unknown device sensor", `{"curtailable-device-sensors": [1, 99]}`, "curtailable-device-sensors"},
		{"bad cost", `{"soft-power-limit-deviation-cost": "high"}`, "soft-power-limit-deviation-cost"},
		{"unknown field", `{"site-power": "1 MW"}`, "site-power"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFlexContext(context.Background(), []byte(tt.in), knownSensors)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestLoadFlexContext_WithoutLookup(t *testing.T) {
	fc, err := LoadFlexContext(context.Background(), []byte(`{"production-price-sensor": 99}`), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(99), *fc.ProductionPriceSensor)
}
