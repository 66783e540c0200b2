package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var powerStart = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

type powerFixture struct {
	svc     *PowerService
	beliefs *mockBeliefStore
	jobs    *mockJobStore
	events  *recordingPublisher
	user    *domain.User
	other   *domain.User
}

// newPowerFixture sets up three charging stations owned by a prosumer and
// one owned by someone else.
func newPowerFixture(t *testing.T) *powerFixture {
	t.Helper()
	ctx := context.Background()
	sensors := newMockSensorStore()
	assets := NewAssetService(newMockAssetStore(), sensors, "ea1", "2018-06.localhost")
	_, err := assets.CreateType(ctx, domain.AssetType{Name: "charging station", IsConsumer: true, CanShift: true})
	require.NoError(t, err)

	user := &domain.User{ID: 1, Username: "test_prosumer", Roles: []domain.Role{domain.RoleProsumer, domain.RoleMDC}}
	other := &domain.User{ID: 2, Username: "test_supplier", Roles: []domain.Role{domain.RoleSupplier}}
	for _, a := range []struct {
		name  string
		owner int64
	}{{"CS 1", 1}, {"CS 2", 1}, {"CS 3", 1}, {"CS 4", 2}} {
		require.NoError(t, assets.Create(ctx, &domain.Asset{
			Name:          a.name,
			AssetTypeName: "charging_station",
			CapacityInMW:  1,
			OwnerID:       a.owner,
		}))
	}

	beliefs := newMockBeliefStore(sensors)
	jobs := newMockJobStore()
	events := &recordingPublisher{}
	svc := NewPowerService(assets, sensors, beliefs, &mockSourceStore{}, jobs, events, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC) }

	return &powerFixture{svc: svc, beliefs: beliefs, jobs: jobs, events: events, user: user, other: other}
}

func hours(h float64) *time.Duration {
	d := time.Duration(h * float64(time.Hour))
	return &d
}

func TestPowerService_PostAndGetMeterData(t *testing.T) {
	f := newPowerFixture(t)
	ctx := context.Background()
	values := []float64{306.66, 306.66, 0, 0, 306.66, 306.66}
	connections := []string{"ea1.2018-06.localhost:1:1", "ea1.2018-06.localhost:1:2"}

	result, err := f.svc.Post(ctx, PowerPost{
		Kind:     MeterData,
		Groups:   []ConnectionGroup{{Connections: connections, Values: values}},
		Start:    powerStart,
		Duration: 90 * time.Minute,
		User:     f.user,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), result.Saved)
	assert.Equal(t, 8, result.Jobs)

	stored := f.beliefs.bySource(1)
	require.Len(t, stored, 12)
	for _, b := range stored {
		assert.LessOrEqual(t, b.EventValue, 0.0, "consumption is stored as negative values")
		assert.Negative(t, int64(b.BeliefHorizon), "meter data is recorded after the fact")
	}

	for sensorID := int64(1); sensorID <= 2; sensorID++ {
		jobs, err := f.jobs.ListBySensor(ctx, sensorID)
		require.NoError(t, err)
		require.Len(t, jobs, len(domain.ForecastHorizons))
		for i, job := range jobs {
			h := domain.ForecastHorizons[i]
			assert.Equal(t, h, job.Horizon)
			assert.True(t, job.Start.Equal(powerStart.Add(h)))
			assert.True(t, job.End.Equal(powerStart.Add(90*time.Minute+h)))
			assert.Equal(t, DefaultModelSearchTerm, job.ModelSearchTerm)
			assert.Equal(t, domain.JobPending, job.Status)
		}
	}
	require.Len(t, f.events.events, 2)
	assert.Equal(t, int64(6), f.events.events[0].Count)
	assert.Equal(t, string(MeterData), f.events.events[0].Kind)

	data, err := f.svc.Get(ctx, PowerQuery{
		Kind: MeterData,
		Groups: []ConnectionGroup{
			{Connections: connections[:1]},
			{Connections: connections},
		},
		Start:    powerStart,
		Duration: 90 * time.Minute,
		User:     f.user,
	})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, data.Resolution)
	require.Len(t, data.Groups, 2)
	assert.Equal(t, values, data.Groups[0].Values)
	assert.InDeltaSlice(t, []float64{613.32, 613.32, 0, 0, 613.32, 613.32}, data.Groups[1].Values, 1e-9)
}

func TestPowerService_GetResamples(t *testing.T) {
	f := newPowerFixture(t)
	ctx := context.Background()
	connection := "ea1.2018-06.localhost:1:3"

	_, err := f.svc.Post(ctx, PowerPost{
		Kind:     MeterData,
		Groups:   []ConnectionGroup{{Connections: []string{connection}, Values: []float64{1, math.NaN(), 3, 5}}},
		Start:    powerStart,
		Duration: time.Hour,
		User:     f.user,
	})
	require.NoError(t, err)
	assert.Len(t, f.beliefs.bySource(1), 3)

	data, err := f.svc.Get(ctx, PowerQuery{
		Kind:       MeterData,
		Groups:     []ConnectionGroup{{Connections: []string{connection}}},
		Start:      powerStart,
		Duration:   time.Hour,
		Resolution: 30 * time.Minute,
		User:       f.user,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4}, data.Groups[0].Values)

	data, err = f.svc.Get(ctx, PowerQuery{
		Kind:       MeterData,
		Groups:     []ConnectionGroup{{Connections: []string{connection}}},
		Start:      powerStart,
		Duration:   2 * time.Hour,
		Resolution: time.Hour,
		User:       f.user,
	})
	require.NoError(t, err)
	require.Len(t, data.Groups[0].Values, 2)
	assert.Equal(t, 3.0, data.Groups[0].Values[0])
	assert.True(t, math.IsNaN(data.Groups[0].Values[1]))

	_, err = f.svc.Get(ctx, PowerQuery{
		Kind:       MeterData,
		Groups:     []ConnectionGroup{{Connections: []string{connection}}},
		Start:      powerStart,
		Duration:   time.Hour,
		Resolution: 20 * time.Minute,
		User:       f.user,
	})
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestPowerService_PostUpsamples(t *testing.T) {
	f := newPowerFixture(t)
	ctx := context.Background()
	connection := "ea1.2018-06.localhost:1:1"

	result, err := f.svc.Post(ctx, PowerPost{
		Kind:     MeterData,
		Groups:   []ConnectionGroup{{Connections: []string{connection}, Values: []float64{2, 4}}},
		Start:    powerStart,
		Duration: time.Hour,
		User:     f.user,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Saved)

	data, err := f.svc.Get(ctx, PowerQuery{
		Kind:     MeterData,
		Groups:   []ConnectionGroup{{Connections: []string{connection}}},
		Start:    powerStart,
		Duration: time.Hour,
		User:     f.user,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 4, 4}, data.Groups[0].Values)
}

func TestPowerService_PostPrognosis(t *testing.T) {
	connection := "ea1.2018-06.localhost:1:1"
	post := func(f *powerFixture, rolling bool) {
		t.Helper()
		result, err := f.svc.Post(context.Background(), PowerPost{
			Kind:     Prognosis,
			Groups:   []ConnectionGroup{{Connections: []string{connection}, Values: []float64{300, 300, 300, 0}}},
			Start:    powerStart,
			Duration: time.Hour,
			Horizon:  hours(6),
			Rolling:  rolling,
			User:     f.user,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4), result.Saved)
		assert.Zero(t, result.Jobs, "prognoses do not trigger forecasts")
	}
	horizons := func(f *powerFixture) []time.Duration {
		var out []time.Duration
		for _, b := range f.beliefs.bySource(1) {
			out = append(out, b.BeliefHorizon)
		}
		return out
	}
	get := func(f *powerFixture) []float64 {
		t.Helper()
		data, err := f.svc.Get(context.Background(), PowerQuery{
			Kind:     Prognosis,
			Groups:   []ConnectionGroup{{Connections: []string{connection}}},
			Start:    powerStart,
			Duration: time.Hour,
			Horizon:  hours(6),
			User:     f.user,
		})
		require.NoError(t, err)
		return data.Groups[0].Values
	}

	t.Run("rolling horizon applies to each event", func(t *testing.T) {
		f := newPowerFixture(t)
		post(f, true)
		assert.Equal(t, []time.Duration{6 * time.Hour, 6 * time.Hour, 6 * time.Hour, 6 * time.Hour}, horizons(f))
		assert.Equal(t, []float64{300, 300, 300, 0}, get(f))
	})

	t.Run("fixed horizon applies to the whole period", func(t *testing.T) {
		f := newPowerFixture(t)
		post(f, false)
		assert.Equal(t, []time.Duration{*hours(5.25), *hours(5.5), *hours(5.75), 6 * time.Hour}, horizons(f))

		values := get(f)
		require.Len(t, values, 4)
		for _, v := range values[:3] {
			assert.True(t, math.IsNaN(v), "beliefs formed less than 6 hours ahead are left out")
		}
		assert.Equal(t, 0.0, values[3])
	})
}

func TestPowerService_PostRejected(t *testing.T) {
	valid := []float64{1, 2, 3, 4, 5, 6}
	tests := []struct {
		name    string
		post    func(f *powerFixture) PowerPost
		wantErr error
	}{
		{
			name: "unknown asset",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: MeterData, Groups: []ConnectionGroup{{Connections: []string{"ea1.2018-06.localhost:1:99"}, Values: valid}}, Start: powerStart, Duration: 90 * time.Minute, User: f.user}
			},
			wantErr: ErrUnknownConnection,
		},
		{
			name: "asset of another owner",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: MeterData, Groups: []ConnectionGroup{{Connections: []string{"ea1.2018-06.localhost:2:4"}, Values: valid}}, Start: powerStart, Duration: 90 * time.Minute, User: f.user}
			},
			wantErr: ErrUnknownConnection,
		},
		{
			name: "one bad connection spoils the message",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: MeterData, Groups: []ConnectionGroup{
					{Connections: []string{"ea1.2018-06.localhost:1:1"}, Values: valid},
					{Connections: []string{"ea1.2018-06.localhost:1:99"}, Values: valid},
				}, Start: powerStart, Duration: 90 * time.Minute, User: f.user}
			},
			wantErr: ErrUnknownConnection,
		},
		{
			name: "asset name instead of entity address",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: MeterData, Groups: []ConnectionGroup{{Connections: []string{"CS 1"}, Values: valid}}, Start: powerStart, Duration: 90 * time.Minute, User: f.user}
			},
			wantErr: ErrInvalidDomain,
		},
		{
			name: "values do not divide the duration",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: MeterData, Groups: []ConnectionGroup{{Connections: []string{"ea1.2018-06.localhost:1:1"}, Values: []float64{1, 2, 3, 4, 5, 6, 7}}}, Start: powerStart, Duration: 90 * time.Minute, User: f.user}
			},
			wantErr: ErrInvalidResolution,
		},
		{
			name: "resolution finer than the asset's",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: MeterData, Groups: []ConnectionGroup{{Connections: []string{"ea1.2018-06.localhost:1:1"}, Values: make([]float64, 18)}}, Start: powerStart, Duration: 90 * time.Minute, User: f.user}
			},
			wantErr: ErrInvalidResolution,
		},
		{
			name: "meter data ahead of time",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: MeterData, Groups: []ConnectionGroup{{Connections: []string{"ea1.2018-06.localhost:1:1"}, Values: valid}}, Start: powerStart, Duration: 90 * time.Minute, Horizon: hours(1), User: f.user}
			},
			wantErr: ErrInvalidHorizon,
		},
		{
			name: "prognosis after the fact",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: Prognosis, Groups: []ConnectionGroup{{Connections: []string{"ea1.2018-06.localhost:1:1"}, Values: valid}}, Start: powerStart, Duration: 90 * time.Minute, Horizon: hours(-1), User: f.user}
			},
			wantErr: ErrInvalidHorizon,
		},
		{
			name: "empty period",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: MeterData, Groups: []ConnectionGroup{{Connections: []string{"ea1.2018-06.localhost:1:1"}, Values: valid}}, Start: powerStart, User: f.user}
			},
			wantErr: ErrInvalidPeriod,
		},
		{
			name: "start off the asset's resolution",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: MeterData, Groups: []ConnectionGroup{{Connections: []string{"ea1.2018-06.localhost:1:1"}, Values: valid}}, Start: powerStart.Add(5 * time.Minute), Duration: 90 * time.Minute, User: f.user}
			},
			wantErr: ErrInvalidPeriod,
		},
		{
			name: "no connections",
			post: func(f *powerFixture) PowerPost {
				return PowerPost{Kind: MeterData, Groups: []ConnectionGroup{{Values: valid}}, Start: powerStart, Duration: 90 * time.Minute, User: f.user}
			},
			wantErr: ErrUnknownConnection,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPowerFixture(t)
			_, err := f.svc.Post(context.Background(), tt.post(f))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.beliefs.beliefs)
			assert.Empty(t, f.jobs.jobs)
			assert.Empty(t, f.events.events)
		})
	}
}

func TestPowerService_PublishFailureDoesNotFailPost(t *testing.T) {
	f := newPowerFixture(t)
	f.events.err = errors.New("broker down")

	result, err := f.svc.Post(context.Background(), PowerPost{
		Kind:     MeterData,
		Groups:   []ConnectionGroup{{Connections: []string{"ea1.2018-06.localhost:1:1"}, Values: []float64{1, 2}}},
		Start:    powerStart,
		Duration: 30 * time.Minute,
		User:     f.user,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Saved)
}

func TestPowerService_GetOtherOwner(t *testing.T) {
	f := newPowerFixture(t)

	_, err := f.svc.Get(context.Background(), PowerQuery{
		Kind:     MeterData,
		Groups:   []ConnectionGroup{{Connections: []string{"ea1.2018-06.localhost:1:1"}}},
		Start:    powerStart,
		Duration: time.Hour,
		User:     f.other,
	})
	assert.ErrorIs(t, err, ErrUnknownConnection)
}
