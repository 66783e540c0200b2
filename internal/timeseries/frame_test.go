package timeseries

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

func quarterHours(values ...float64) *Frame {
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = Row{Start: t0.Add(time.Duration(i) * 15 * time.Minute), Value: v}
	}
	return NewFrame(15*time.Minute, rows)
}

var nanEqual = cmpopts.EquateNaNs()

func TestNewFrame_SortsAndDeduplicates(t *testing.T) {
	f := NewFrame(time.Hour, []Row{
		{Start: t0.Add(2 * time.Hour), Value: 3},
		{Start: t0, Value: 1},
		{Start: t0.Add(time.Hour), Value: 2},
		{Start: t0, Value: 10},
	})
	if diff := cmp.Diff([]float64{10, 2, 3}, f.Values()); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, t0, f.Start())
	assert.Equal(t, t0.Add(3*time.Hour), f.End())
}

func TestFrame_EmptyBounds(t *testing.T) {
	f := NewFrame(time.Hour, nil)
	assert.True(t, f.Empty())
	assert.True(t, f.Start().IsZero())
	assert.True(t, f.End().IsZero())
}

func TestFrame_At(t *testing.T) {
	f := quarterHours(1, 2, 3)
	v, ok := f.At(t0.Add(15 * time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = f.At(t0.Add(5 * time.Minute))
	assert.False(t, ok)
}

func TestFrame_SliceAndReindex(t *testing.T) {
	f := quarterHours(1, 2, 3, 4)
	s := f.Slice(t0.Add(15*time.Minute), t0.Add(45*time.Minute))
	assert.Equal(t, []float64{2, 3}, s.Values())

	sparse := NewFrame(15*time.Minute, []Row{{Start: t0.Add(15 * time.Minute), Value: 5}})
	r := sparse.Reindex(t0, t0.Add(time.Hour))
	if diff := cmp.Diff([]float64{math.NaN(), 5, math.NaN(), math.NaN()}, r.Values(), nanEqual); diff != "" {
		t.Fatalf("reindex mismatch (-want +got):\n%s", diff)
	}
}

func TestFrame_Arithmetic(t *testing.T) {
	f := quarterHours(1, -2, 3)
	assert.Equal(t, []float64{2, -4, 6}, f.Apply(Mul, 2).Values())
	assert.Equal(t, []float64{1, 2, 3}, f.Abs().Values())

	other := NewFrame(15*time.Minute, []Row{
		{Start: t0.Add(15 * time.Minute), Value: 10},
		{Start: t0.Add(30 * time.Minute), Value: 20},
		{Start: t0.Add(45 * time.Minute), Value: 30},
	})
	got := f.Combine(Add, other).Values()
	want := []float64{math.NaN(), 8, 23, math.NaN()}
	if diff := cmp.Diff(want, got, nanEqual); diff != "" {
		t.Fatalf("combine mismatch (-want +got):\n%s", diff)
	}
}

func TestFrame_Clip(t *testing.T) {
	f := quarterHours(-5, 0.5, 5, math.NaN())
	lo, hi := 0.0, 1.0
	got := f.Clip(&lo, &hi).Values()
	if diff := cmp.Diff([]float64{0, 0.5, 1, math.NaN()}, got, nanEqual); diff != "" {
		t.Fatalf("clip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{0, 0.5, 5}, f.Clip(&lo, nil).DropNA().Values())
}

func TestFrame_MissingValues(t *testing.T) {
	f := quarterHours(1, math.NaN(), 3)
	assert.Equal(t, []float64{1, 0, 3}, f.FillNA(0).Values())
	assert.Equal(t, 2, f.DropNA().Len())
	assert.Equal(t, []float64{1, 1, 4}, f.CumSum().FillNA(1).Values())
}

func TestFrame_ShiftAndDiff(t *testing.T) {
	f := quarterHours(1, 2, 4)

	shifted := f.Shift(1).Values()
	if diff := cmp.Diff([]float64{math.NaN(), 1, 2}, shifted, nanEqual); diff != "" {
		t.Fatalf("shift mismatch (-want +got):\n%s", diff)
	}
	back := f.Shift(-1).Values()
	if diff := cmp.Diff([]float64{2, 4, math.NaN()}, back, nanEqual); diff != "" {
		t.Fatalf("shift mismatch (-want +got):\n%s", diff)
	}
	diffs := f.Diff().Values()
	if diff := cmp.Diff([]float64{math.NaN(), 1, 2}, diffs, nanEqual); diff != "" {
		t.Fatalf("diff mismatch (-want +got):\n%s", diff)
	}
}

func TestFrame_Round(t *testing.T) {
	assert.Equal(t, []float64{1.23, 4.57}, quarterHours(1.234, 4.5678).Round(2).Values())
}

func TestFrame_MarshalJSON(t *testing.T) {
	f := NewFrame(time.Hour, []Row{
		{Start: t0, Value: 1.5},
		{Start: t0.Add(time.Hour), Value: math.NaN()},
	})
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"start": "2015-01-01T00:00:00Z", "value": 1.5},
		{"start": "2015-01-01T01:00:00Z", "value": null}
	]`, string(b))
}

func TestResample_Aggregations(t *testing.T) {
	// two hours of quarter-hourly data, the second hour partly missing
	f := quarterHours(1, 2, 3, 4, 5, math.NaN(), 7, math.NaN())
	r := f.Resample(time.Hour)
	assert.Equal(t, time.Hour, r.Frequency())

	tests := map[string][]float64{
		"sum":    {10, 12},
		"mean":   {2.5, 6},
		"min":    {1, 5},
		"max":    {4, 7},
		"first":  {1, 5},
		"last":   {4, 7},
		"count":  {4, 2},
		"median": {2.5, 6},
	}
	for method, want := range tests {
		got, err := r.Aggregate(method)
		require.NoError(t, err, method)
		assert.Equal(t, want, got.Values(), method)
		assert.Equal(t, time.Hour, got.Resolution, method)
		assert.Equal(t, t0, got.Start(), method)
	}
}

func TestResample_EmptyBins(t *testing.T) {
	f := NewFrame(time.Hour, []Row{
		{Start: t0, Value: 2},
		{Start: t0.Add(3 * time.Hour), Value: 8},
	})
	r := f.Resample(time.Hour)

	assert.Equal(t, []float64{2, 0, 0, 8}, r.Sum().Values())

	mean := r.Mean().Values()
	if diff := cmp.Diff([]float64{2, math.NaN(), math.NaN(), 8}, mean, nanEqual); diff != "" {
		t.Fatalf("mean mismatch (-want +got):\n%s", diff)
	}

	filled, err := r.Aggregate("ffill")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2, 8}, filled.Values())
}

func TestResample_Downsample(t *testing.T) {
	f := NewFrame(time.Hour, []Row{
		{Start: t0.Add(1 * time.Hour), Value: 1},
		{Start: t0.Add(23 * time.Hour), Value: 2},
		{Start: t0.Add(25 * time.Hour), Value: 3},
	})
	got := f.Resample(24 * time.Hour).Sum()
	assert.Equal(t, []float64{3, 3}, got.Values())
	assert.Equal(t, t0, got.Start())
}

func TestResample_UnknownMethod(t *testing.T) {
	_, err := quarterHours(1).Resample(time.Hour).Aggregate("interpolate")
	assert.Error(t, err)
	assert.False(t, IsAggregation("interpolate"))
	assert.True(t, IsAggregation("ffill"))
}

func hourlyOnes(start time.Time, n int, loc *time.Location) *Frame {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{Start: start.Add(time.Duration(i) * time.Hour), Value: 1}
	}
	return NewFrame(time.Hour, rows).In(loc)
}

func TestResample_DailyBinsStartAtLocalMidnight(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	f := hourlyOnes(time.Date(2023, 4, 10, 0, 0, 0, 0, ams), 48, ams)
	got := f.Resample(24 * time.Hour).Sum()

	assert.Equal(t, []float64{24, 24}, got.Values())
	assert.True(t, time.Date(2023, 4, 9, 22, 0, 0, 0, time.UTC).Equal(got.Start()))
	assert.Equal(t, ams, got.Location)
}

func TestResample_DailyBinsFollowDST(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	// clocks go forward on 2023-03-26, which makes it a 23 hour day
	f := hourlyOnes(time.Date(2023, 3, 26, 0, 0, 0, 0, ams), 47, ams)
	got := f.Resample(24 * time.Hour).Sum()

	assert.Equal(t, []float64{23, 24}, got.Values())
	rows := got.Rows()
	assert.True(t, time.Date(2023, 3, 27, 0, 0, 0, 0, ams).Equal(rows[1].Start))
}

func TestResample_WeeklyBinsStartOnFirstDay(t *testing.T) {
	// a Wednesday
	start := time.Date(2023, 4, 12, 0, 0, 0, 0, time.UTC)
	rows := make([]Row, 10)
	for i := range rows {
		rows[i] = Row{Start: start.Add(time.Duration(i) * 24 * time.Hour), Value: 1}
	}
	got := NewFrame(24*time.Hour, rows).Resample(7 * 24 * time.Hour).Sum()

	assert.Equal(t, []float64{7, 3}, got.Values())
	assert.True(t, start.Equal(got.Start()))
}

func TestResample_SubDailyBinsInOffsetZone(t *testing.T) {
	// bins of three hours are counted from local midnight, not from UTC
	plus2 := time.FixedZone("UTC+2", 2*60*60)
	f := hourlyOnes(time.Date(2023, 4, 10, 0, 0, 0, 0, plus2), 6, plus2)
	got := f.Resample(3 * time.Hour).Sum()

	assert.Equal(t, []float64{3, 3}, got.Values())
	assert.True(t, time.Date(2023, 4, 10, 0, 0, 0, 0, plus2).Equal(got.Start()))
}
