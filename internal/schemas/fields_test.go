package schemas

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestSingleValueField_Deserialize(t *testing.T) {
	tests := []struct {
		in   string
		want SingleValueField
	}{
		{`1`, SingleValueField{ptr(1)}},
		{`2.7`, SingleValueField{ptr(2.7)}},
		{`[1]`, SingleValueField{ptr(1)}},
		{`[2.7]`, SingleValueField{ptr(2.7)}},
		// null is allowed inside a list
		{`[1, null, 3]`, SingleValueField{ptr(1), nil, ptr(3)}},
		{`[null]`, SingleValueField{nil}},
	}
	for _, tt := range tests {
		var got SingleValueField
		require.NoError(t, json.Unmarshal([]byte(tt.in), &got), tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSingleValueField_Serialize(t *testing.T) {
	for _, v := range []float64{1, 2.7} {
		b, err := json.Marshal(ValuesOf(v))
		require.NoError(t, err)

		var back []float64
		require.NoError(t, json.Unmarshal(b, &back))
		assert.Equal(t, []float64{v}, back)
	}
}

func TestSingleValueField_Invalid(t *testing.T) {
	tests := []struct {
		in  string
		msg string
	}{
		{`["three", 4]`, "Not a valid number"},
		{`"3, 4"`, "Not a valid number"},
		// a lone null is not allowed
		{`null`, "may not be null"},
	}
	for _, tt := range tests {
		var got SingleValueField
		err := json.Unmarshal([]byte(tt.in), &got)
		require.Error(t, err, tt.in)
		var fe *FieldError
		require.True(t, errors.As(err, &fe), tt.in)
		assert.Contains(t, fe.Msg, tt.msg, tt.in)
	}
}

func TestSingleValueField_InStruct(t *testing.T) {
	var msg struct {
		Values SingleValueField `json:"values"`
	}
	err := json.Unmarshal([]byte(`{"values": null}`), &msg)
	assert.ErrorContains(t, err, "may not be null")
}

func TestSingleValueField_Floats(t *testing.T) {
	f := ValuesOf(1, 2)
	f = append(f, nil)
	got := f.Floats()
	assert.Equal(t, []float64{1, 2}, got[:2])
	assert.True(t, math.IsNaN(got[2]))
}

func TestDuration(t *testing.T) {
	for in, want := range map[string]time.Duration{"PT1H": time.Hour, "PT15M": 15 * time.Minute} {
		var d Duration
		require.NoError(t, json.Unmarshal([]byte(`"`+in+`"`), &d))
		assert.Equal(t, want, time.Duration(d))
	}

	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`"P1M"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`15`), &d))

	b, err := json.Marshal(Duration(90 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, `"PT1H30M"`, string(b))
}

func TestHorizon(t *testing.T) {
	var h Horizon
	require.NoError(t, json.Unmarshal([]byte(`"R/PT6H"`), &h))
	assert.True(t, h.Rolling)
	assert.Equal(t, 6*time.Hour, h.Duration)

	b, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `"R/PT6H"`, string(b))
}

func TestTimestamp(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2022-01-01T00:00:00 00:00"`), &ts))
	assert.True(t, ts.Time().Equal(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)))

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &ts))
}
