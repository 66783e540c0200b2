package schemas

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
)

// SingleValueField holds one or more numbers. A single number is accepted in
// place of a list; null is only allowed inside a list.
type SingleValueField []*float64

func (f *SingleValueField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return &FieldError{Msg: msgNotNull}
	}
	if len(b) > 0 && b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return &FieldError{Msg: msgNotNumber}
		}
		out := make(SingleValueField, len(raw))
		for i, r := range raw {
			if bytes.Equal(bytes.TrimSpace(r), []byte("null")) {
				continue
			}
			v, err := number(r)
			if err != nil {
				return err
			}
			out[i] = &v
		}
		*f = out
		return nil
	}
	v, err := number(b)
	if err != nil {
		return err
	}
	*f = SingleValueField{&v}
	return nil
}

func number(b []byte) (float64, error) {
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return 0, &FieldError{Msg: msgNotNumber}
	}
	return v, nil
}

// Floats returns the values with NaN for nulls.
func (f SingleValueField) Floats() []float64 {
	out := make([]float64, len(f))
	for i, v := range f {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}

// ValuesOf builds a SingleValueField from floats, turning NaN into null.
func ValuesOf(values ...float64) SingleValueField {
	out := make(SingleValueField, len(values))
	for i, v := range values {
		v := v
		if math.IsNaN(v) {
			continue
		}
		out[i] = &v
	}
	return out
}

// Duration is an ISO 8601 duration such as PT15M.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &FieldError{Msg: "Not a valid ISO 8601 duration."}
	}
	parsed, err := timeseries.ParseDuration(s)
	if err != nil {
		return &FieldError{Msg: "Cannot parse " + s + " as ISO 8601 duration."}
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeseries.FormatDuration(time.Duration(d)))
}

// Horizon is a belief horizon, optionally rolling ("R/PT6H").
type Horizon struct {
	Duration time.Duration
	Rolling  bool
}

func (h *Horizon) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &FieldError{Msg: "Not a valid ISO 8601 duration."}
	}
	d, rolling, err := timeseries.ParseHorizon(s)
	if err != nil {
		return &FieldError{Msg: "Cannot parse " + s + " as ISO 8601 duration."}
	}
	*h = Horizon{Duration: d, Rolling: rolling}
	return nil
}

func (h Horizon) MarshalJSON() ([]byte, error) {
	s := timeseries.FormatDuration(h.Duration)
	if h.Rolling {
		s = "R/" + s
	}
	return json.Marshal(s)
}

// Timestamp is an ISO 8601 datetime with an offset. Offsets whose "+" was
// lost to URL decoding are accepted.
type Timestamp time.Time

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &FieldError{Msg: "Not a valid datetime."}
	}
	parsed, err := timeseries.ParseTime(s)
	if err != nil {
		return &FieldError{Msg: "Not a valid datetime."}
	}
	*t = Timestamp(parsed)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339))
}

func (t Timestamp) Time() time.Time { return time.Time(t) }
