package timeseries

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// Row is a single event in a Frame. A NaN value marks a missing event.
type Row struct {
	Start time.Time
	Value float64
}

// Frame is a time-indexed series of values with a fixed event resolution.
// Rows are kept sorted by start and starts are unique.
type Frame struct {
	Resolution time.Duration
	// Location is the timezone calendar bins are cut in. Nil means UTC.
	Location *time.Location
	rows     []Row
}

// NewFrame copies rows into a new frame, sorting them by start. When starts
// collide the last row wins.
func NewFrame(resolution time.Duration, rows []Row) *Frame {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	dedup := sorted[:0]
	for _, r := range sorted {
		if n := len(dedup); n > 0 && dedup[n-1].Start.Equal(r.Start) {
			dedup[n-1] = r
			continue
		}
		dedup = append(dedup, r)
	}
	return &Frame{Resolution: resolution, rows: dedup}
}

func (f *Frame) Len() int { return len(f.rows) }

func (f *Frame) Empty() bool { return len(f.rows) == 0 }

// Rows returns a copy of the frame's rows.
func (f *Frame) Rows() []Row {
	out := make([]Row, len(f.rows))
	copy(out, f.rows)
	return out
}

// Values returns the values in start order.
func (f *Frame) Values() []float64 {
	out := make([]float64, len(f.rows))
	for i, r := range f.rows {
		out[i] = r.Value
	}
	return out
}

// In sets the timezone of the frame and returns it.
func (f *Frame) In(loc *time.Location) *Frame {
	f.Location = loc
	return f
}

func (f *Frame) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// At returns the value of the event starting at t.
func (f *Frame) At(t time.Time) (float64, bool) {
	i := sort.Search(len(f.rows), func(i int) bool { return !f.rows[i].Start.Before(t) })
	if i < len(f.rows) && f.rows[i].Start.Equal(t) {
		return f.rows[i].Value, true
	}
	return math.NaN(), false
}

// Start returns the start of the first event.
func (f *Frame) Start() time.Time {
	if len(f.rows) == 0 {
		return time.Time{}
	}
	return f.rows[0].Start
}

// End returns the end of the last event.
func (f *Frame) End() time.Time {
	if len(f.rows) == 0 {
		return time.Time{}
	}
	return f.rows[len(f.rows)-1].Start.Add(f.Resolution)
}

func (f *Frame) Copy() *Frame {
	return &Frame{Resolution: f.Resolution, Location: f.Location, rows: f.Rows()}
}

// Slice returns the events starting in [start, end).
func (f *Frame) Slice(start, end time.Time) *Frame {
	out := &Frame{Resolution: f.Resolution, Location: f.Location}
	for _, r := range f.rows {
		if !r.Start.Before(start) && r.Start.Before(end) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Reindex returns a regular frame covering [start, end) at the frame's
// resolution, with NaN for events that are not present.
func (f *Frame) Reindex(start, end time.Time) *Frame {
	out := &Frame{Resolution: f.Resolution, Location: f.Location}
	if f.Resolution <= 0 {
		return out
	}
	for t := start; t.Before(end); t = t.Add(f.Resolution) {
		v, _ := f.At(t)
		out.rows = append(out.rows, Row{Start: t, Value: v})
	}
	return out
}

func (f *Frame) mapValues(fn func(float64) float64) *Frame {
	out := f.Copy()
	for i := range out.rows {
		out.rows[i].Value = fn(out.rows[i].Value)
	}
	return out
}

// Apply combines each value with a scalar.
func (f *Frame) Apply(op func(a, b float64) float64, scalar float64) *Frame {
	return f.mapValues(func(v float64) float64 { return op(v, scalar) })
}

// Combine aligns f and other on their starts and combines their values.
// Starts present in only one of the frames yield NaN.
func (f *Frame) Combine(op func(a, b float64) float64, other *Frame) *Frame {
	out := &Frame{Resolution: f.Resolution, Location: f.Location}
	i, j := 0, 0
	for i < len(f.rows) || j < len(other.rows) {
		switch {
		case j >= len(other.rows) || (i < len(f.rows) && f.rows[i].Start.Before(other.rows[j].Start)):
			out.rows = append(out.rows, Row{Start: f.rows[i].Start, Value: math.NaN()})
			i++
		case i >= len(f.rows) || other.rows[j].Start.Before(f.rows[i].Start):
			out.rows = append(out.rows, Row{Start: other.rows[j].Start, Value: math.NaN()})
			j++
		default:
			out.rows = append(out.rows, Row{Start: f.rows[i].Start, Value: op(f.rows[i].Value, other.rows[j].Value)})
			i++
			j++
		}
	}
	return out
}

func Add(a, b float64) float64 { return a + b }
func Sub(a, b float64) float64 { return a - b }
func Mul(a, b float64) float64 { return a * b }
func Div(a, b float64) float64 { return a / b }

func (f *Frame) Abs() *Frame { return f.mapValues(math.Abs) }

// Clip limits values to [lower, upper]. A nil bound is not applied.
func (f *Frame) Clip(lower, upper *float64) *Frame {
	return f.mapValues(func(v float64) float64 {
		if math.IsNaN(v) {
			return v
		}
		if lower != nil && v < *lower {
			v = *lower
		}
		if upper != nil && v > *upper {
			v = *upper
		}
		return v
	})
}

func (f *Frame) Round(decimals int) *Frame {
	p := math.Pow(10, float64(decimals))
	return f.mapValues(func(v float64) float64 { return math.Round(v*p) / p })
}

// FillNA replaces missing values.
func (f *Frame) FillNA(value float64) *Frame {
	return f.mapValues(func(v float64) float64 {
		if math.IsNaN(v) {
			return value
		}
		return v
	})
}

// DropNA removes rows with missing values.
func (f *Frame) DropNA() *Frame {
	out := &Frame{Resolution: f.Resolution, Location: f.Location}
	for _, r := range f.rows {
		if !math.IsNaN(r.Value) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Shift moves values by the given number of rows, keeping the index.
// Positive periods shift values towards later rows.
func (f *Frame) Shift(periods int) *Frame {
	out := f.Copy()
	for i := range out.rows {
		src := i - periods
		if src < 0 || src >= len(f.rows) {
			out.rows[i].Value = math.NaN()
			continue
		}
		out.rows[i].Value = f.rows[src].Value
	}
	return out
}

// Diff returns the difference with the previous row.
func (f *Frame) Diff() *Frame {
	out := f.Copy()
	for i := range out.rows {
		if i == 0 {
			out.rows[i].Value = math.NaN()
			continue
		}
		out.rows[i].Value = f.rows[i].Value - f.rows[i-1].Value
	}
	return out
}

// CumSum returns the running total, skipping missing values.
func (f *Frame) CumSum() *Frame {
	out := f.Copy()
	total := 0.0
	for i := range out.rows {
		if math.IsNaN(out.rows[i].Value) {
			continue
		}
		total += out.rows[i].Value
		out.rows[i].Value = total
	}
	return out
}

// Resample groups events into bins of the given frequency. The result has to
// be aggregated before it can be used as a frame again.
func (f *Frame) Resample(freq time.Duration) *Resampler {
	return &Resampler{frame: f, freq: freq}
}

type jsonRow struct {
	Start time.Time `json:"start"`
	Value *float64  `json:"value"`
}

// MarshalJSON encodes the frame as a list of events with null for missing values.
func (f *Frame) MarshalJSON() ([]byte, error) {
	out := make([]jsonRow, len(f.rows))
	for i, r := range f.rows {
		out[i].Start = r.Start
		if !math.IsNaN(r.Value) {
			v := r.Value
			out[i].Value = &v
		}
	}
	return json.Marshal(out)
}
