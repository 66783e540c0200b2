package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Aggregations lists the methods a Resampler can be reduced with.
var Aggregations = []string{"sum", "mean", "min", "max", "first", "last", "count", "median", "ffill"}

// IsAggregation reports whether method reduces a Resampler to a Frame.
func IsAggregation(method string) bool {
	for _, m := range Aggregations {
		if m == method {
			return true
		}
	}
	return false
}

// Resampler holds a frame grouped into bins of a fixed frequency.
type Resampler struct {
	frame *Frame
	freq  time.Duration
}

func (r *Resampler) Frequency() time.Duration { return r.freq }

// bins returns the bin starts covering the frame and the values falling in
// each. Bins are anchored at midnight of the first day, in the frame's
// timezone. Frequencies of whole days count calendar days, so a daily bin
// always runs from local midnight to local midnight.
func (r *Resampler) bins() ([]time.Time, [][]float64) {
	if r.frame.Empty() || r.freq <= 0 {
		return nil, nil
	}
	loc := r.frame.location()
	first := r.frame.Start().In(loc)
	origin := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)

	index := func(t time.Time) int { return int(t.Sub(origin) / r.freq) }
	start := func(i int) time.Time { return origin.Add(time.Duration(i) * r.freq) }
	if days := int(r.freq / (24 * time.Hour)); r.freq%(24*time.Hour) == 0 {
		index = func(t time.Time) int { return (civilDay(t.In(loc)) - civilDay(origin)) / days }
		start = func(i int) time.Time {
			return time.Date(origin.Year(), origin.Month(), origin.Day()+i*days, 0, 0, 0, 0, loc)
		}
	}

	n := index(r.frame.rows[len(r.frame.rows)-1].Start) + 1
	starts := make([]time.Time, n)
	for i := range starts {
		starts[i] = start(i).UTC()
	}
	groups := make([][]float64, n)
	for _, row := range r.frame.rows {
		if !math.IsNaN(row.Value) {
			i := index(row.Start)
			groups[i] = append(groups[i], row.Value)
		}
	}
	return starts, groups
}

// civilDay numbers the calendar date of t, ignoring its timezone.
func civilDay(t time.Time) int {
	return int(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// Aggregate reduces each bin with the named method. Missing values are
// skipped; empty bins yield 0 for sum and count and NaN otherwise.
// ffill carries the last known value into empty bins.
func (r *Resampler) Aggregate(method string) (*Frame, error) {
	reduce, ok := reducers[method]
	if !ok && method != "ffill" {
		return nil, fmt.Errorf("unknown aggregation %q", method)
	}
	starts, groups := r.bins()
	out := &Frame{Resolution: r.freq, Location: r.frame.Location, rows: make([]Row, len(starts))}
	prev := math.NaN()
	for i, start := range starts {
		var v float64
		if method == "ffill" {
			if len(groups[i]) > 0 {
				prev = groups[i][len(groups[i])-1]
			}
			v = prev
		} else {
			v = reduce(groups[i])
		}
		out.rows[i] = Row{Start: start, Value: v}
	}
	return out, nil
}

func (r *Resampler) Sum() *Frame {
	f, _ := r.Aggregate("sum")
	return f
}

func (r *Resampler) Mean() *Frame {
	f, _ := r.Aggregate("mean")
	return f
}

var reducers = map[string]func([]float64) float64{
	"sum": func(vs []float64) float64 {
		total := 0.0
		for _, v := range vs {
			total += v
		}
		return total
	},
	"mean": func(vs []float64) float64 {
		if len(vs) == 0 {
			return math.NaN()
		}
		total := 0.0
		for _, v := range vs {
			total += v
		}
		return total / float64(len(vs))
	},
	"min": func(vs []float64) float64 {
		if len(vs) == 0 {
			return math.NaN()
		}
		m := vs[0]
		for _, v := range vs[1:] {
			m = math.Min(m, v)
		}
		return m
	},
	"max": func(vs []float64) float64 {
		if len(vs) == 0 {
			return math.NaN()
		}
		m := vs[0]
		for _, v := range vs[1:] {
			m = math.Max(m, v)
		}
		return m
	},
	"first": func(vs []float64) float64 {
		if len(vs) == 0 {
			return math.NaN()
		}
		return vs[0]
	},
	"last": func(vs []float64) float64 {
		if len(vs) == 0 {
			return math.NaN()
		}
		return vs[len(vs)-1]
	},
	"count": func(vs []float64) float64 { return float64(len(vs)) },
	"median": func(vs []float64) float64 {
		if len(vs) == 0 {
			return math.NaN()
		}
		s := append([]float64(nil), vs...)
		sort.Float64s(s)
		mid := len(s) / 2
		if len(s)%2 == 1 {
			return s[mid]
		}
		return (s[mid-1] + s[mid]) / 2
	},
}
