package timeseries

import (
	"sort"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
)

// Select applies a belief search to beliefs about sensor and returns the
// matching beliefs sorted by event start, then belief time (most recent first).
func Select(sensor *domain.Sensor, beliefs []domain.Belief, q domain.BeliefSearch) []domain.Belief {
	var sources map[int64]bool
	if len(q.SourceIDs) > 0 {
		sources = make(map[int64]bool, len(q.SourceIDs))
		for _, id := range q.SourceIDs {
			sources[id] = true
		}
	}

	var out []domain.Belief
	for _, b := range beliefs {
		if b.SensorID != sensor.ID {
			continue
		}
		if !q.EventStartsAfter.IsZero() && b.EventStart.Before(q.EventStartsAfter) {
			continue
		}
		if !q.EventEndsBefore.IsZero() && b.EventStart.Add(sensor.EventResolution).After(q.EventEndsBefore) {
			continue
		}
		beliefTime := sensor.BeliefTime(b.EventStart, b.BeliefHorizon)
		if !q.BeliefsBefore.IsZero() && beliefTime.After(q.BeliefsBefore) {
			continue
		}
		if !q.BeliefsAfter.IsZero() && beliefTime.Before(q.BeliefsAfter) {
			continue
		}
		if q.HorizonsAtLeast != nil && b.BeliefHorizon < *q.HorizonsAtLeast {
			continue
		}
		if q.HorizonsAtMost != nil && b.BeliefHorizon > *q.HorizonsAtMost {
			continue
		}
		if sources != nil && !sources[b.SourceID] {
			continue
		}
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EventStart.Equal(out[j].EventStart) {
			return out[i].EventStart.Before(out[j].EventStart)
		}
		if out[i].BeliefHorizon != out[j].BeliefHorizon {
			return out[i].BeliefHorizon < out[j].BeliefHorizon
		}
		return out[i].SourceID < out[j].SourceID
	})

	if q.MostRecentBeliefsOnly {
		out = mostRecentBeliefs(out)
	}
	if q.MostRecentEventsOnly && len(out) > 0 {
		last := out[len(out)-1].EventStart
		i := len(out) - 1
		for i > 0 && out[i-1].EventStart.Equal(last) {
			i--
		}
		out = out[i:]
	}
	return out
}

// mostRecentBeliefs keeps, per event and source, the belief with the
// smallest horizon. Input must be sorted as Select sorts.
func mostRecentBeliefs(sorted []domain.Belief) []domain.Belief {
	type key struct {
		start  time.Time
		source int64
	}
	seen := make(map[key]bool)
	out := sorted[:0:0]
	for _, b := range sorted {
		k := key{start: b.EventStart.UTC(), source: b.SourceID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, b)
	}
	return out
}

// ToFrame collapses beliefs into one value per event: the most recent
// belief, with ties going to the lowest source id.
func ToFrame(sensor *domain.Sensor, beliefs []domain.Belief) *Frame {
	type pick struct {
		horizon time.Duration
		source  int64
		value   float64
		start   time.Time
	}
	best := make(map[int64]pick)
	for _, b := range beliefs {
		k := b.EventStart.UnixNano()
		p, ok := best[k]
		if !ok || b.BeliefHorizon < p.horizon || (b.BeliefHorizon == p.horizon && b.SourceID < p.source) {
			best[k] = pick{horizon: b.BeliefHorizon, source: b.SourceID, value: b.EventValue, start: b.EventStart}
		}
	}
	rows := make([]Row, 0, len(best))
	for _, p := range best {
		rows = append(rows, Row{Start: p.start, Value: p.value})
	}
	return NewFrame(sensor.EventResolution, rows).In(sensor.Location())
}
