package timeseries

import (
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
)

// Staleness returns how long ago the most recent event known by now could
// have been known. It is measured against the knowledge time of that event
// rather than the time the data arrived. A negative staleness means the data
// reaches into the future. ok is false when no beliefs are known by now.
func Staleness(sensor *domain.Sensor, beliefs []domain.Belief, q domain.BeliefSearch, now time.Time) (time.Duration, bool) {
	if q.BeliefsBefore.IsZero() || now.Before(q.BeliefsBefore) {
		q.BeliefsBefore = now
	}
	q.MostRecentBeliefsOnly = true
	q.MostRecentEventsOnly = true

	selected := Select(sensor, beliefs, q)
	if len(selected) == 0 {
		return 0, false
	}
	lastEventStart := selected[len(selected)-1].EventStart
	return now.Sub(sensor.KnowledgeTime(lastEventStart)), true
}

type Status struct {
	SensorID       int64          `json:"id"`
	Name           string         `json:"name"`
	Stale          bool           `json:"stale"`
	Staleness      *time.Duration `json:"staleness"`
	StalenessSince *time.Time     `json:"staleness_since"`
	MaxStaleness   time.Duration  `json:"max_staleness"`
	Reason         string         `json:"reason"`
}

// EvaluateStatus decides whether a sensor is stale: it is when nothing is
// known yet or when the staleness exceeds maxStaleness. Data reaching into the
// future, such as a schedule, is stale when it reaches less than maxStaleness
// ahead.
func EvaluateStatus(sensor *domain.Sensor, beliefs []domain.Belief, q domain.BeliefSearch, maxStaleness time.Duration, now time.Time) Status {
	st := Status{SensorID: sensor.ID, Name: sensor.Name, MaxStaleness: maxStaleness}
	staleness, ok := Staleness(sensor, beliefs, q, now)
	if !ok {
		st.Stale = true
		st.Reason = "no data recorded"
		return st
	}
	since := now.Add(-staleness)
	st.Staleness = &staleness
	st.StalenessSince = &since

	if staleness < 0 {
		ahead := -staleness
		st.Stale = ahead < maxStaleness
		st.Reason = "most recent data is " + FormatDuration(ahead) + " in the future"
		if st.Stale {
			st.Reason += ", but should be more than " + FormatDuration(maxStaleness) + " in the future"
		}
		return st
	}
	st.Stale = staleness > maxStaleness
	st.Reason = "most recent data is " + FormatDuration(staleness) + " old"
	if st.Stale {
		st.Reason += ", more than " + FormatDuration(maxStaleness)
	}
	return st
}
