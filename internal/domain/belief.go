package domain

import (
	"time"
)

// Belief is a time-series data point with provenance: who (source) believed
// what (value) about which event (sensor, start) and how long before the event
// could be known (horizon).
type Belief struct {
	SensorID              int64         `json:"sensor_id"`
	EventStart            time.Time     `json:"event_start"`
	BeliefHorizon         time.Duration `json:"belief_horizon"`
	SourceID              int64         `json:"source_id"`
	EventValue            float64       `json:"event_value"`
	CumulativeProbability float64       `json:"cumulative_probability"`
}

const DefaultCumulativeProbability = 0.5

type DataSourceType string

const (
	SourceTypeUser       DataSourceType = "user"
	SourceTypeForecaster DataSourceType = "forecaster"
	SourceTypeReporter   DataSourceType = "reporter"
	SourceTypeScheduler  DataSourceType = "scheduler"
	SourceTypeScript     DataSourceType = "script"
)

type DataSource struct {
	ID      int64          `json:"id"`
	Name    string         `json:"name"`
	Type    DataSourceType `json:"type"`
	UserID  *int64         `json:"user_id,omitempty"`
	Model   string         `json:"model,omitempty"`
	Version string         `json:"version,omitempty"`
}

// BeliefSearch narrows down beliefs about a sensor. Zero values mean "no constraint".
type BeliefSearch struct {
	SensorID              int64          `json:"sensor"`
	EventStartsAfter      time.Time      `json:"event_starts_after"`
	EventEndsBefore       time.Time      `json:"event_ends_before"`
	BeliefsAfter          time.Time      `json:"beliefs_after"`
	BeliefsBefore         time.Time      `json:"beliefs_before"`
	HorizonsAtLeast       *time.Duration `json:"horizons_at_least,omitempty"`
	HorizonsAtMost        *time.Duration `json:"horizons_at_most,omitempty"`
	SourceIDs             []int64        `json:"source,omitempty"`
	MostRecentBeliefsOnly bool           `json:"most_recent_beliefs_only"`
	MostRecentEventsOnly  bool           `json:"most_recent_events_only"`
}
