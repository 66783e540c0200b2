package domain

import (
	"time"
)

// ForecastHorizons are the horizons for which forecasting jobs are created
// when new measurements arrive.
var ForecastHorizons = []time.Duration{
	1 * time.Hour,
	6 * time.Hour,
	24 * time.Hour,
	48 * time.Hour,
}

type ForecastingJobStatus string

const (
	JobPending    ForecastingJobStatus = "pending"
	JobInProgress ForecastingJobStatus = "in_progress"
	JobFinished   ForecastingJobStatus = "finished"
	JobFailed     ForecastingJobStatus = "failed"
)

// ForecastingJob asks for forecasts about events in [Start, End) on a sensor,
// made Horizon ahead of their knowledge time.
type ForecastingJob struct {
	ID              int64                `json:"id"`
	SensorID        int64                `json:"sensor_id"`
	AssetID         *int64               `json:"asset_id,omitempty"`
	Horizon         time.Duration        `json:"horizon"`
	Start           time.Time            `json:"start"`
	End             time.Time            `json:"end"`
	ModelSearchTerm string               `json:"model_search_term"`
	Status          ForecastingJobStatus `json:"status"`
	InProgressSince *time.Time           `json:"in_progress_since,omitempty"`
	Error           string               `json:"error,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// DailyProfile is one day of a sensor's values, used to find similar days.
type DailyProfile struct {
	SensorID int64     `json:"sensor_id"`
	Day      time.Time `json:"day"`
	Values   []float32 `json:"values"`
}

type DailyProfileWithDistance struct {
	DailyProfile
	Distance float32 `json:"distance"`
}
