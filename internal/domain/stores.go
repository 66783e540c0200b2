package domain

import (
	"context"
	"time"
)

type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id int64) (*Account, error)
	GetByName(ctx context.Context, name string) (*Account, error)
}

type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

type SensorStore interface {
	Create(ctx context.Context, s *Sensor) error
	GetByID(ctx context.Context, id int64) (*Sensor, error)
}

type DataSourceStore interface {
	// GetOrCreate looks up a source by name, type, user and model, creating it when missing.
	GetOrCreate(ctx context.Context, ds *DataSource) error
	GetByID(ctx context.Context, id int64) (*DataSource, error)
	ListBySensor(ctx context.Context, sensorID int64) ([]DataSource, error)
}

type BeliefStore interface {
	// Save stores beliefs, ignoring beliefs that were already recorded. It
	// returns the number of new beliefs.
	Save(ctx context.Context, beliefs []Belief) (int64, error)
	// Search returns beliefs about events in the search window, restricted to
	// the search's sources. Other criteria are applied by the caller.
	Search(ctx context.Context, q BeliefSearch) ([]Belief, error)
}

type AssetStore interface {
	Create(ctx context.Context, a *Asset) error
	GetByID(ctx context.Context, id int64) (*Asset, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Asset, error)
	CreateType(ctx context.Context, t *AssetType) error
	GetType(ctx context.Context, name string) (*AssetType, error)
}

type WeatherSensorStore interface {
	Create(ctx context.Context, ws *WeatherSensor) error
	ListByType(ctx context.Context, typeName string) ([]WeatherSensor, error)
}

type MarketStore interface {
	GetByID(ctx context.Context, id int64) (*Market, error)
	GetByName(ctx context.Context, name string) (*Market, error)
}

type AnnotationStore interface {
	// Create stores the annotation and links it to its accounts.
	Create(ctx context.Context, a *Annotation) error
	ListByAccount(ctx context.Context, accountID int64, start, end time.Time) ([]Annotation, error)
}

type ForecastingJobStore interface {
	Create(ctx context.Context, jobs []ForecastingJob) error
	// ClaimPending marks up to limit pending jobs as in progress and returns them.
	ClaimPending(ctx context.Context, limit int) ([]ForecastingJob, error)
	MarkFinished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	ListBySensor(ctx context.Context, sensorID int64) ([]ForecastingJob, error)
}

type DailyProfileStore interface {
	Upsert(ctx context.Context, p *DailyProfile) error
	Get(ctx context.Context, sensorID int64, day time.Time) (*DailyProfile, error)
	// FindSimilar returns the profiles of days before the given day that are
	// nearest to values, closest first.
	FindSimilar(ctx context.Context, sensorID int64, values []float32, before time.Time, limit int) ([]DailyProfileWithDistance, error)
}

// SensorDataEvent announces newly recorded beliefs.
type SensorDataEvent struct {
	SensorID  int64     `json:"sensor_id"`
	SourceID  int64     `json:"source_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Count     int64     `json:"count"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

type EventPublisher interface {
	PublishSensorData(ctx context.Context, e SensorDataEvent) error
	Close() error
}

// ReportSink receives rendered report output.
type ReportSink interface {
	Write(ctx context.Context, name string, data []byte) error
}
