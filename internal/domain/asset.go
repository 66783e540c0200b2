package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// AssetType describes a kind of asset.
type AssetType struct {
	Name              string `json:"name"`
	DisplayName       string `json:"display_name"`
	IsConsumer        bool   `json:"is_consumer"`
	IsProducer        bool   `json:"is_producer"`
	CanCurtail        bool   `json:"can_curtail"`
	CanShift          bool   `json:"can_shift"`
	DailySeasonality  bool   `json:"daily_seasonality"`
	WeeklySeasonality bool   `json:"weekly_seasonality"`
	YearlySeasonality bool   `json:"yearly_seasonality"`
}

// NewAssetType normalises the name and derives a display name if none is given.
func NewAssetType(t AssetType) AssetType {
	t.Name = NormalizeName(t.Name)
	if t.DisplayName == "" {
		t.DisplayName = Humanize(t.Name)
	}
	return t
}

func (t AssetType) IconName() string {
	switch t.Name {
	case "solar":
		return "icon-solar"
	case "wind":
		return "icon-wind"
	case "charging_station", "bidirectional_charging_station":
		return "icon-charging_station"
	case "battery":
		return "icon-battery"
	case "building":
		return "icon-building"
	}
	return ""
}

// Preconditions are assumptions about the time series of this asset type.
func (t AssetType) Preconditions() map[string]bool {
	return map[string]bool{
		"daily_seasonality":  t.DailySeasonality,
		"weekly_seasonality": t.WeeklySeasonality,
		"yearly_seasonality": t.YearlySeasonality,
	}
}

// WeatherCorrelations lists the weather sensor types known to correlate with this asset type.
func (t AssetType) WeatherCorrelations() []string {
	var correlations []string
	switch t.Name {
	case "solar":
		correlations = append(correlations, "radiation")
	case "wind":
		correlations = append(correlations, "wind_speed")
	case "charging_station", "bidirectional_charging_station", "battery", "building":
		correlations = append(correlations, "temperature")
	}
	return correlations
}

func (t AssetType) PluralizedName() string {
	return Pluralize(t.Name)
}

// Asset is energy-consuming or -producing hardware. Its power is recorded on
// its own sensor; negative values indicate consumption.
type Asset struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	DisplayName   string          `json:"display_name"`
	AssetTypeName string          `json:"asset_type_name"`
	Unit          string          `json:"unit"`
	CapacityInMW  float64         `json:"capacity_in_mw"`
	MinSOCInMWh   *float64        `json:"min_soc_in_mwh,omitempty"`
	MaxSOCInMWh   *float64        `json:"max_soc_in_mwh,omitempty"`
	SOCInMWh      *float64        `json:"soc_in_mwh,omitempty"`
	SOCDatetime   *time.Time      `json:"soc_datetime,omitempty"`
	Latitude      float64         `json:"latitude"`
	Longitude     float64         `json:"longitude"`
	OwnerID       int64           `json:"owner_id"`
	MarketID      *int64          `json:"market_id,omitempty"`
	SensorID      int64           `json:"sensor_id"`
	FlexContext   json.RawMessage `json:"flex_context,omitempty"`

	AssetType *AssetType `json:"-"`
}

// AssetResolution is the event resolution of asset power data.
const AssetResolution = 15 * time.Minute

// NewAsset strips a trailing " (MW)" from the name and derives a display name if none is given.
func NewAsset(a Asset) Asset {
	a.Name = strings.ReplaceAll(a.Name, " (MW)", "")
	if a.DisplayName == "" {
		a.DisplayName = Titleize(a.Name)
	}
	if a.Unit == "" {
		a.Unit = "MW"
	}
	return a
}

func (a *Asset) Resolution() time.Duration { return AssetResolution }

func (a *Asset) PowerUnit() string { return a.Unit }

func (a *Asset) AssetTypeDisplayName() string { return Titleize(a.AssetTypeName) }

func (a *Asset) Location() (float64, float64) { return a.Latitude, a.Longitude }

// EntityAddress returns the USEF entity address of this asset,
// e.g. "ea1.2018-06.io.flexmeasures:3:12".
func (a *Asset) EntityAddress(scheme, namingAuthority string) string {
	return fmt.Sprintf("%s.%s:%d:%d", scheme, namingAuthority, a.OwnerID, a.ID)
}

// CapacityFactorInPercentFor returns the load as a share of capacity, capped at 100.
func (a *Asset) CapacityFactorInPercentFor(loadInMW float64) float64 {
	if a.CapacityInMW == 0 {
		return 0
	}
	return math.Min(math.Round(loadInMW/a.CapacityInMW*100*100)/100, 100)
}

func (a *Asset) IsPureConsumer() bool {
	return a.AssetType != nil && a.AssetType.IsConsumer && !a.AssetType.IsProducer
}

func (a *Asset) IsPureProducer() bool {
	return a.AssetType != nil && a.AssetType.IsProducer && !a.AssetType.IsConsumer
}

// Market is where prices for a commodity are determined.
type Market struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Unit        string `json:"unit"`
	SensorID    int64  `json:"sensor_id"`
}
