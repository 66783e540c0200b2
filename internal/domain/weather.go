package domain

import (
	"math"
	"time"
)

const earthRadiusKm = 6371

type WeatherSensorType struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func NewWeatherSensorType(t WeatherSensorType) WeatherSensorType {
	t.Name = NormalizeName(t.Name)
	if t.DisplayName == "" {
		t.DisplayName = Humanize(t.Name)
	}
	return t
}

func (t WeatherSensorType) IconName() string {
	switch t.Name {
	case "radiation":
		return "wi wi-horizon-alt"
	case "temperature":
		return "wi wi-thermometer"
	case "wind_direction":
		return "wi wi-wind-direction"
	case "wind_speed":
		return "wi wi-strong-wind"
	}
	return ""
}

// WeatherSensor measures weather values of one type at a location.
// Only one sensor of each type exists per location.
type WeatherSensor struct {
	ID                    int64   `json:"id"`
	Name                  string  `json:"name"`
	DisplayName           string  `json:"display_name"`
	WeatherSensorTypeName string  `json:"sensor_type"`
	Unit                  string  `json:"unit"`
	Latitude              float64 `json:"latitude"`
	Longitude             float64 `json:"longitude"`
	SensorID              int64   `json:"sensor_id"`
}

func NewWeatherSensor(s WeatherSensor) WeatherSensor {
	s.Name = NormalizeName(s.Name)
	return s
}

func (s *WeatherSensor) Resolution() time.Duration { return 15 * time.Minute }

func (s *WeatherSensor) Location() (float64, float64) { return s.Latitude, s.Longitude }

// GreatCircleDistance returns the distance in km to the given coordinates.
func (s *WeatherSensor) GreatCircleDistance(lat, lng float64) float64 {
	return GreatCircleDistance(s.Latitude, s.Longitude, lat, lng)
}

// GreatCircleDistance returns the distance in km between two coordinates,
// using the spherical law of cosines.
func GreatCircleDistance(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	cos := math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Cos(lng1*rad-lng2*rad) +
		math.Sin(lat1*rad)*math.Sin(lat2*rad)
	// guard against rounding just outside acos' domain
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * earthRadiusKm
}
