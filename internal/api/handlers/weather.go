package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/service"
)

type WeatherLocator interface {
	Closest(ctx context.Context, typeName string, lat, lng float64) (*domain.WeatherSensor, float64, error)
}

type WeatherHandler struct {
	weather WeatherLocator
}

func NewWeatherHandler(weather WeatherLocator) *WeatherHandler {
	return &WeatherHandler{weather: weather}
}

type closestResponse struct {
	domain.WeatherSensor
	DistanceKm float64 `json:"distance_km"`
}

// Closest finds the weather sensor of a type nearest to a location.
func (h *WeatherHandler) Closest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typeName := q.Get("type")
	if typeName == "" {
		writeUnprocessable(w, map[string][]string{"type": {"Missing data for required field."}})
		return
	}
	fields := map[string][]string{}
	coord := func(name string) float64 {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			fields[name] = append(fields[name], "Not a valid number.")
		}
		return v
	}
	lat, lng := coord("latitude"), coord("longitude")
	if len(fields) > 0 {
		writeUnprocessable(w, fields)
		return
	}

	ws, km, err := h.weather.Closest(r.Context(), typeName, lat, lng)
	if err != nil {
		if errors.Is(err, service.ErrNoWeatherSensor) {
			writeError(w, http.StatusNotFound, "No weather sensor of type '"+typeName+"' found.")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to find weather sensor")
		return
	}
	writeJSON(w, http.StatusOK, closestResponse{WeatherSensor: *ws, DistanceKm: km})
}
