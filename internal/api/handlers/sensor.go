package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/schemas"
	"github.com/FlexMeasures/flexmeasures/internal/service"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

type SensorInspector interface {
	Status(ctx context.Context, id int64, spec *schemas.StatusSpec, now time.Time) (*timeseries.Status, error)
	Data(ctx context.Context, q domain.BeliefSearch) (*timeseries.Frame, error)
}

type SensorHandler struct {
	sensors SensorInspector
	now     func() time.Time
}

func NewSensorHandler(sensors SensorInspector) *SensorHandler {
	return &SensorHandler{sensors: sensors, now: time.Now}
}

type statusResponse struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Stale          bool    `json:"stale"`
	Staleness      *string `json:"staleness"`
	StalenessSince *string `json:"staleness_since"`
	MaxStaleness   string  `json:"max_staleness"`
	Reason         string  `json:"reason"`
}

// Status reports whether the sensor's data is stale. The query carries
// max_staleness, an optional staleness_search object and an optional now.
func (h *SensorHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	doc := map[string]json.RawMessage{}
	if v := q.Get("max_staleness"); v != "" {
		doc["max_staleness"], _ = json.Marshal(v)
	}
	if v := q.Get("staleness_search"); v != "" {
		if !json.Valid([]byte(v)) {
			writeUnprocessable(w, map[string][]string{"staleness_search": {"Not a valid JSON object."}})
			return
		}
		doc["staleness_search"] = json.RawMessage(v)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	spec, err := schemas.LoadStatusSpec(raw)
	if err != nil {
		var verr *schemas.ValidationError
		if errors.As(err, &verr) {
			writeUnprocessable(w, verr.Fields)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := h.now()
	if v := q.Get("now"); v != "" {
		if now, err = timeseries.ParseTime(v); err != nil {
			writeUnprocessable(w, map[string][]string{"now": {"Not a valid datetime."}})
			return
		}
	}

	st, err := h.sensors.Status(r.Context(), id, spec, now)
	if err != nil {
		writeSensorError(w, id, err)
		return
	}

	resp := statusResponse{
		ID:           st.SensorID,
		Name:         st.Name,
		Stale:        st.Stale,
		MaxStaleness: timeseries.FormatDuration(st.MaxStaleness),
		Reason:       st.Reason,
	}
	if st.Staleness != nil {
		s := timeseries.FormatDuration(*st.Staleness)
		resp.Staleness = &s
	}
	if st.StalenessSince != nil {
		s := st.StalenessSince.UTC().Format(time.RFC3339)
		resp.StalenessSince = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

type sensorDataResponse struct {
	Sensor int64             `json:"sensor"`
	Data   *timeseries.Frame `json:"data"`
}

// Data returns the most recent beliefs of the sensor as a frame.
func (h *SensorHandler) Data(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}

	search, fields := beliefSearchFromQuery(id, r.URL.Query())
	if len(fields) > 0 {
		writeUnprocessable(w, fields)
		return
	}

	frame, err := h.sensors.Data(r.Context(), search)
	if err != nil {
		writeSensorError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, sensorDataResponse{Sensor: id, Data: frame})
}

func beliefSearchFromQuery(id int64, q url.Values) (domain.BeliefSearch, map[string][]string) {
	search := domain.BeliefSearch{SensorID: id}
	fields := map[string][]string{}

	for name, dst := range map[string]*time.Time{
		"event_starts_after": &search.EventStartsAfter,
		"event_ends_before":  &search.EventEndsBefore,
		"beliefs_after":      &search.BeliefsAfter,
		"beliefs_before":     &search.BeliefsBefore,
	} {
		if v := q.Get(name); v != "" {
			t, err := timeseries.ParseTime(v)
			if err != nil {
				fields[name] = append(fields[name], "Not a valid datetime.")
				continue
			}
			*dst = t
		}
	}
	for name, dst := range map[string]**time.Duration{
		"horizons_at_least": &search.HorizonsAtLeast,
		"horizons_at_most":  &search.HorizonsAtMost,
	} {
		if v := q.Get(name); v != "" {
			d, err := timeseries.ParseDuration(v)
			if err != nil {
				fields[name] = append(fields[name], "Cannot parse "+v+" as ISO 8601 duration.")
				continue
			}
			*dst = &d
		}
	}
	for _, v := range q["source"] {
		sid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fields["source"] = append(fields["source"], "Not a valid integer.")
			continue
		}
		search.SourceIDs = append(search.SourceIDs, sid)
	}
	return search, fields
}

func sensorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sensor id")
		return 0, false
	}
	return id, true
}

func writeSensorError(w http.ResponseWriter, id int64, err error) {
	if errors.Is(err, service.ErrSensorNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No sensor found with id %d.", id))
		return
	}
	writeError(w, http.StatusInternalServerError, "failed to load sensor data")
}

func writeUnprocessable(w http.ResponseWriter, fields map[string][]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fields})
}
