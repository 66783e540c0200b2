package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/reporting"
	"github.com/FlexMeasures/flexmeasures/internal/schemas"
	"github.com/FlexMeasures/flexmeasures/internal/service"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
	"github.com/goccy/go-json"
)

const powerUnit = "MW"

// message is a USEF request as it arrives in a query string or JSON body.
// Times and durations are kept as text until the message is validated.
type message struct {
	Type        string                   `json:"type"`
	Connection  string                   `json:"connection"`
	Connections []string                 `json:"connections"`
	Groups      []messageGroup           `json:"groups"`
	Value       schemas.SingleValueField `json:"value"`
	Values      schemas.SingleValueField `json:"values"`
	Start       string                   `json:"start"`
	Duration    string                   `json:"duration"`
	Horizon     string                   `json:"horizon"`
	Resolution  string                   `json:"resolution"`
	Unit        string                   `json:"unit"`
	Source      reporting.SourceIDs      `json:"source"`
}

type messageGroup struct {
	Connection  string                   `json:"connection"`
	Connections []string                 `json:"connections"`
	Value       schemas.SingleValueField `json:"value"`
	Values      schemas.SingleValueField `json:"values"`
}

// usefError is a request problem with its USEF status.
type usefError struct {
	code   int
	status string
	msg    string
}

func (e *usefError) Error() string { return e.msg }

func badRequest(status, msg string) *usefError {
	return &usefError{code: http.StatusBadRequest, status: status, msg: msg}
}

// readMessage reads the message from the query string of GET requests and
// from the body otherwise.
func readMessage(r *http.Request) (*message, *usefError) {
	if r.Method == http.MethodGet {
		return messageFromQuery(r.URL.Query())
	}
	var m message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		return nil, badRequest(StatusInvalidMessageType, "Request message is not valid JSON: "+err.Error())
	}
	return &m, nil
}

func messageFromQuery(q url.Values) (*message, *usefError) {
	m := &message{
		Type:        q.Get("type"),
		Connection:  q.Get("connection"),
		Connections: q["connections"],
		Start:       q.Get("start"),
		Duration:    q.Get("duration"),
		Horizon:     q.Get("horizon"),
		Resolution:  q.Get("resolution"),
		Unit:        q.Get("unit"),
	}
	for _, s := range q["source"] {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, badRequest(StatusInvalidMessageType, "Source should be a data source id, got "+strconv.Quote(s)+".")
		}
		m.Source = append(m.Source, id)
	}
	return m, nil
}

func (m *message) checkType(want string) *usefError {
	if m.Type != want {
		return badRequest(StatusInvalidMessageType, "Request message should include 'type' of '"+want+"'.")
	}
	return nil
}

func (m *message) checkUnit() *usefError {
	if m.Unit != powerUnit {
		return badRequest(StatusInvalidUnit, "Data should be given in "+powerUnit+".")
	}
	return nil
}

var errUnrecognizedGroup = badRequest(StatusUnrecognizedConnectionGroup,
	"One or more connections in your request were not found in your account.")

// queryGroups groups connections for retrieval. Connections listed on the
// message are reported one by one; the connections of a group are summed.
func (m *message) queryGroups() ([]service.ConnectionGroup, *usefError) {
	var groups []service.ConnectionGroup
	switch {
	case m.Connection != "":
		groups = append(groups, service.ConnectionGroup{Connections: []string{m.Connection}})
	case len(m.Connections) > 0:
		for _, c := range m.Connections {
			groups = append(groups, service.ConnectionGroup{Connections: []string{c}})
		}
	default:
		for _, g := range m.Groups {
			cs := g.connections()
			if len(cs) == 0 {
				return nil, errUnrecognizedGroup
			}
			groups = append(groups, service.ConnectionGroup{Connections: cs})
		}
	}
	if len(groups) == 0 {
		return nil, errUnrecognizedGroup
	}
	return groups, nil
}

// postGroups pairs the posted values with the connections they are about.
func (m *message) postGroups() ([]service.ConnectionGroup, *usefError) {
	var groups []service.ConnectionGroup
	if m.Connection != "" || len(m.Connections) > 0 {
		cs := m.Connections
		if m.Connection != "" {
			cs = []string{m.Connection}
		}
		groups = append(groups, service.ConnectionGroup{Connections: cs, Values: valuesOf(m.Value, m.Values)})
	}
	for _, g := range m.Groups {
		cs := g.connections()
		if len(cs) == 0 {
			return nil, errUnrecognizedGroup
		}
		groups = append(groups, service.ConnectionGroup{Connections: cs, Values: valuesOf(g.Value, g.Values)})
	}
	if len(groups) == 0 {
		return nil, errUnrecognizedGroup
	}
	for _, g := range groups {
		if len(g.Values) == 0 {
			return nil, badRequest(StatusInvalidMessageType, "Request message should include 'values'.")
		}
	}
	return groups, nil
}

func (g messageGroup) connections() []string {
	if g.Connection != "" {
		return []string{g.Connection}
	}
	return g.Connections
}

func valuesOf(value, values schemas.SingleValueField) []float64 {
	if len(values) > 0 {
		return values.Floats()
	}
	return value.Floats()
}

func (m *message) period() (time.Time, time.Duration, *usefError) {
	if m.Start == "" || m.Duration == "" {
		return time.Time{}, 0, badRequest(StatusInvalidPeriod, "A time period should be given with 'start' and 'duration'.")
	}
	start, err := timeseries.ParseTime(m.Start)
	if err != nil {
		return time.Time{}, 0, badRequest(StatusInvalidPeriod, "Cannot parse start "+strconv.Quote(m.Start)+" as an ISO 8601 datetime.")
	}
	d, err := timeseries.ParseDuration(m.Duration)
	if err != nil || d <= 0 {
		return time.Time{}, 0, badRequest(StatusInvalidPeriod, "Cannot parse duration "+strconv.Quote(m.Duration)+" as a positive ISO 8601 duration.")
	}
	return start, d, nil
}

// horizon returns nil when the message has no horizon.
func (m *message) horizon() (*time.Duration, bool, *usefError) {
	if m.Horizon == "" {
		return nil, false, nil
	}
	d, rolling, err := timeseries.ParseHorizon(m.Horizon)
	if err != nil {
		return nil, false, badRequest(StatusInvalidHorizon, "Cannot parse horizon "+strconv.Quote(m.Horizon)+" as an ISO 8601 duration.")
	}
	return &d, rolling, nil
}

// resolution returns zero when the message has no resolution.
func (m *message) resolution() (time.Duration, *usefError) {
	if m.Resolution == "" {
		return 0, nil
	}
	d, err := timeseries.ParseDuration(m.Resolution)
	if err != nil || d <= 0 {
		return 0, badRequest(StatusInvalidResolution, "Cannot parse resolution "+strconv.Quote(m.Resolution)+" as a positive ISO 8601 duration.")
	}
	return d, nil
}
