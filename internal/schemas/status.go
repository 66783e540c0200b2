package schemas

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
)

// StalenessSearch narrows the beliefs that count towards a sensor's staleness.
type StalenessSearch struct {
	EventStartsAfter *Timestamp `json:"event_starts_after,omitempty"`
	EventEndsBefore  *Timestamp `json:"event_ends_before,omitempty"`
	BeliefsAfter     *Timestamp `json:"beliefs_after,omitempty"`
	BeliefsBefore    *Timestamp `json:"beliefs_before,omitempty"`
	HorizonsAtLeast  *Duration  `json:"horizons_at_least,omitempty"`
	HorizonsAtMost   *Duration  `json:"horizons_at_most,omitempty"`
	Source           *int64     `json:"source,omitempty"`
}

// BeliefSearch converts the staleness search for the given sensor.
func (s StalenessSearch) BeliefSearch(sensorID int64) domain.BeliefSearch {
	q := domain.BeliefSearch{SensorID: sensorID}
	if s.EventStartsAfter != nil {
		q.EventStartsAfter = s.EventStartsAfter.Time()
	}
	if s.EventEndsBefore != nil {
		q.EventEndsBefore = s.EventEndsBefore.Time()
	}
	if s.BeliefsAfter != nil {
		q.BeliefsAfter = s.BeliefsAfter.Time()
	}
	if s.BeliefsBefore != nil {
		q.BeliefsBefore = s.BeliefsBefore.Time()
	}
	if s.HorizonsAtLeast != nil {
		d := time.Duration(*s.HorizonsAtLeast)
		q.HorizonsAtLeast = &d
	}
	if s.HorizonsAtMost != nil {
		d := time.Duration(*s.HorizonsAtMost)
		q.HorizonsAtMost = &d
	}
	if s.Source != nil {
		q.SourceIDs = []int64{*s.Source}
	}
	return q
}

// StatusSpec says how to judge whether a sensor's data is stale.
type StatusSpec struct {
	StalenessSearch StalenessSearch `json:"staleness_search"`
	MaxStaleness    Duration        `json:"max_staleness"`
}

// LoadStatusSpec decodes and validates a status specification.
func LoadStatusSpec(data []byte) (*StatusSpec, error) {
	var raw struct {
		StalenessSearch *json.RawMessage `json:"staleness_search"`
		MaxStaleness    *json.RawMessage `json:"max_staleness"`
	}
	verr := &ValidationError{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		verr.add("_schema", "Invalid input: "+err.Error())
		return nil, verr
	}

	spec := &StatusSpec{}
	if raw.StalenessSearch != nil {
		if err := decodeStrict(*raw.StalenessSearch, &spec.StalenessSearch); err != nil {
			verr.add("staleness_search", fieldMessage(err))
		}
	}
	if raw.MaxStaleness == nil {
		verr.add("max_staleness", msgRequired)
	} else if err := json.Unmarshal(*raw.MaxStaleness, &spec.MaxStaleness); err != nil {
		verr.add("max_staleness", fieldMessage(err))
	} else if spec.MaxStaleness < 0 {
		verr.add("max_staleness", "Must be a positive duration.")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return spec, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func fieldMessage(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Msg
	}
	return strings.TrimPrefix(err.Error(), "json: ")
}
