package domain

import (
	"time"
)

type KnowledgeHorizonKind string

const (
	// KnowledgeExPost: events are known once they have ended, shifted by an ex-post horizon.
	KnowledgeExPost KnowledgeHorizonKind = "ex_post"
	// KnowledgeDaysAgoAtHour: events are known X days before, at Y o'clock local time,
	// like day-ahead market prices.
	KnowledgeDaysAgoAtHour KnowledgeHorizonKind = "x_days_ago_at_y_oclock"
)

type KnowledgeHorizon struct {
	Kind          KnowledgeHorizonKind `json:"kind"`
	ExPostHorizon time.Duration        `json:"ex_post_horizon,omitempty"`
	XDaysAgo      int                  `json:"x,omitempty"`
	YOClock       int                  `json:"y,omitempty"`
	Timezone      string               `json:"z,omitempty"`
}

type Sensor struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	Unit             string           `json:"unit"`
	EventResolution  time.Duration    `json:"event_resolution"`
	Timezone         string           `json:"timezone"`
	KnowledgeHorizon KnowledgeHorizon `json:"knowledge_horizon"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Location returns the sensor's timezone, falling back to UTC.
func (s *Sensor) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// KnowledgeTime returns the moment at which the event starting at eventStart
// could have been known.
func (s *Sensor) KnowledgeTime(eventStart time.Time) time.Time {
	kh := s.KnowledgeHorizon
	switch kh.Kind {
	case KnowledgeDaysAgoAtHour:
		loc := time.UTC
		if kh.Timezone != "" {
			if l, err := time.LoadLocation(kh.Timezone); err == nil {
				loc = l
			}
		}
		local := eventStart.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day()-kh.XDaysAgo, kh.YOClock, 0, 0, 0, loc)
	default:
		return eventStart.Add(s.EventResolution - kh.ExPostHorizon)
	}
}

// BeliefTime returns when a belief with the given horizon about the event
// starting at eventStart was formed.
func (s *Sensor) BeliefTime(eventStart time.Time, horizon time.Duration) time.Time {
	return s.KnowledgeTime(eventStart).Add(-horizon)
}

// HorizonAt returns the belief horizon of a belief formed at beliefTime.
func (s *Sensor) HorizonAt(eventStart, beliefTime time.Time) time.Duration {
	return s.KnowledgeTime(eventStart).Sub(beliefTime)
}
