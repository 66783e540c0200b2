package domain

import (
	"time"
)

type AnnotationType string

const (
	AnnotationLabel    AnnotationType = "label"
	AnnotationHoliday  AnnotationType = "holiday"
	AnnotationAlert    AnnotationType = "alert"
	AnnotationFeedback AnnotationType = "feedback"
)

func ValidAnnotationType(t string) bool {
	switch AnnotationType(t) {
	case AnnotationLabel, AnnotationHoliday, AnnotationAlert, AnnotationFeedback:
		return true
	}
	return false
}

// Annotation is a note about a period of time, linked to accounts.
type Annotation struct {
	ID         int64          `json:"id"`
	Content    string         `json:"content"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	Type       AnnotationType `json:"type"`
	SourceID   int64          `json:"source_id"`
	AccountIDs []int64        `json:"account_ids"`
	CreatedAt  time.Time      `json:"created_at"`
}
