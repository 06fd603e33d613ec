package domain

import (
	"time"
)

// SubmissionWithContext is the fully pre-joined input to a scoring run.
// The ingestion pipeline builds it; this engine never queries raw
// submission storage itself. Historical windows are read-only.
type SubmissionWithContext struct {
	SubmissionID string `json:"submissionId"`
	EnumeratorID string `json:"enumeratorId"`
	FormID       string `json:"formId"`

	SubmittedAt time.Time `json:"submittedAt"`

	// GPS coordinates as captured by the device. Nil when the client did
	// not record a fix. Accuracy is the device-reported radius in meters.
	GPSLatitude  *float64 `json:"gpsLatitude,omitempty"`
	GPSLongitude *float64 `json:"gpsLongitude,omitempty"`
	GPSAccuracyM *float64 `json:"gpsAccuracyM,omitempty"`

	CompletionTimeSeconds *int `json:"completionTimeSeconds,omitempty"`

	// RawData maps question name to the recorded answer. Keys prefixed
	// with "_" are reserved for metadata and excluded from comparisons.
	RawData map[string]any `json:"rawData,omitempty"`

	FormSchema *FormSchema `json:"formSchema,omitempty"`

	// RecentSubmissions holds the same enumerator's submissions inside
	// the lookback window, any form.
	RecentSubmissions []HistoricalSubmission `json:"recentSubmissions,omitempty"`

	// NearbySubmissions holds other enumerators' geographically close
	// submissions inside the cluster time window.
	NearbySubmissions []NearbySubmission `json:"nearbySubmissions,omitempty"`
}

// HistoricalSubmission is one entry in the same-enumerator window.
type HistoricalSubmission struct {
	ID                    string         `json:"id"`
	EnumeratorID          string         `json:"enumeratorId"`
	FormID                string         `json:"formId"`
	SubmittedAt           time.Time      `json:"submittedAt"`
	GPSLatitude           *float64       `json:"gpsLatitude,omitempty"`
	GPSLongitude          *float64       `json:"gpsLongitude,omitempty"`
	CompletionTimeSeconds *int           `json:"completionTimeSeconds,omitempty"`
	RawData               map[string]any `json:"rawData,omitempty"`
}

// NearbySubmission is one entry in the cross-enumerator geographic window.
type NearbySubmission struct {
	ID           string    `json:"id"`
	EnumeratorID string    `json:"enumeratorId"`
	SubmittedAt  time.Time `json:"submittedAt"`
	GPSLatitude  *float64  `json:"gpsLatitude,omitempty"`
	GPSLongitude *float64  `json:"gpsLongitude,omitempty"`
}

// FormSchema is the questionnaire structure used to classify questions.
type FormSchema struct {
	Sections []FormSection `json:"sections"`
}

// FormSection groups questions; scale batteries never span sections.
type FormSection struct {
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	Questions []FormQuestion `json:"questions"`
}

// FormQuestion is one question definition.
type FormQuestion struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Question type classes used by the speed bootstrap and battery detection.
// Unknown types fall back to closed-choice timing.
const (
	QuestionClassClosed  = "closed"
	QuestionClassOpen    = "open"
	QuestionClassNumeric = "numeric"
)

var questionClasses = map[string]string{
	"select_one":      QuestionClassClosed,
	"select_multiple": QuestionClassClosed,
	"radio":           QuestionClassClosed,
	"checkbox":        QuestionClassClosed,
	"boolean":         QuestionClassClosed,
	"likert":          QuestionClassClosed,
	"text":            QuestionClassOpen,
	"textarea":        QuestionClassOpen,
	"string":          QuestionClassOpen,
	"number":          QuestionClassNumeric,
	"integer":         QuestionClassNumeric,
	"decimal":         QuestionClassNumeric,
	"numeric":         QuestionClassNumeric,
}

// Class returns the timing class for the question's type.
func (q FormQuestion) Class() string {
	if c, ok := questionClasses[q.Type]; ok {
		return c
	}
	return QuestionClassClosed
}

// IsScale reports whether the question belongs in a straight-lining battery.
func (q FormQuestion) IsScale() bool {
	switch q.Type {
	case "select_one", "likert", "radio":
		return true
	}
	return false
}
