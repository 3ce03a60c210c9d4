package models

import "time"

// RunReport is the persisted summary of one anonymization run.
type RunReport struct {
	RunID             string    `json:"run_id"`
	K                 int       `json:"k"`
	L                 int       `json:"l"`
	Status            string    `json:"status"`
	KSatisfied        bool      `json:"k_satisfied"`
	LSatisfied        bool      `json:"l_satisfied"`
	Level             int       `json:"level"`
	Records           int       `json:"records"`
	Classes           int       `json:"classes"`
	SuppressedRecords int       `json:"suppressed_records"`
	MalformedValues   int       `json:"malformed_values"`
	Precision         float64   `json:"precision"`
	PrecisionDefined  bool      `json:"precision_defined"`
	AverageClassSize  float64   `json:"average_class_size"`
	StartedAt         time.Time `json:"started_at"`
	DurationMillis    int64     `json:"duration_ms"`
	Artifacts         []string  `json:"artifacts,omitempty"`
}
