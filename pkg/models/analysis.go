package models

import "encoding/json"

// AnalysisResult is the body returned by the detection service for POST /analyze.
// Required fields are pointers so a missing field can be told apart from a zero value.
type AnalysisResult struct {
	Label      *string  `json:"label"`
	Confidence *float64 `json:"confidence"`
	IsAI       *bool    `json:"is_ai"`
	InputType  *string  `json:"input_type"`

	AIProbability   *float64 `json:"ai_probability,omitempty"`
	RealProbability *float64 `json:"real_probability,omitempty"`
	Provider        string   `json:"provider,omitempty"`

	// Video aggregates, only meaningful when InputType is "video"
	SampledFrames     *int     `json:"sampled_frames,omitempty"`
	AIFrames          *int     `json:"ai_frames,omitempty"`
	RealFrames        *int     `json:"real_frames,omitempty"`
	SampleIntervalSec *float64 `json:"sample_interval_sec,omitempty"`
	DurationSeconds   *float64 `json:"duration_seconds,omitempty"`

	// Secondary verdict and its agreement with the primary one
	Grok     *SecondaryVerdict `json:"grok,omitempty"`
	Ensemble *EnsembleVerdict  `json:"ensemble,omitempty"`
}

// SecondaryVerdict is the cross-check classification from a second provider.
type SecondaryVerdict struct {
	Label           *string  `json:"label"`
	Confidence      *float64 `json:"confidence"`
	Provider        string   `json:"provider,omitempty"`
	IsAI            *bool    `json:"is_ai,omitempty"`
	AIProbability   *float64 `json:"ai_probability,omitempty"`
	RealProbability *float64 `json:"real_probability,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

// EnsembleVerdict combines the primary and secondary verdicts. Agreement is
// decided by the service.
type EnsembleVerdict struct {
	Label      *string  `json:"label"`
	Confidence *float64 `json:"confidence"`
	Agreement  *bool    `json:"agreement"`
}

// Input types reported by the service.
const (
	InputTypeImage = "image"
	InputTypeVideo = "video"
)

// DetailResponse is the error body of a non-2xx response. Detail is kept raw
// because validation failures carry a list instead of a string.
type DetailResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
