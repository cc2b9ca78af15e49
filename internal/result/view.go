// Package result turns the raw detection response into display-ready values.
// Everything here is a pure function of its input.
package result

// Tier is a coarse reliability bucket over the confidence percentage.
type Tier string

const (
	TierVeryHigh   Tier = "very_high"
	TierSuspicious Tier = "suspicious"
	TierLow        Tier = "low"
)

// Reliability cut points, in percent. Fixed policy: above VeryHighAbovePct
// is very high, [SuspiciousFromPct, VeryHighAbovePct] asks for manual
// review, anything lower is low.
const (
	VeryHighAbovePct  = 99.9
	SuspiciousFromPct = 90.0
)

// View is the derived, display-ready form of an AnalysisResult.
type View struct {
	Label     string `json:"label"`
	IsAI      bool   `json:"is_ai"`
	InputType string `json:"input_type"`
	Provider  string `json:"provider,omitempty"`

	AIProbabilityPct   float64 `json:"ai_probability_pct"`
	RealProbabilityPct float64 `json:"real_probability_pct"`
	ConfidencePct      float64 `json:"confidence_pct"`
	Reliability        Tier    `json:"reliability"`

	// Video is set iff the input was a video.
	Video *VideoAggregates `json:"video,omitempty"`
	// CrossCheck is set iff the service returned a secondary verdict.
	CrossCheck *CrossCheck `json:"cross_check,omitempty"`
}

// VideoAggregates are passed through from the service. A nil field was not
// reported and must be shown as unknown.
type VideoAggregates struct {
	SampledFrames     *int     `json:"sampled_frames,omitempty"`
	AIFrames          *int     `json:"ai_frames,omitempty"`
	RealFrames        *int     `json:"real_frames,omitempty"`
	SampleIntervalSec *float64 `json:"sample_interval_sec,omitempty"`
	DurationSeconds   *float64 `json:"duration_seconds,omitempty"`
}

// CrossCheck is the secondary verdict plus the service's ensemble decision.
type CrossCheck struct {
	Label         string    `json:"label"`
	ConfidencePct float64   `json:"confidence_pct"`
	Provider      string    `json:"provider,omitempty"`
	IsAI          *bool     `json:"is_ai,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Ensemble      *Ensemble `json:"ensemble,omitempty"`
}

// Ensemble mirrors the service's combined verdict. Agreement is never
// recomputed locally.
type Ensemble struct {
	Label         *string  `json:"label,omitempty"`
	ConfidencePct *float64 `json:"confidence_pct,omitempty"`
	Agreement     *bool    `json:"agreement,omitempty"`
}

// TierFor buckets a confidence percentage.
func TierFor(confidencePct float64) Tier {
	switch {
	case confidencePct > VeryHighAbovePct:
		return TierVeryHigh
	case confidencePct >= SuspiciousFromPct:
		return TierSuspicious
	default:
		return TierLow
	}
}
