package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/pkg/models"
)

const invalidShapeMessage = "The analysis service returned an unexpected response."

// Decode parses a 2xx response body and checks it against the minimal result
// contract. Any violation is an invalid_result_shape error; nothing is defaulted.
func Decode(body []byte) (*models.AnalysisResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, apperrors.NewInvalidResultShapeError(invalidShapeMessage, fmt.Errorf("body is not a JSON object"))
	}

	var raw models.AnalysisResult
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, apperrors.NewInvalidResultShapeError(invalidShapeMessage, err)
	}
	if err := Validate(&raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// unitValue is an optional field that must lie in [0, 1] when present.
type unitValue struct {
	name  string
	value *float64
}

// Validate checks the required fields and the ranges of every probability.
func Validate(raw *models.AnalysisResult) error {
	if raw == nil {
		return shapeError("result is empty")
	}
	switch {
	case raw.Label == nil:
		return shapeError("missing label")
	case raw.Confidence == nil:
		return shapeError("missing confidence")
	case raw.IsAI == nil:
		return shapeError("missing is_ai")
	case raw.InputType == nil:
		return shapeError("missing input_type")
	}
	if *raw.InputType != models.InputTypeImage && *raw.InputType != models.InputTypeVideo {
		return shapeError(fmt.Sprintf("unknown input_type %q", *raw.InputType))
	}

	probabilities := []unitValue{
		{"confidence", raw.Confidence},
		{"ai_probability", raw.AIProbability},
		{"real_probability", raw.RealProbability},
	}
	if raw.Grok != nil {
		if raw.Grok.Label == nil {
			return shapeError("missing grok.label")
		}
		if raw.Grok.Confidence == nil {
			return shapeError("missing grok.confidence")
		}
		probabilities = append(probabilities, unitValue{"grok.confidence", raw.Grok.Confidence})
	}
	if raw.Ensemble != nil {
		probabilities = append(probabilities, unitValue{"ensemble.confidence", raw.Ensemble.Confidence})
	}

	for _, p := range probabilities {
		if p.value == nil {
			continue
		}
		if v := *p.value; math.IsNaN(v) || v < 0 || v > 1 {
			return shapeError(fmt.Sprintf("%s out of range: %v", p.name, v))
		}
	}
	return nil
}

// Interpret derives the View. It fails only when raw breaks the contract.
//
// The AI probability prefers the explicit ai_probability, then falls back to
// confidence oriented by is_ai. The two are never reconciled here: if the
// service sends a probability that contradicts is_ai, the probability wins.
func Interpret(raw *models.AnalysisResult) (*View, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}

	confidence := *raw.Confidence
	var aiPct float64
	switch {
	case raw.AIProbability != nil:
		aiPct = *raw.AIProbability * 100
	case *raw.IsAI:
		aiPct = confidence * 100
	default:
		aiPct = (1 - confidence) * 100
	}

	realPct := 100 - aiPct
	if raw.RealProbability != nil {
		realPct = *raw.RealProbability * 100
	}

	confidencePct := confidence * 100
	view := &View{
		Label:              *raw.Label,
		IsAI:               *raw.IsAI,
		InputType:          *raw.InputType,
		Provider:           raw.Provider,
		AIProbabilityPct:   aiPct,
		RealProbabilityPct: realPct,
		ConfidencePct:      confidencePct,
		Reliability:        TierFor(confidencePct),
	}

	if *raw.InputType == models.InputTypeVideo {
		view.Video = &VideoAggregates{
			SampledFrames:     copyInt(raw.SampledFrames),
			AIFrames:          copyInt(raw.AIFrames),
			RealFrames:        copyInt(raw.RealFrames),
			SampleIntervalSec: copyFloat(raw.SampleIntervalSec),
			DurationSeconds:   copyFloat(raw.DurationSeconds),
		}
	}

	if raw.Grok != nil {
		view.CrossCheck = &CrossCheck{
			Label:         *raw.Grok.Label,
			ConfidencePct: *raw.Grok.Confidence * 100,
			Provider:      raw.Grok.Provider,
			IsAI:          copyBool(raw.Grok.IsAI),
			Reason:        raw.Grok.Reason,
		}
		if raw.Ensemble != nil {
			ensemble := &Ensemble{
				Label:     copyString(raw.Ensemble.Label),
				Agreement: copyBool(raw.Ensemble.Agreement),
			}
			if raw.Ensemble.Confidence != nil {
				pct := *raw.Ensemble.Confidence * 100
				ensemble.ConfidencePct = &pct
			}
			view.CrossCheck.Ensemble = ensemble
		}
	}

	return view, nil
}

func shapeError(reason string) error {
	return apperrors.NewInvalidResultShapeError(invalidShapeMessage, fmt.Errorf("%s", reason))
}

// The copies keep a View independent of the raw result it was derived from.

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
