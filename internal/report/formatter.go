// Package report renders batch outcomes for the command line.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/truthvision/truthvision-go/internal/batch"
	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/result"
)

// Formatter defines the interface for output formats
type Formatter interface {
	Write(w io.Writer, outcomes []batch.Outcome) error
	GetFormatName() string
}

// FormatterFor returns the formatter registered under name
func FormatterFor(name string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text":
		return &TextFormatter{}, nil
	case "json":
		return &JSONFormatter{Indent: true}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (want text or json)", name)
	}
}

// TextFormatter prints one block per reference
type TextFormatter struct{}

// GetFormatName returns the format name
func (f *TextFormatter) GetFormatName() string { return "text" }

// Write renders outcomes followed by a summary line
func (f *TextFormatter) Write(w io.Writer, outcomes []batch.Outcome) error {
	var b strings.Builder
	failed := 0
	for i, o := range outcomes {
		if i > 0 {
			b.WriteString("\n")
		}
		if o.Failed() {
			failed++
			writeFailure(&b, o)
			continue
		}
		writeView(&b, o.Ref, o.View)
	}
	fmt.Fprintf(&b, "\n%d analyzed, %d failed\n", len(outcomes)-failed, failed)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeFailure(b *strings.Builder, o batch.Outcome) {
	kind := "error"
	if appErr, ok := apperrors.As(o.Err); ok {
		kind = string(appErr.Type)
	}
	fmt.Fprintf(b, "%s: FAILED (%s) %s\n", o.Ref, kind, apperrors.UserMessage(o.Err))
}

func writeView(b *strings.Builder, ref string, v *result.View) {
	if v == nil {
		fmt.Fprintf(b, "%s: no result\n", ref)
		return
	}

	verdict := "real"
	if v.IsAI {
		verdict = "AI"
	}
	fmt.Fprintf(b, "%s: %s (%s, %s)\n", ref, v.Label, verdict, v.InputType)
	fmt.Fprintf(b, "  AI probability:    %.1f%%\n", v.AIProbabilityPct)
	fmt.Fprintf(b, "  Real probability:  %.1f%%\n", v.RealProbabilityPct)
	fmt.Fprintf(b, "  Confidence:        %.1f%% (%s)\n", v.ConfidencePct, tierName(v.Reliability))
	if v.Provider != "" {
		fmt.Fprintf(b, "  Provider:          %s\n", v.Provider)
	}

	if video := v.Video; video != nil {
		fmt.Fprintf(b, "  Sampled frames:    %s\n", intOrUnknown(video.SampledFrames))
		fmt.Fprintf(b, "  AI frames:         %s\n", intOrUnknown(video.AIFrames))
		fmt.Fprintf(b, "  Real frames:       %s\n", intOrUnknown(video.RealFrames))
		fmt.Fprintf(b, "  Sample interval:   %s\n", secondsOrUnknown(video.SampleIntervalSec))
		fmt.Fprintf(b, "  Duration:          %s\n", secondsOrUnknown(video.DurationSeconds))
	}

	if cc := v.CrossCheck; cc != nil {
		fmt.Fprintf(b, "  Cross-check:       %s %.1f%%", cc.Label, cc.ConfidencePct)
		if cc.Provider != "" {
			fmt.Fprintf(b, " [%s]", cc.Provider)
		}
		b.WriteString("\n")
		if cc.Reason != "" {
			fmt.Fprintf(b, "  Reason:            %s\n", cc.Reason)
		}
		if e := cc.Ensemble; e != nil && e.Agreement != nil {
			agreement := "disagree"
			if *e.Agreement {
				agreement = "agree"
			}
			fmt.Fprintf(b, "  Models:            %s\n", agreement)
		}
	}
}

func tierName(t result.Tier) string {
	switch t {
	case result.TierVeryHigh:
		return "very high reliability"
	case result.TierSuspicious:
		return "suspicious"
	default:
		return "low reliability"
	}
}

func intOrUnknown(v *int) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", *v)
}

func secondsOrUnknown(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1fs", *v)
}

// JSONFormatter writes the outcomes as a JSON array
type JSONFormatter struct {
	Indent bool
}

// GetFormatName returns the format name
func (f *JSONFormatter) GetFormatName() string { return "json" }

type jsonOutcome struct {
	Ref        string       `json:"ref"`
	State      string       `json:"state"`
	View       *result.View `json:"view,omitempty"`
	Error      *jsonError   `json:"error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

type jsonError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Write encodes outcomes in input order
func (f *JSONFormatter) Write(w io.Writer, outcomes []batch.Outcome) error {
	out := make([]jsonOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		item := jsonOutcome{
			Ref:        o.Ref,
			State:      o.Snapshot.State.String(),
			View:       o.View,
			DurationMS: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			item.Error = &jsonError{Kind: string(apperrors.ErrorTypeInternal), Message: apperrors.UserMessage(o.Err)}
			if appErr, ok := apperrors.As(o.Err); ok {
				item.Error.Kind = string(appErr.Type)
			}
		}
		out = append(out, item)
	}

	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
