// Package classify maps composite fingerprint scores to traffic classes.
package classify

import (
	"errors"
	"fmt"

	"github.com/sundew-sh/sundew/internal/models"
)

// Classification thresholds. Scores below ThresholdAutomated are human,
// below ThresholdAIAssisted automated, below ThresholdAIAgent AI-assisted,
// and everything at or above ThresholdAIAgent is an AI agent.
const (
	ThresholdAutomated  = 0.3
	ThresholdAIAssisted = 0.6
	ThresholdAIAgent    = 0.8
)

// ErrInvalidScore is returned when a composite score falls outside [0,1].
var ErrInvalidScore = errors.New("composite score outside [0,1]")

// Classify maps a composite score in [0,1] to one of the four traffic
// classes.
func Classify(composite float64) (models.Classification, error) {
	if composite < 0.0 || composite > 1.0 {
		return models.ClassUnknown, fmt.Errorf("%w: %v", ErrInvalidScore, composite)
	}
	switch {
	case composite < ThresholdAutomated:
		return models.ClassHuman, nil
	case composite < ThresholdAIAssisted:
		return models.ClassAutomated, nil
	case composite < ThresholdAIAgent:
		return models.ClassAIAssisted, nil
	default:
		return models.ClassAIAgent, nil
	}
}

// Details carries the classification along with the per-signal breakdown
// and the strongest contributing signal.
type Details struct {
	Classification models.Classification `json:"classification"`
	Composite      float64               `json:"composite"`
	Signals        map[string]float64    `json:"signals"`
	DominantSignal string                `json:"dominant_signal"`
}

// ClassifyWithDetails classifies the composite and reports which of the
// five signals contributed the highest score.
func ClassifyWithDetails(scores models.FingerprintScores) (Details, error) {
	class, err := Classify(scores.Composite)
	if err != nil {
		return Details{}, err
	}

	signals := scores.Signals()
	dominant := ""
	best := -1.0
	// Iterate in a fixed order so ties resolve deterministically.
	for _, name := range []string{"timing_regularity", "path_enumeration", "header_anomaly", "prompt_leakage", "mcp_behavior"} {
		if signals[name] > best {
			best = signals[name]
			dominant = name
		}
	}

	return Details{
		Classification: class,
		Composite:      scores.Composite,
		Signals:        signals,
		DominantSignal: dominant,
	}, nil
}
