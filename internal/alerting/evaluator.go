package alerting

import (
	"math"
	"time"
)

// Outcome is the evaluator's verdict for one rule in one cycle.
type Outcome string

const (
	// OutcomeSkip means no threshold was breached (or the z-score is
	// undefined) and nothing is recorded.
	OutcomeSkip Outcome = "skip"
	// OutcomeSuppressed means a threshold was breached but the rule is
	// still inside its cooldown window.
	OutcomeSuppressed Outcome = "suppressed"
	// OutcomeFire means a threshold was breached and the cooldown has
	// elapsed; the alert goes out and history is written.
	OutcomeFire Outcome = "fire"
)

// EvalInput is everything the evaluator needs. It is plain data so the
// decision stays deterministic and testable without stores or clocks.
type EvalInput struct {
	ZScore     float64
	ZAvailable bool

	ThresholdUpper *float64
	ThresholdLower *float64

	LastTriggered *time.Time
	Cooldown      time.Duration
	Now           time.Time
}

// Decision is the evaluator output. Threshold and Direction are only
// meaningful when a breach occurred (fire or suppressed).
type Decision struct {
	Outcome   Outcome
	Threshold float64
	Direction Direction
}

// Evaluate applies threshold breach detection first and the cooldown
// second. A breach during cooldown is reported as suppressed rather
// than folded into skip, so callers can observe the difference.
func Evaluate(in EvalInput) Decision {
	if !in.ZAvailable || math.IsNaN(in.ZScore) {
		return Decision{Outcome: OutcomeSkip}
	}

	var (
		breached  bool
		threshold float64
		direction Direction
	)
	switch {
	case in.ThresholdUpper != nil && in.ZScore >= *in.ThresholdUpper:
		breached, threshold, direction = true, *in.ThresholdUpper, DirectionUpper
	case in.ThresholdLower != nil && in.ZScore <= *in.ThresholdLower:
		breached, threshold, direction = true, *in.ThresholdLower, DirectionLower
	}
	if !breached {
		return Decision{Outcome: OutcomeSkip}
	}

	if in.LastTriggered != nil && in.Cooldown > 0 {
		if in.Now.Sub(*in.LastTriggered) < in.Cooldown {
			return Decision{Outcome: OutcomeSuppressed, Threshold: threshold, Direction: direction}
		}
	}
	return Decision{Outcome: OutcomeFire, Threshold: threshold, Direction: direction}
}
