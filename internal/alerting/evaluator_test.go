package alerting

import (
	"math"
	"testing"
	"time"
)

func ptr(v float64) *float64 { return &v }

func TestEvaluateSkipsWhenZUnavailable(t *testing.T) {
	d := Evaluate(EvalInput{
		ZScore:         5.0,
		ZAvailable:     false,
		ThresholdUpper: ptr(2.0),
		Now:            time.Now(),
	})
	if d.Outcome != OutcomeSkip {
		t.Fatalf("outcome = %s, want skip", d.Outcome)
	}
}

func TestEvaluateSkipsNaN(t *testing.T) {
	d := Evaluate(EvalInput{
		ZScore:         math.NaN(),
		ZAvailable:     true,
		ThresholdUpper: ptr(2.0),
		Now:            time.Now(),
	})
	if d.Outcome != OutcomeSkip {
		t.Fatalf("outcome = %s, want skip", d.Outcome)
	}
}

func TestEvaluateUpperBreach(t *testing.T) {
	d := Evaluate(EvalInput{
		ZScore:         2.5,
		ZAvailable:     true,
		ThresholdUpper: ptr(2.0),
		ThresholdLower: ptr(-2.0),
		Now:            time.Now(),
	})
	if d.Outcome != OutcomeFire {
		t.Fatalf("outcome = %s, want fire", d.Outcome)
	}
	if d.Direction != DirectionUpper || d.Threshold != 2.0 {
		t.Fatalf("direction/threshold = %s/%v", d.Direction, d.Threshold)
	}
}

func TestEvaluateLowerBreach(t *testing.T) {
	d := Evaluate(EvalInput{
		ZScore:         -2.1,
		ZAvailable:     true,
		ThresholdUpper: ptr(2.0),
		ThresholdLower: ptr(-2.0),
		Now:            time.Now(),
	})
	if d.Outcome != OutcomeFire {
		t.Fatalf("outcome = %s, want fire", d.Outcome)
	}
	if d.Direction != DirectionLower || d.Threshold != -2.0 {
		t.Fatalf("direction/threshold = %s/%v", d.Direction, d.Threshold)
	}
}

func TestEvaluateExactThresholdFires(t *testing.T) {
	d := Evaluate(EvalInput{
		ZScore:         2.0,
		ZAvailable:     true,
		ThresholdUpper: ptr(2.0),
		Now:            time.Now(),
	})
	if d.Outcome != OutcomeFire {
		t.Fatalf("z equal to the bound should fire, got %s", d.Outcome)
	}
}

func TestEvaluateNilThresholdsNeverBreach(t *testing.T) {
	d := Evaluate(EvalInput{
		ZScore:     99,
		ZAvailable: true,
		Now:        time.Now(),
	})
	if d.Outcome != OutcomeSkip {
		t.Fatalf("outcome = %s, want skip", d.Outcome)
	}
}

func TestEvaluateCooldownSuppresses(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-5 * time.Minute)
	d := Evaluate(EvalInput{
		ZScore:         3.0,
		ZAvailable:     true,
		ThresholdUpper: ptr(2.0),
		LastTriggered:  &last,
		Cooldown:       15 * time.Minute,
		Now:            now,
	})
	if d.Outcome != OutcomeSuppressed {
		t.Fatalf("outcome = %s, want suppressed", d.Outcome)
	}
	if d.Direction != DirectionUpper {
		t.Fatalf("suppressed decision should still carry the breach direction")
	}
}

func TestEvaluateCooldownElapsedFires(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-16 * time.Minute)
	d := Evaluate(EvalInput{
		ZScore:         3.0,
		ZAvailable:     true,
		ThresholdUpper: ptr(2.0),
		LastTriggered:  &last,
		Cooldown:       15 * time.Minute,
		Now:            now,
	})
	if d.Outcome != OutcomeFire {
		t.Fatalf("outcome = %s, want fire", d.Outcome)
	}
}

// A rule with bounds at +/-2.0 and a 15 minute cooldown, fed one z-score
// per minute: 1.0 then 2.5 then 2.6 then 2.4. Exactly one alert fires,
// at 2.5; the later breaches land in the cooldown window.
func TestEvaluateCooldownScenario(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	zs := []float64{1.0, 2.5, 2.6, 2.4}
	want := []Outcome{OutcomeSkip, OutcomeFire, OutcomeSuppressed, OutcomeSuppressed}

	var lastTriggered *time.Time
	for i, z := range zs {
		now := start.Add(time.Duration(i) * time.Minute)
		d := Evaluate(EvalInput{
			ZScore:         z,
			ZAvailable:     true,
			ThresholdUpper: ptr(2.0),
			ThresholdLower: ptr(-2.0),
			LastTriggered:  lastTriggered,
			Cooldown:       15 * time.Minute,
			Now:            now,
		})
		if d.Outcome != want[i] {
			t.Fatalf("step %d (z=%.1f): outcome = %s, want %s", i, z, d.Outcome, want[i])
		}
		if d.Outcome == OutcomeFire {
			at := now
			lastTriggered = &at
		}
	}
}
