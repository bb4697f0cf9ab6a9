package screening

import "math"

// CompletionRule names why an item finished.
type CompletionRule string

const (
	RuleNone CompletionRule = ""
	// RuleFloor fires when the tone was heard at the quietest level and the
	// level cannot go lower.
	RuleFloor CompletionRule = "floor_reached"
	// RuleTrialBudget fires when the item used up its trials.
	RuleTrialBudget CompletionRule = "trial_budget"
)

// Staircase moves the presentation level: down by StepDown after a heard
// tone, up by StepUp after a missed one, clamped to [MinLevel, MaxLevel].
type Staircase struct {
	StepDown float64
	StepUp   float64
	MinLevel float64
	MaxLevel float64
}

// Outcome is the result of one staircase step.
type Outcome struct {
	Done      bool
	Rule      CompletionRule
	PrevLevel float64
	NextLevel float64
}

// NextLevel applies the level rule without touching any state.
func (s Staircase) NextLevel(level float64, heard bool) float64 {
	if heard {
		return math.Max(s.MinLevel, level-s.StepDown)
	}
	return math.Min(s.MaxLevel, level+s.StepUp)
}

// Advance records the answer at the current level, moves the level and
// reports whether the item is finished. The floor rule takes precedence over
// the trial budget when both apply.
func (s Staircase) Advance(a *ActiveItem, heard bool) Outcome {
	prev := a.CurrentLevel
	a.Responses = append(a.Responses, Trial{Level: prev, Heard: heard})
	a.TrialCount++

	next := s.NextLevel(prev, heard)
	a.CurrentLevel = next

	out := Outcome{PrevLevel: prev, NextLevel: next}
	switch {
	case heard && next == prev:
		out.Done, out.Rule = true, RuleFloor
	case a.TrialCount >= a.MaxTrials:
		out.Done, out.Rule = true, RuleTrialBudget
	}
	return out
}
