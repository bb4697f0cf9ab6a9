package screening

import (
	"fmt"
	"math"
)

// SchemaVersion is the version of the persisted session layout.
const SchemaVersion = 1

// Session is the per-participant state machine. It is in progress while
// CurrentIndex < len(Items) and completed afterwards; a completed session is
// read-only.
type Session struct {
	SchemaVersion int         `json:"schema_version"`
	Protocol      Protocol    `json:"protocol"`
	Items         []TestItem  `json:"items" validate:"required,dive"`
	CurrentIndex  int         `json:"current_index" validate:"min=0"`
	Active        *ActiveItem `json:"active,omitempty"`
	Thresholds    Thresholds  `json:"thresholds" validate:"required"`
}

// Start creates a session positioned on the first item at the protocol's
// start level.
func Start(p Protocol) (*Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	items := p.Items()
	return &Session{
		SchemaVersion: SchemaVersion,
		Protocol:      p,
		Items:         items,
		Active:        newActiveItem(items[0], p),
		Thresholds:    NewThresholds(),
	}, nil
}

// Completed reports whether every item has been resolved.
func (s *Session) Completed() bool {
	return s.CurrentIndex >= len(s.Items)
}

// Peek returns the current presentation, or the result once the session is
// completed. Exactly one of the two is non-nil. Peek never changes the
// session.
func (s *Session) Peek() (*Presentation, *Result) {
	if s.Completed() {
		r := s.summarize()
		return nil, &r
	}
	total := len(s.Items)
	return &Presentation{
		Frequency:  s.Active.Item.Frequency,
		Ear:        s.Active.Item.Ear,
		Level:      s.Active.CurrentLevel,
		Progress:   float64(s.CurrentIndex) / float64(total) * 100,
		ItemNumber: s.CurrentIndex + 1,
		TotalItems: total,
	}, nil
}

// SubmitResponse feeds one answer to the active item's staircase. When the
// item finishes its threshold is recorded and the session moves on, either
// to a fresh item at the start level or to completion.
func (s *Session) SubmitResponse(heard bool) (Ack, error) {
	if s.Completed() {
		return Ack{}, fmt.Errorf("%w: test already completed", ErrInvalidState)
	}
	if s.Active == nil {
		return Ack{}, fmt.Errorf("%w: no active item", ErrInvalidState)
	}

	item := s.Active.Item
	out := s.Protocol.Staircase().Advance(s.Active, heard)
	ack := Ack{Item: item}
	if !out.Done {
		return ack, nil
	}

	threshold := EstimateThreshold(s.Active.Responses, s.Protocol.UntestedThreshold)
	s.Thresholds.Set(item.Ear, item.Frequency, threshold)
	s.CurrentIndex++
	ack.ItemCompleted = true
	ack.Rule = out.Rule
	ack.Threshold = threshold

	if s.CurrentIndex < len(s.Items) {
		s.Active = newActiveItem(s.Items[s.CurrentIndex], s.Protocol)
		return ack, nil
	}
	s.finish()
	ack.TestCompleted = true
	return ack, nil
}

// ForceComplete ends an in-progress session. Every pair without a recorded
// threshold, including the active one, gets the untested default.
func (s *Session) ForceComplete() {
	if s.Completed() {
		return
	}
	s.finish()
}

// Result returns the summary of a completed session.
func (s *Session) Result() (*Result, error) {
	if !s.Completed() {
		return nil, fmt.Errorf("%w: test still in progress (item %d of %d)", ErrInvalidState, s.CurrentIndex+1, len(s.Items))
	}
	r := s.summarize()
	return &r, nil
}

func (s *Session) finish() {
	s.CurrentIndex = len(s.Items)
	s.Active = nil
	s.Thresholds = Backfill(s.Thresholds, s.Protocol.Frequencies, s.Protocol.UntestedThreshold)
}

func (s *Session) summarize() Result {
	return Summarize(s.Thresholds, s.Protocol.Frequencies, s.Protocol.UntestedThreshold)
}

// Validate checks the state-machine invariants of a decoded session.
func (s *Session) Validate() error {
	if s.SchemaVersion != SchemaVersion {
		return malformed("unsupported schema version %d", s.SchemaVersion)
	}
	if err := s.Protocol.Validate(); err != nil {
		return malformed("%v", err)
	}

	want := s.Protocol.Items()
	if len(s.Items) != len(want) {
		return malformed("expected %d items, got %d", len(want), len(s.Items))
	}
	for i := range want {
		if s.Items[i] != want[i] {
			return malformed("item %d is %v, expected %v", i, s.Items[i], want[i])
		}
	}

	if s.CurrentIndex < 0 || s.CurrentIndex > len(s.Items) {
		return malformed("current_index %d outside [0, %d]", s.CurrentIndex, len(s.Items))
	}
	if s.Completed() != (s.Active == nil) {
		return malformed("active item must be present exactly while the test is in progress")
	}
	if s.Active != nil {
		if err := s.validateActive(); err != nil {
			return err
		}
	}
	return s.validateThresholds()
}

func (s *Session) validateActive() error {
	a := s.Active
	p := s.Protocol
	if a.Item != s.Items[s.CurrentIndex] {
		return malformed("active item %v does not match item %d", a.Item, s.CurrentIndex)
	}
	if !inRange(a.CurrentLevel, p.MinLevel, p.MaxLevel) {
		return malformed("current_level %v outside [%v, %v]", a.CurrentLevel, p.MinLevel, p.MaxLevel)
	}
	if a.MaxTrials != p.MaxTrials {
		return malformed("max_trials %d does not match protocol %d", a.MaxTrials, p.MaxTrials)
	}
	if a.TrialCount != len(a.Responses) {
		return malformed("trial_count %d does not match %d responses", a.TrialCount, len(a.Responses))
	}
	if a.TrialCount >= a.MaxTrials {
		return malformed("active item already used %d of %d trials", a.TrialCount, a.MaxTrials)
	}
	for i, tr := range a.Responses {
		if !inRange(tr.Level, p.MinLevel, p.MaxLevel) {
			return malformed("response %d level %v outside [%v, %v]", i, tr.Level, p.MinLevel, p.MaxLevel)
		}
	}
	return nil
}

func (s *Session) validateThresholds() error {
	known := make(map[int]bool, len(s.Protocol.Frequencies))
	for _, f := range s.Protocol.Frequencies {
		known[f] = true
	}
	for ear, byFreq := range s.Thresholds {
		if ear != EarLeft && ear != EarRight {
			return malformed("unknown ear %q in thresholds", ear)
		}
		for f, v := range byFreq {
			if !known[f] {
				return malformed("threshold for untested frequency %d", f)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return malformed("threshold for %s %d Hz is not a number", ear, f)
			}
		}
	}
	if !s.Completed() {
		return nil
	}
	for _, ear := range Ears {
		for _, f := range s.Protocol.Frequencies {
			if _, ok := s.Thresholds.Get(ear, f); !ok {
				return malformed("completed test has no %s threshold at %d Hz", ear, f)
			}
		}
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
