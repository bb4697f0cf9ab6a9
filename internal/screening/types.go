// Package screening implements the adaptive staircase engine behind the
// pure-tone hearing screen: per-item level control, threshold estimation,
// the session state machine and the final summary.
package screening

// Ear identifies the channel a tone is presented to.
type Ear string

const (
	EarLeft  Ear = "left"
	EarRight Ear = "right"
)

// Ears lists both ears in presentation order.
var Ears = []Ear{EarLeft, EarRight}

// TestItem is one (frequency, ear) pair of the fixed test sequence.
type TestItem struct {
	Frequency int `json:"frequency" validate:"min=20,max=20000"`
	Ear       Ear `json:"ear" validate:"oneof=left right"`
}

// Trial is a single presentation and the subject's answer.
type Trial struct {
	Level float64 `json:"level"`
	Heard bool    `json:"heard"`
}

// ActiveItem is the staircase state of the item currently being tested.
type ActiveItem struct {
	Item         TestItem `json:"item"`
	CurrentLevel float64  `json:"current_level"`
	Responses    []Trial  `json:"responses" validate:"dive"`
	TrialCount   int      `json:"trial_count" validate:"min=0"`
	MaxTrials    int      `json:"max_trials" validate:"min=1"`
}

func newActiveItem(item TestItem, p Protocol) *ActiveItem {
	return &ActiveItem{
		Item:         item,
		CurrentLevel: p.StartLevel,
		Responses:    []Trial{},
		MaxTrials:    p.MaxTrials,
	}
}

// Thresholds maps ear to frequency to the estimated threshold level.
type Thresholds map[Ear]map[int]float64

// NewThresholds returns an empty map with an entry for each ear.
func NewThresholds() Thresholds {
	return Thresholds{EarLeft: {}, EarRight: {}}
}

// Set records the threshold for one ear and frequency.
func (t Thresholds) Set(ear Ear, frequency int, value float64) {
	if t[ear] == nil {
		t[ear] = map[int]float64{}
	}
	t[ear][frequency] = value
}

// Get returns the threshold for one ear and frequency, if present.
func (t Thresholds) Get(ear Ear, frequency int) (float64, bool) {
	v, ok := t[ear][frequency]
	return v, ok
}

// Clone returns a deep copy.
func (t Thresholds) Clone() Thresholds {
	out := NewThresholds()
	for ear, byFreq := range t {
		for f, v := range byFreq {
			out.Set(ear, f, v)
		}
	}
	return out
}

// Presentation describes the next tone the subject should hear.
type Presentation struct {
	Frequency  int     `json:"freq"`
	Ear        Ear     `json:"ear"`
	Level      float64 `json:"level"`
	Progress   float64 `json:"progress"`
	ItemNumber int     `json:"test_number"`
	TotalItems int     `json:"total_tests"`
}

// Result is the completed-session summary.
type Result struct {
	Completed        bool            `json:"completed"`
	Thresholds       Thresholds      `json:"thresholds"`
	LeftAvg          float64         `json:"left_avg"`
	RightAvg         float64         `json:"right_avg"`
	Dissimilarity    float64         `json:"dissimilarity"`
	MaxDiff          float64         `json:"max_diff"`
	MaxDiffFrequency int             `json:"max_diff_frequency"`
	Differences      map[int]float64 `json:"differences"`
}

// Ack reports what a submitted response did to the session.
type Ack struct {
	ItemCompleted bool           `json:"item_completed"`
	Rule          CompletionRule `json:"rule,omitempty"`
	Item          TestItem       `json:"item"`
	Threshold     float64        `json:"threshold"`
	TestCompleted bool           `json:"test_completed"`
}
