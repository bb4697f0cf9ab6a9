package screening

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultThreshold is the value recorded for an ear/frequency pair that
// never produced a threshold (the loudest level tested).
const DefaultThreshold = 40.0

// Protocol holds the staircase parameters a session is run with. A copy is
// stored with every session so a config change never alters a running test.
type Protocol struct {
	Frequencies       []int   `yaml:"frequencies" json:"frequencies" validate:"required,min=1,unique,dive,min=20,max=20000"`
	StartLevel        float64 `yaml:"start_level" json:"start_level"`
	MinLevel          float64 `yaml:"min_level" json:"min_level"`
	MaxLevel          float64 `yaml:"max_level" json:"max_level"`
	StepDown          float64 `yaml:"step_down" json:"step_down" validate:"gt=0"`
	StepUp            float64 `yaml:"step_up" json:"step_up" validate:"gt=0"`
	MaxTrials         int     `yaml:"max_trials" json:"max_trials" validate:"min=1"`
	UntestedThreshold float64 `yaml:"untested_threshold" json:"untested_threshold"`
}

// DefaultProtocol returns the standard screening protocol: six frequencies
// from 5 kHz down to 250 Hz, starting at 40 and bounded to [-10, 40].
func DefaultProtocol() Protocol {
	return Protocol{
		Frequencies:       []int{5000, 4000, 2000, 1000, 500, 250},
		StartLevel:        40,
		MinLevel:          -10,
		MaxLevel:          40,
		StepDown:          10,
		StepUp:            5,
		MaxTrials:         12,
		UntestedThreshold: DefaultThreshold,
	}
}

var validate = validator.New()

// Validate checks the protocol fields and the relations between the levels.
func (p Protocol) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid protocol: %w", err)
	}
	if p.MinLevel >= p.MaxLevel {
		return fmt.Errorf("invalid protocol: min_level %v must be below max_level %v", p.MinLevel, p.MaxLevel)
	}
	if p.StartLevel < p.MinLevel || p.StartLevel > p.MaxLevel {
		return fmt.Errorf("invalid protocol: start_level %v outside [%v, %v]", p.StartLevel, p.MinLevel, p.MaxLevel)
	}
	return nil
}

// Items returns the presentation order: every frequency crossed with both
// ears, frequency-major.
func (p Protocol) Items() []TestItem {
	items := make([]TestItem, 0, len(p.Frequencies)*len(Ears))
	for _, f := range p.Frequencies {
		for _, ear := range Ears {
			items = append(items, TestItem{Frequency: f, Ear: ear})
		}
	}
	return items
}

// Staircase returns the level controller configured by this protocol.
func (p Protocol) Staircase() Staircase {
	return Staircase{
		StepDown: p.StepDown,
		StepUp:   p.StepUp,
		MinLevel: p.MinLevel,
		MaxLevel: p.MaxLevel,
	}
}

// LoadProtocol reads a YAML protocol file. Fields left out of the file keep
// their DefaultProtocol values.
func LoadProtocol(path string) (Protocol, error) {
	p := DefaultProtocol()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read protocol file: %w", err)
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal protocol YAML: %w", err)
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
