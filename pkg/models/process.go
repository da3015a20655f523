// Package models defines the core domain models for quality-control data collection.
package models

// ValueKind discriminates how a step's raw input is coerced and validated.
type ValueKind string

const (
	ValueKindNumeric ValueKind = "numeric"
	ValueKindChoice  ValueKind = "choice"
	ValueKindText    ValueKind = "text"
)

// Choice is one selectable option of a choice step. Label is what the
// transport renders, Value is the canonical value stored in the record.
type Choice struct {
	Label string `json:"label" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// Validation holds the optional bounds applied to a step's coerced value.
// Min/Max apply to numeric steps, MaxLength to text steps.
type Validation struct {
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

// StepDescriptor is one parameter within a process chain.
//
// At most one of PhotoAlways/PhotoOnDefect may be set. CommentOnDefect is
// independent and only meaningful for choice steps.
type StepDescriptor struct {
	Key             string     `json:"key"              validate:"required,lowercase"`
	Title           string     `json:"title"            validate:"required"`
	Prompt          string     `json:"prompt"           validate:"required"`
	Kind            ValueKind  `json:"kind"             validate:"required,oneof=numeric choice text"`
	Validation      Validation `json:"validation"`
	Choices         []Choice   `json:"choices,omitempty" validate:"required_if=Kind choice,dive"`
	PhotoAlways     bool       `json:"photo_always,omitempty"`
	PhotoOnDefect   bool       `json:"photo_on_defect,omitempty"`
	CommentOnDefect bool       `json:"comment_on_defect,omitempty"`
	CommentPrompt   string     `json:"comment_prompt,omitempty" validate:"required_if=CommentOnDefect true"`
}

// ChoiceValue returns the canonical value matching raw, which may be either a
// canonical value or a rendered label.
func (s *StepDescriptor) ChoiceValue(raw string) (string, bool) {
	for _, c := range s.Choices {
		if c.Value == raw || c.Label == raw {
			return c.Value, true
		}
	}

	return "", false
}

// ProcessDefinition is an immutable, compiled-in ordered step chain for one
// named process.
type ProcessDefinition struct {
	Name  string           `json:"name"  validate:"required,lowercase"`
	Title string           `json:"title" validate:"required"`
	Steps []StepDescriptor `json:"steps" validate:"required,min=1,dive"`
}

// StepByKey returns the step with the given key and its chain index.
func (p *ProcessDefinition) StepByKey(key string) (*StepDescriptor, int, bool) {
	for i := range p.Steps {
		if p.Steps[i].Key == key {
			return &p.Steps[i], i, true
		}
	}

	return nil, 0, false
}

// StepKeys returns the step keys in chain order.
func (p *ProcessDefinition) StepKeys() []string {
	keys := make([]string, 0, len(p.Steps))
	for i := range p.Steps {
		keys = append(keys, p.Steps[i].Key)
	}

	return keys
}
