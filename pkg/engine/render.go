package engine

import "github.com/qcline/qcline/pkg/models"

// Instruction tells the transport layer what to render next. The engine is
// agnostic to how instructions are rendered (buttons, forms, plain text).
type Instruction interface {
	isInstruction()
}

// MenuItem is one selectable step in the parameter menu.
type MenuItem struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// ShowMenu renders the parameter menu for a process, marking completed steps.
type ShowMenu struct {
	Process string     `json:"process"`
	Title   string     `json:"title"`
	Items   []MenuItem `json:"items"`
}

// ShowPrompt renders a single step's question, with choices for choice steps.
type ShowPrompt struct {
	Process string          `json:"process"`
	Step    string          `json:"step"`
	Text    string          `json:"text"`
	Choices []models.Choice `json:"choices,omitempty"`
}

// ShowError renders a recoverable, user-facing error message.
type ShowError struct {
	Message string `json:"message"`
}

func (ShowMenu) isInstruction()   {}
func (ShowPrompt) isInstruction() {}
func (ShowError) isInstruction()  {}
