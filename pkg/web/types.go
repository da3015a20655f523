// Package web provides HTTP request and response types for the quality
// control API.
package web

import "github.com/qcline/qcline/pkg/models"

// RegisterOperatorRequest represents the request body for registering an
// operator before they can start workflows.
type RegisterOperatorRequest struct {
	ID       int64  `json:"id"        validate:"required"`
	FullName string `json:"full_name" validate:"required,min=2"`
	Position string `json:"position"`
}

// StartRequest represents the request body for starting a workflow session,
// optionally correlated to already-known unit codes.
type StartRequest struct {
	OperatorID    int64  `json:"operator_id"    validate:"required"`
	ContainerCode string `json:"container_code,omitempty"`
	ItemCode      string `json:"item_code,omitempty"`
	SampleNumber  int    `json:"sample_number,omitempty"`
}

// OperatorRequest represents request bodies that only carry the acting
// operator.
type OperatorRequest struct {
	OperatorID int64 `json:"operator_id" validate:"required"`
}

// ContinueRequest represents the request body for resuming a unit from a
// continuation token.
type ContinueRequest struct {
	OperatorID int64  `json:"operator_id" validate:"required"`
	Token      string `json:"token"       validate:"required"`
}

// ValueRequest represents the request body for submitting a step value.
type ValueRequest struct {
	OperatorID int64  `json:"operator_id" validate:"required"`
	Value      string `json:"value"       validate:"required"`
}

// CommentRequest represents the request body for submitting a defect comment.
type CommentRequest struct {
	OperatorID int64  `json:"operator_id" validate:"required"`
	Comment    string `json:"comment"     validate:"required"`
}

// StepResponse represents one step of a process chain.
type StepResponse struct {
	Key             string          `json:"key"`
	Title           string          `json:"title"`
	Prompt          string          `json:"prompt"`
	Kind            string          `json:"kind"`
	Choices         []models.Choice `json:"choices,omitempty"`
	PhotoAlways     bool            `json:"photo_always"`
	PhotoOnDefect   bool            `json:"photo_on_defect"`
	CommentOnDefect bool            `json:"comment_on_defect"`
}

// TransformStepResponse transforms a step descriptor into its API shape.
func TransformStepResponse(step *models.StepDescriptor) StepResponse {
	return StepResponse{
		Key:             step.Key,
		Title:           step.Title,
		Prompt:          step.Prompt,
		Kind:            string(step.Kind),
		Choices:         step.Choices,
		PhotoAlways:     step.PhotoAlways,
		PhotoOnDefect:   step.PhotoOnDefect,
		CommentOnDefect: step.CommentOnDefect,
	}
}
