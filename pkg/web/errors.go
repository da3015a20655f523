package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/qcline/qcline/pkg/engine"
	"github.com/qcline/qcline/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func forbidden(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType("operator_not_registered").
		WithDetail(detail)

	return c.Status(fiber.StatusForbidden).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError provides typed error handling for workflow engine and
// persistence errors.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case engine.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, engine.ErrUnknownProcess):
		return notFound(c, "process not found")

	case errors.Is(err, engine.ErrUnknownStep):
		return notFound(c, "step not found")

	case errors.Is(err, engine.ErrNoActiveSession):
		return notFound(c, "no active workflow session")

	case errors.Is(err, engine.ErrOperatorNotRegistered):
		return forbidden(c, "operator is not registered")

	case engine.IsMissingAttachment(err),
		engine.IsMissingComment(err),
		errors.Is(err, engine.ErrRequirementPending),
		errors.Is(err, engine.ErrNoStepSelected),
		errors.Is(err, engine.ErrNoPhotoPending),
		errors.Is(err, engine.ErrNoCommentPending),
		errors.Is(err, engine.ErrNoValues):
		return conflict(c, "session_state_conflict", err.Error())

	case persistence.IsUnitOwned(err):
		return conflict(c, "unit_owned", err.Error())

	case persistence.IsTokenNotFound(err):
		return notFound(c, "continuation token not found or already used")

	case persistence.IsRecordNotFound(err):
		return notFound(c, "no previous record for this process")

	case persistence.IsUnitSessionNotFound(err):
		return notFound(c, "no active unit session")

	default:
		// Log unexpected errors but don't expose details
		return internalError(c, err)
	}
}
