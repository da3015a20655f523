package web

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/qcline/qcline/pkg/decoder"
	"github.com/qcline/qcline/pkg/engine"
	"github.com/qcline/qcline/pkg/imagestore"
	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
	"github.com/qcline/qcline/pkg/registry"
)

// APIHandlers exposes the workflow engine over HTTP.
type APIHandlers struct {
	engine      *engine.Engine
	decoder     *decoder.Decoder
	images      *imagestore.Store
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
}

func NewAPIHandlers(
	eng *engine.Engine,
	dec *decoder.Decoder,
	images *imagestore.Store,
	persistence persistence.Persistence,
	registry *registry.Registry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:      eng,
		decoder:     dec,
		images:      images,
		persistence: persistence,
		registry:    registry,
		validator:   validator,
	}
}

// RegisterOperator upserts the operator directory entry.
func (h *APIHandlers) RegisterOperator(c fiber.Ctx) error {
	var req RegisterOperatorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	operator := &models.Operator{
		ID:        req.ID,
		FullName:  req.FullName,
		Position:  req.Position,
		CreatedAt: time.Now().UTC(),
	}

	err := h.persistence.Operators().Save(c.Context(), operator)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(operator)
}

// GetProcesses lists the registered process chains.
func (h *APIHandlers) GetProcesses(c fiber.Ctx) error {
	names := h.registry.Names()
	processes := make([]fiber.Map, 0, len(names))

	for _, name := range names {
		def, _ := h.registry.Process(name)
		processes = append(processes, fiber.Map{"name": def.Name, "title": def.Title})
	}

	return c.JSON(fiber.Map{"processes": processes})
}

// GetSteps lists the step chain for a process.
func (h *APIHandlers) GetSteps(c fiber.Ctx) error {
	def, ok := h.registry.Process(c.Params("process"))
	if !ok {
		return notFound(c, "process not found")
	}

	steps := make([]StepResponse, 0, len(def.Steps))
	for i := range def.Steps {
		steps = append(steps, TransformStepResponse(&def.Steps[i]))
	}

	return c.JSON(fiber.Map{"process": def.Name, "title": def.Title, "steps": steps})
}

// StartWorkflow starts a fresh session, optionally correlated to known codes.
func (h *APIHandlers) StartWorkflow(c fiber.Ctx) error {
	var req StartRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	correlation := models.Correlation{
		ContainerCode: req.ContainerCode,
		ItemCode:      req.ItemCode,
		SampleNumber:  req.SampleNumber,
	}

	instruction, err := h.engine.Start(c.Context(), req.OperatorID, c.Params("process"), correlation)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(renderInstruction(instruction))
}

// CaptureWorkflow decodes the uploaded image, claims the captured unit and
// starts a session against it.
func (h *APIHandlers) CaptureWorkflow(c fiber.Ctx) error {
	operatorID, err := operatorIDForm(c)
	if err != nil {
		return badRequest(c, "operator_id is required")
	}

	data, err := formImage(c)
	if err != nil {
		return badRequest(c, "image file is required")
	}

	codes, err := h.decoder.Decode(c.Context(), data)
	if err != nil {
		return badRequest(c, "Could not decode image: "+err.Error())
	}

	pair, ok := decoder.Pair(codes)
	if !ok {
		return badRequest(c, "No codes detected in the image")
	}

	instruction, err := h.engine.StartCapture(c.Context(), operatorID, c.Params("process"), pair)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(renderInstruction(instruction))
}

// ResumeWorkflow restores a session from its draft.
func (h *APIHandlers) ResumeWorkflow(c fiber.Ctx) error {
	var req OperatorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instruction, found, err := h.engine.Resume(c.Context(), req.OperatorID, c.Params("process"))
	if err != nil {
		return handleEngineError(c, err)
	}

	if !found {
		return notFound(c, "no resumable draft for this process")
	}

	return c.JSON(renderInstruction(instruction))
}

// GetContinuationOffer issues a single-use token for continuing the
// operator's last-recorded unit without re-scanning.
func (h *APIHandlers) GetContinuationOffer(c fiber.Ctx) error {
	operatorID, err := strconv.ParseInt(c.Query("operator_id"), 10, 64)
	if err != nil {
		return badRequest(c, "operator_id query parameter is required")
	}

	token, itemCode, err := h.engine.ContinuationOffer(c.Context(), operatorID, c.Params("process"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"token": token, "item_code": itemCode})
}

// ContinueWorkflow redeems a continuation token and starts a session against
// the unit it references.
func (h *APIHandlers) ContinueWorkflow(c fiber.Ctx) error {
	var req ContinueRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instruction, err := h.engine.ResumeUnit(c.Context(), req.OperatorID, c.Params("process"), req.Token)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(renderInstruction(instruction))
}

// SelectStep opens one step of the chain for answering.
func (h *APIHandlers) SelectStep(c fiber.Ctx) error {
	var req OperatorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instruction, err := h.engine.SelectStep(c.Context(), req.OperatorID, c.Params("process"), c.Params("step"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(renderInstruction(instruction))
}

// SubmitValue submits the raw value for the open step.
func (h *APIHandlers) SubmitValue(c fiber.Ctx) error {
	var req ValueRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instruction, err := h.engine.SubmitValue(c.Context(), req.OperatorID, c.Params("process"), req.Value)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(renderInstruction(instruction))
}

// SubmitComment satisfies an open defect comment requirement.
func (h *APIHandlers) SubmitComment(c fiber.Ctx) error {
	var req CommentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instruction, err := h.engine.SubmitComment(c.Context(), req.OperatorID, c.Params("process"), req.Comment)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(renderInstruction(instruction))
}

// SubmitPhoto stores the uploaded photo and satisfies the open photo
// requirement. The requirement is checked before touching the image store so
// a rejected upload leaves no file behind.
func (h *APIHandlers) SubmitPhoto(c fiber.Ctx) error {
	operatorID, err := operatorIDForm(c)
	if err != nil {
		return badRequest(c, "operator_id is required")
	}

	data, err := formImage(c)
	if err != nil {
		return badRequest(c, "image file is required")
	}

	process := c.Params("process")

	session, ok := h.engine.Session(operatorID, process)
	if !ok {
		return handleEngineError(c, engine.ErrNoActiveSession)
	}

	if session.PendingPhotoFor == "" {
		return handleEngineError(c, engine.ErrNoPhotoPending)
	}

	ref, err := h.images.Save(c.Context(), process, session.PendingPhotoFor, data)
	if err != nil {
		return internalError(c, err)
	}

	instruction, err := h.engine.SubmitImage(c.Context(), operatorID, process, ref)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(renderInstruction(instruction))
}

// FinishWorkflow completes the session and returns the stored record.
func (h *APIHandlers) FinishWorkflow(c fiber.Ctx) error {
	var req OperatorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	record, err := h.engine.Finish(c.Context(), req.OperatorID, c.Params("process"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

// CancelWorkflow abandons the session and deletes its draft.
func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	var req OperatorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.engine.Cancel(c.Context(), req.OperatorID, c.Params("process"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// CompleteUnit closes the operator's active unit session for the process.
func (h *APIHandlers) CompleteUnit(c fiber.Ctx) error {
	var req OperatorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.engine.CompleteUnit(c.Context(), req.OperatorID, c.Params("process"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// HealthCheck reports storage health.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

func operatorIDForm(c fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.FormValue("operator_id"), 10, 64)
}

func formImage(c fiber.Ctx) ([]byte, error) {
	header, err := c.FormFile("image")
	if err != nil {
		return nil, err
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}

	defer func() { _ = file.Close() }()

	return io.ReadAll(file)
}

// renderInstruction maps an engine instruction to its JSON shape, tagged
// with a kind so clients can switch on it.
func renderInstruction(instruction engine.Instruction) fiber.Map {
	switch inst := instruction.(type) {
	case engine.ShowMenu:
		return fiber.Map{"kind": "menu", "menu": inst}
	case engine.ShowPrompt:
		return fiber.Map{"kind": "prompt", "prompt": inst}
	case engine.ShowError:
		return fiber.Map{"kind": "error", "error": inst}
	default:
		return fiber.Map{"kind": "none"}
	}
}
