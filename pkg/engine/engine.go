// Package engine implements the step-chain workflow engine: it walks an
// operator through a process's parameterized steps, enforces conditional
// photo/comment requirements, keeps a durable draft after every mutation and
// persists the finished record exactly once.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/qcline/qcline/pkg/eventbus"
	"github.com/qcline/qcline/pkg/events"
	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
	"github.com/qcline/qcline/pkg/registry"
	"github.com/qcline/qcline/pkg/token"
)

// Engine executes workflow sessions. Actions for the same (operator,
// process) key are serialized; different keys proceed fully in parallel.
type Engine struct {
	registry *registry.Registry
	store    persistence.Persistence
	tokens   *token.Service
	bus      eventbus.EventBus
	clock    clock.Clock
	logger   *slog.Logger
	locks    *keyedLocks

	mu       sync.Mutex
	sessions map[string]*models.Session
}

type Option func(*Engine)

// WithClock replaces the wall clock for deterministic tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithEventBus enables record lifecycle event publishing.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

func New(reg *registry.Registry, store persistence.Persistence, tokens *token.Service, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		store:    store,
		tokens:   tokens,
		clock:    clock.New(),
		logger:   logger.With("module", "engine"),
		locks:    newKeyedLocks(),
		sessions: make(map[string]*models.Session),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func sessionKey(operatorID int64, process string) string {
	return fmt.Sprintf("%d/%s", operatorID, process)
}

// Start creates a fresh session at step zero and renders the parameter menu.
// It fails for unknown processes and unregistered operators.
func (e *Engine) Start(ctx context.Context, operatorID int64, process string, correlation models.Correlation) (Instruction, error) {
	lock := e.locks.get(sessionKey(operatorID, process))
	lock.Lock()
	defer lock.Unlock()

	return e.start(ctx, operatorID, process, correlation)
}

// StartCapture claims the scanned unit for the operator and starts a session
// correlated to it. A unit already in work by another operator is rejected
// with a persistence.UnitOwnedError.
func (e *Engine) StartCapture(ctx context.Context, operatorID int64, process string, pair models.CapturedPair) (Instruction, error) {
	lock := e.locks.get(sessionKey(operatorID, process))
	lock.Lock()
	defer lock.Unlock()

	if _, ok := e.registry.Process(process); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, process)
	}

	claim := &models.UnitSession{
		ID:            uuid.New().String(),
		OperatorID:    operatorID,
		Process:       process,
		ContainerCode: pair.ContainerCode,
		ItemCode:      pair.ItemCode,
		CreatedAt:     e.clock.Now(),
	}

	unit, err := e.store.UnitSessions().Claim(ctx, claim)
	if err != nil {
		return nil, err
	}

	correlation := models.Correlation{
		UnitSessionID: unit.ID,
		ContainerCode: unit.ContainerCode,
		ItemCode:      unit.ItemCode,
		SampleNumber:  1,
	}

	return e.start(ctx, operatorID, process, correlation)
}

// ContinuationOffer looks up the operator's most recent record for the
// process and, when it carries a scanned code pair, issues a continuation
// token for resuming that unit without re-scanning. The payload advances the
// per-unit sample counter so the next pass records the following sample. It
// returns the token and the item code for display.
func (e *Engine) ContinuationOffer(ctx context.Context, operatorID int64, process string) (string, string, error) {
	record, err := e.store.Records().LastForProcess(ctx, operatorID, process)
	if err != nil {
		return "", "", err
	}

	itemCode, _ := record.Values["item_code"].(string)
	if itemCode == "" {
		return "", "", persistence.ErrRecordNotFound
	}

	payload := map[string]string{
		"item_code":     itemCode,
		"sample_number": strconv.Itoa(recordSampleNumber(record) + 1),
	}

	if containerCode, _ := record.Values["container_code"].(string); containerCode != "" {
		payload["container_code"] = containerCode
	}

	if record.UnitSessionID != "" {
		payload["unit_session_id"] = record.UnitSessionID
	}

	value, err := e.tokens.Issue(ctx, operatorID, models.TokenActionContinueUnit, payload)
	if err != nil {
		return "", "", err
	}

	return value, itemCode, nil
}

// ResumeUnit redeems a continuation token and starts a session against the
// unit it references. The process and operator are checked before redeeming
// so a malformed request cannot burn the single-use token; once redeemed it
// is gone.
func (e *Engine) ResumeUnit(ctx context.Context, operatorID int64, process, tokenValue string) (Instruction, error) {
	if _, ok := e.registry.Process(process); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, process)
	}

	_, err := e.store.Operators().ByID(ctx, operatorID)
	if err != nil {
		if persistence.IsOperatorNotFound(err) {
			return nil, ErrOperatorNotRegistered
		}

		return nil, &PersistenceError{Op: "look up operator", Err: err}
	}

	record, err := e.tokens.Redeem(ctx, tokenValue, operatorID)
	if err != nil {
		return nil, err
	}

	lock := e.locks.get(sessionKey(operatorID, process))
	lock.Lock()
	defer lock.Unlock()

	correlation := models.Correlation{
		UnitSessionID: record.Payload["unit_session_id"],
		ContainerCode: record.Payload["container_code"],
		ItemCode:      record.Payload["item_code"],
		SampleNumber:  payloadSampleNumber(record.Payload),
	}

	return e.start(ctx, operatorID, process, correlation)
}

// recordSampleNumber reads the sample counter out of a stored record's value
// map. Records loaded through JSON carry numbers as float64, freshly
// inserted ones as int; records without a counter count as the first sample.
func recordSampleNumber(record *models.Record) int {
	switch n := record.Values["sample_number"].(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 1
	}
}

func payloadSampleNumber(payload map[string]string) int {
	n, err := strconv.Atoi(payload["sample_number"])
	if err != nil || n < 1 {
		return 1
	}

	return n
}

func (e *Engine) start(ctx context.Context, operatorID int64, process string, correlation models.Correlation) (Instruction, error) {
	def, ok := e.registry.Process(process)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, process)
	}

	_, err := e.store.Operators().ByID(ctx, operatorID)
	if err != nil {
		if persistence.IsOperatorNotFound(err) {
			return nil, ErrOperatorNotRegistered
		}

		return nil, &PersistenceError{Op: "look up operator", Err: err}
	}

	session := &models.Session{
		OperatorID:    operatorID,
		Process:       process,
		State:         models.StateSelecting,
		StepIndex:     0,
		Values:        make(map[string]any),
		Photos:        make(map[string][]string),
		Correlation:   correlation,
		SchemaVersion: registry.SchemaVersion,
		StartedAt:     e.clock.Now(),
	}

	err = e.saveDraft(ctx, session)
	if err != nil {
		return nil, err
	}

	e.putSession(session)

	e.logger.InfoContext(ctx, "Started workflow session",
		"operator_id", operatorID,
		"process", process,
		"unit_session_id", correlation.UnitSessionID,
	)

	return e.menu(def, session), nil
}

// Resume restores the (operator, process) session from its draft. The second
// return value is false when no resumable draft exists; stale or
// undecodable drafts are silently discarded, never surfaced as errors.
func (e *Engine) Resume(ctx context.Context, operatorID int64, process string) (Instruction, bool, error) {
	lock := e.locks.get(sessionKey(operatorID, process))
	lock.Lock()
	defer lock.Unlock()

	def, ok := e.registry.Process(process)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownProcess, process)
	}

	if session, ok := e.getSession(operatorID, process); ok {
		return e.instructionFor(def, session), true, nil
	}

	session, found, err := e.loadDraft(ctx, operatorID, process)
	if err != nil || !found {
		return nil, false, err
	}

	e.putSession(session)

	e.logger.InfoContext(ctx, "Resumed workflow session from draft",
		"operator_id", operatorID,
		"process", process,
		"state", session.State,
	)

	return e.instructionFor(def, session), true, nil
}

// SelectStep jumps to the step with the given key and renders its prompt.
// Navigation is blocked while a photo or comment requirement is open.
func (e *Engine) SelectStep(ctx context.Context, operatorID int64, process, stepKey string) (Instruction, error) {
	lock := e.locks.get(sessionKey(operatorID, process))
	lock.Lock()
	defer lock.Unlock()

	def, session, err := e.active(operatorID, process)
	if err != nil {
		return nil, err
	}

	if session.Pending() {
		return nil, ErrRequirementPending
	}

	step, index, ok := def.StepByKey(stepKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s in process %s", ErrUnknownStep, stepKey, process)
	}

	session.StepIndex = index
	session.State = models.StateAnswering

	err = e.saveDraft(ctx, session)
	if err != nil {
		return nil, err
	}

	return ShowPrompt{Process: process, Step: step.Key, Text: step.Prompt, Choices: step.Choices}, nil
}

// SubmitValue coerces and validates the raw input for the open step. On
// success the value is stored and the session advances to the parameter
// menu, or to the photo/comment requirement when the step's conditional flag
// fires. Validation failures leave the session unchanged.
func (e *Engine) SubmitValue(ctx context.Context, operatorID int64, process, raw string) (Instruction, error) {
	lock := e.locks.get(sessionKey(operatorID, process))
	lock.Lock()
	defer lock.Unlock()

	def, session, err := e.active(operatorID, process)
	if err != nil {
		return nil, err
	}

	if session.Pending() {
		return nil, ErrRequirementPending
	}

	if session.State != models.StateAnswering {
		return nil, ErrNoStepSelected
	}

	step := &def.Steps[session.StepIndex]

	value, err := coerce(step, raw)
	if err != nil {
		return nil, err
	}

	session.Values[step.Key] = value

	canonical, _ := value.(string)
	defect := step.Kind == models.ValueKindChoice && registry.IsDefect(step.Key, canonical)

	switch {
	case step.PhotoAlways || (step.PhotoOnDefect && defect):
		session.PendingPhotoFor = step.Key
		session.State = models.StateAwaitingPhoto
	case step.CommentOnDefect && defect:
		session.PendingCommentFor = step.Key
		session.State = models.StateAwaitingComment
	default:
		session.State = models.StateSelecting
	}

	err = e.saveDraft(ctx, session)
	if err != nil {
		return nil, err
	}

	return e.instructionFor(def, session), nil
}

// SubmitImage attaches a stored photo reference to the step whose photo
// requirement is open and clears the requirement.
func (e *Engine) SubmitImage(ctx context.Context, operatorID int64, process, imageRef string) (Instruction, error) {
	lock := e.locks.get(sessionKey(operatorID, process))
	lock.Lock()
	defer lock.Unlock()

	def, session, err := e.active(operatorID, process)
	if err != nil {
		return nil, err
	}

	if session.PendingPhotoFor == "" {
		return nil, ErrNoPhotoPending
	}

	stepKey := session.PendingPhotoFor
	session.Photos[stepKey] = append(session.Photos[stepKey], imageRef)
	session.PendingPhotoFor = ""
	session.State = models.StateSelecting

	err = e.saveDraft(ctx, session)
	if err != nil {
		return nil, err
	}

	return e.menu(def, session), nil
}

// SubmitComment stores the mandatory defect comment under the synthesized
// <step>_comment key and clears the requirement.
func (e *Engine) SubmitComment(ctx context.Context, operatorID int64, process, text string) (Instruction, error) {
	lock := e.locks.get(sessionKey(operatorID, process))
	lock.Lock()
	defer lock.Unlock()

	def, session, err := e.active(operatorID, process)
	if err != nil {
		return nil, err
	}

	if session.PendingCommentFor == "" {
		return nil, ErrNoCommentPending
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Step: session.PendingCommentFor, Message: "comment must not be empty"}
	}

	session.Values[commentKey(session.PendingCommentFor)] = text
	session.PendingCommentFor = ""
	session.State = models.StateSelecting

	err = e.saveDraft(ctx, session)
	if err != nil {
		return nil, err
	}

	return e.menu(def, session), nil
}

// Cancel abandons the session. A value whose photo or comment requirement
// was never satisfied is reverted so it cannot leak into a later record, and
// the draft is deleted before success is reported.
func (e *Engine) Cancel(ctx context.Context, operatorID int64, process string) error {
	lock := e.locks.get(sessionKey(operatorID, process))
	lock.Lock()
	defer lock.Unlock()

	session, ok := e.getSession(operatorID, process)
	if ok {
		if stepKey := session.PendingPhotoFor; stepKey != "" {
			delete(session.Values, stepKey)
			delete(session.Photos, stepKey)
		}

		if stepKey := session.PendingCommentFor; stepKey != "" {
			delete(session.Values, stepKey)
		}
	}

	e.dropSession(operatorID, process)

	err := e.clearDraft(ctx, operatorID, process)
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Cancelled workflow session", "operator_id", operatorID, "process", process)

	return nil
}

// Finish validates completion preconditions, inserts the finished record
// exactly once and clears the session and its draft. Storage failures
// preserve the session so the operator can retry without losing answers.
func (e *Engine) Finish(ctx context.Context, operatorID int64, process string) (*models.Record, error) {
	lock := e.locks.get(sessionKey(operatorID, process))
	lock.Lock()
	defer lock.Unlock()

	def, session, err := e.active(operatorID, process)
	if err != nil {
		return nil, err
	}

	if session.Pending() {
		return nil, ErrRequirementPending
	}

	if len(session.Values) == 0 {
		return nil, ErrNoValues
	}

	err = checkCompletion(def, session)
	if err != nil {
		return nil, err
	}

	record := &models.Record{
		ID:              uuid.New().String(),
		OperatorID:      operatorID,
		Process:         process,
		UnitSessionID:   session.Correlation.UnitSessionID,
		HeadlineNumeric: headlineNumeric(def, session),
		Values:          flatten(session),
		CreatedAt:       e.clock.Now(),
	}

	err = e.store.Records().Insert(ctx, record)
	if err != nil {
		return nil, &PersistenceError{Op: "insert record", Err: err}
	}

	err = e.clearDraft(ctx, operatorID, process)
	if err != nil {
		// The record is already durable; a leftover draft is discarded by
		// the schema guard or the next completion.
		e.logger.ErrorContext(ctx, "Failed to clear draft after completion",
			"operator_id", operatorID,
			"process", process,
			"error", err,
		)
	}

	e.dropSession(operatorID, process)

	e.publish(ctx, events.RecordCompleted{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.RecordCompletedEvent,
			Timestamp: e.clock.Now(),
		},
		RecordID:      record.ID,
		OperatorID:    operatorID,
		Process:       process,
		UnitSessionID: record.UnitSessionID,
	})

	e.logger.InfoContext(ctx, "Completed workflow",
		"operator_id", operatorID,
		"process", process,
		"record_id", record.ID,
	)

	return record, nil
}

// CompleteUnit closes the operator's active unit session for the process and
// abandons any in-flight workflow session against it.
func (e *Engine) CompleteUnit(ctx context.Context, operatorID int64, process string) error {
	unit, err := e.store.UnitSessions().ActiveForOperator(ctx, operatorID, process)
	if err != nil {
		return err
	}

	err = e.store.UnitSessions().Complete(ctx, unit.ID, e.clock.Now())
	if err != nil {
		return &PersistenceError{Op: "complete unit session", Err: err}
	}

	err = e.Cancel(ctx, operatorID, process)
	if err != nil {
		return err
	}

	e.publish(ctx, events.UnitCompleted{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.UnitCompletedEvent,
			Timestamp: e.clock.Now(),
		},
		UnitSessionID: unit.ID,
		OperatorID:    operatorID,
		Process:       process,
		ItemCode:      unit.ItemCode,
	})

	return nil
}

// Session exposes the live session for the key, if any.
func (e *Engine) Session(operatorID int64, process string) (*models.Session, bool) {
	return e.getSession(operatorID, process)
}

func (e *Engine) active(operatorID int64, process string) (*models.ProcessDefinition, *models.Session, error) {
	def, ok := e.registry.Process(process)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProcess, process)
	}

	session, ok := e.getSession(operatorID, process)
	if !ok {
		return nil, nil, ErrNoActiveSession
	}

	return def, session, nil
}

func (e *Engine) putSession(session *models.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessions[sessionKey(session.OperatorID, session.Process)] = session
}

func (e *Engine) getSession(operatorID int64, process string) (*models.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.sessions[sessionKey(operatorID, process)]

	return session, ok
}

func (e *Engine) dropSession(operatorID int64, process string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.sessions, sessionKey(operatorID, process))
}

func (e *Engine) publish(ctx context.Context, event any) {
	if e.bus == nil {
		return
	}

	err := e.bus.Publish(ctx, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "error", err)
	}
}

func (e *Engine) menu(def *models.ProcessDefinition, session *models.Session) ShowMenu {
	items := make([]MenuItem, 0, len(def.Steps))

	for i := range def.Steps {
		step := &def.Steps[i]
		_, completed := session.Values[step.Key]
		items = append(items, MenuItem{Key: step.Key, Title: step.Title, Completed: completed})
	}

	return ShowMenu{Process: def.Name, Title: def.Title, Items: items}
}

// instructionFor renders whatever the session is waiting on: the open
// photo/comment requirement, the current step's prompt, or the menu.
func (e *Engine) instructionFor(def *models.ProcessDefinition, session *models.Session) Instruction {
	switch session.State {
	case models.StateAwaitingPhoto:
		return ShowPrompt{
			Process: session.Process,
			Step:    session.PendingPhotoFor,
			Text:    "A photo is required for this step. Send a photo to continue.",
		}
	case models.StateAwaitingComment:
		step, _, ok := def.StepByKey(session.PendingCommentFor)
		text := "A comment is required for this step."
		if ok && step.CommentPrompt != "" {
			text = step.CommentPrompt
		}

		return ShowPrompt{Process: session.Process, Step: session.PendingCommentFor, Text: text}
	case models.StateAnswering:
		step := &def.Steps[session.StepIndex]

		return ShowPrompt{Process: session.Process, Step: step.Key, Text: step.Prompt, Choices: step.Choices}
	default:
		return e.menu(def, session)
	}
}

func commentKey(stepKey string) string {
	return stepKey + "_comment"
}

// coerce applies per-kind type coercion and validation bounds. Bounds are
// inclusive on both ends.
func coerce(step *models.StepDescriptor, raw string) (any, error) {
	switch step.Kind {
	case models.ValueKindNumeric:
		value, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."), 64)
		if err != nil {
			return nil, &ValidationError{Step: step.Key, Message: "enter a number"}
		}

		if min := step.Validation.Min; min != nil && value < *min {
			return nil, &ValidationError{Step: step.Key, Message: fmt.Sprintf("value must be at least %g", *min)}
		}

		if max := step.Validation.Max; max != nil && value > *max {
			return nil, &ValidationError{Step: step.Key, Message: fmt.Sprintf("value must be at most %g", *max)}
		}

		return value, nil

	case models.ValueKindChoice:
		canonical, ok := step.ChoiceValue(strings.TrimSpace(raw))
		if !ok {
			return nil, &ValidationError{Step: step.Key, Message: "choose one of the offered options"}
		}

		return canonical, nil

	default:
		text := strings.TrimSpace(raw)
		if text == "" {
			return nil, &ValidationError{Step: step.Key, Message: "enter a text value"}
		}

		if maxLen := step.Validation.MaxLength; maxLen > 0 && len([]rune(text)) > maxLen {
			return nil, &ValidationError{Step: step.Key, Message: fmt.Sprintf("text is too long (maximum %d characters)", maxLen)}
		}

		return text, nil
	}
}

// checkCompletion fails closed on any collected value whose conditional
// photo or comment requirement is unmet.
func checkCompletion(def *models.ProcessDefinition, session *models.Session) error {
	for i := range def.Steps {
		step := &def.Steps[i]

		value, collected := session.Values[step.Key]
		if !collected {
			continue
		}

		canonical, _ := value.(string)
		defect := step.Kind == models.ValueKindChoice && registry.IsDefect(step.Key, canonical)

		needPhoto := step.PhotoAlways || (step.PhotoOnDefect && defect)
		if needPhoto && len(session.Photos[step.Key]) == 0 {
			return &MissingAttachmentError{Step: step.Key}
		}

		if step.CommentOnDefect && defect {
			comment, _ := session.Values[commentKey(step.Key)].(string)
			if comment == "" {
				return &MissingCommentError{Step: step.Key}
			}
		}
	}

	return nil
}

// headlineNumeric picks the first numeric step's value in chain order; later
// numeric steps never overwrite it.
func headlineNumeric(def *models.ProcessDefinition, session *models.Session) *float64 {
	for i := range def.Steps {
		step := &def.Steps[i]
		if step.Kind != models.ValueKindNumeric {
			continue
		}

		if value, ok := session.Values[step.Key].(float64); ok {
			return &value
		}
	}

	return nil
}

// flatten builds the record's value map: collected values plus accumulated
// photo references and the correlation data under canonical keys.
func flatten(session *models.Session) map[string]any {
	values := make(map[string]any, len(session.Values)+4)
	for k, v := range session.Values {
		values[k] = v
	}

	if len(session.Photos) > 0 {
		values["photos"] = session.Photos
	}

	if code := session.Correlation.ContainerCode; code != "" {
		values["container_code"] = code
	}

	if code := session.Correlation.ItemCode; code != "" {
		values["item_code"] = code
	}

	if n := session.Correlation.SampleNumber; n > 0 {
		values["sample_number"] = n
	}

	return values
}
