package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
	"github.com/qcline/qcline/pkg/registry"
)

// saveDraft upserts the durable projection of the session. It is called
// after every state-mutating operation; the upsert overwrites any prior
// draft for the (operator, process) key.
func (e *Engine) saveDraft(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	draft := &models.Draft{
		OperatorID:    session.OperatorID,
		Process:       session.Process,
		SchemaVersion: session.SchemaVersion,
		Payload:       payload,
		UpdatedAt:     e.clock.Now(),
	}

	err = e.store.Drafts().Save(ctx, draft)
	if err != nil {
		return &PersistenceError{Op: "save draft", Err: err}
	}

	return nil
}

// loadDraft reads the stored draft for the key. A draft whose schema version
// differs from the current step-chain schema, or whose payload no longer
// deserializes, is deleted and reported as absent — it must never be
// partially applied to a live session.
func (e *Engine) loadDraft(ctx context.Context, operatorID int64, process string) (*models.Session, bool, error) {
	draft, err := e.store.Drafts().Load(ctx, operatorID, process)
	if err != nil {
		if persistence.IsDraftNotFound(err) {
			return nil, false, nil
		}

		return nil, false, &PersistenceError{Op: "load draft", Err: err}
	}

	if draft.SchemaVersion != registry.SchemaVersion {
		e.logger.InfoContext(ctx, "Discarding draft with stale schema version",
			"operator_id", operatorID,
			"process", process,
			"draft_version", draft.SchemaVersion,
			"current_version", registry.SchemaVersion,
		)

		e.discardDraft(ctx, operatorID, process)

		return nil, false, nil
	}

	var session models.Session

	err = json.Unmarshal(draft.Payload, &session)
	if err != nil {
		e.logger.WarnContext(ctx, "Discarding undecodable draft",
			"operator_id", operatorID,
			"process", process,
			"error", err,
		)

		e.discardDraft(ctx, operatorID, process)

		return nil, false, nil
	}

	return &session, true, nil
}

func (e *Engine) clearDraft(ctx context.Context, operatorID int64, process string) error {
	err := e.store.Drafts().Delete(ctx, operatorID, process)
	if err != nil {
		return &PersistenceError{Op: "clear draft", Err: err}
	}

	return nil
}

// discardDraft deletes a draft during load recovery, where failure is only
// worth a log line.
func (e *Engine) discardDraft(ctx context.Context, operatorID int64, process string) {
	err := e.store.Drafts().Delete(ctx, operatorID, process)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to delete stale draft",
			"operator_id", operatorID,
			"process", process,
			"error", err,
		)
	}
}
