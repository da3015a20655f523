package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
)

// OperatorRepository stores operators in a mutex-guarded map.
type OperatorRepository struct {
	mu        sync.RWMutex
	operators map[int64]*models.Operator
}

func NewOperatorRepository() *OperatorRepository {
	return &OperatorRepository{operators: make(map[int64]*models.Operator)}
}

func (r *OperatorRepository) Save(ctx context.Context, operator *models.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *operator
	r.operators[operator.ID] = &clone

	return nil
}

func (r *OperatorRepository) ByID(ctx context.Context, id int64) (*models.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	operator, ok := r.operators[id]
	if !ok {
		return nil, persistence.ErrOperatorNotFound
	}

	clone := *operator

	return &clone, nil
}

// DraftRepository stores at most one draft per (operator, process) key.
type DraftRepository struct {
	mu     sync.RWMutex
	drafts map[string]*models.Draft
}

func NewDraftRepository() *DraftRepository {
	return &DraftRepository{drafts: make(map[string]*models.Draft)}
}

func draftKey(operatorID int64, process string) string {
	return fmt.Sprintf("%d/%s", operatorID, process)
}

func (r *DraftRepository) Save(ctx context.Context, draft *models.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *draft
	clone.Payload = append([]byte(nil), draft.Payload...)
	r.drafts[draftKey(draft.OperatorID, draft.Process)] = &clone

	return nil
}

func (r *DraftRepository) Load(ctx context.Context, operatorID int64, process string) (*models.Draft, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	draft, ok := r.drafts[draftKey(operatorID, process)]
	if !ok {
		return nil, persistence.NewDraftError("load", operatorID, process, persistence.ErrDraftNotFound)
	}

	clone := *draft
	clone.Payload = append([]byte(nil), draft.Payload...)

	return &clone, nil
}

func (r *DraftRepository) Delete(ctx context.Context, operatorID int64, process string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.drafts, draftKey(operatorID, process))

	return nil
}

// RecordRepository appends completed records in memory.
type RecordRepository struct {
	mu      sync.RWMutex
	records []*models.Record
}

func NewRecordRepository() *RecordRepository {
	return &RecordRepository{}
}

func (r *RecordRepository) Insert(ctx context.Context, record *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *record
	r.records = append(r.records, &clone)

	return nil
}

func (r *RecordRepository) LastForProcess(ctx context.Context, operatorID int64, process string) (*models.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.records) - 1; i >= 0; i-- {
		record := r.records[i]
		if record.OperatorID == operatorID && record.Process == process {
			clone := *record

			return &clone, nil
		}
	}

	return nil, persistence.ErrRecordNotFound
}

// UnitSessionRepository tracks unit sessions in memory with the same claim
// semantics as the SQL implementation: one active session per
// (process, item_code) pair.
type UnitSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.UnitSession
}

func NewUnitSessionRepository() *UnitSessionRepository {
	return &UnitSessionRepository{sessions: make(map[string]*models.UnitSession)}
}

func (r *UnitSessionRepository) Claim(ctx context.Context, session *models.UnitSession) (*models.UnitSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sessions {
		if existing.Process != session.Process || existing.ItemCode != session.ItemCode || !existing.Active() {
			continue
		}

		if existing.OperatorID != session.OperatorID {
			return nil, &persistence.UnitOwnedError{ItemCode: session.ItemCode, OwnerID: existing.OperatorID}
		}

		clone := *existing

		return &clone, nil
	}

	clone := *session
	r.sessions[session.ID] = &clone
	result := clone

	return &result, nil
}

func (r *UnitSessionRepository) ByID(ctx context.Context, id string) (*models.UnitSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, persistence.ErrUnitSessionNotFound
	}

	clone := *session

	return &clone, nil
}

func (r *UnitSessionRepository) ActiveForOperator(ctx context.Context, operatorID int64, process string) (*models.UnitSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := make([]*models.UnitSession, 0, 1)

	for _, session := range r.sessions {
		if session.OperatorID == operatorID && session.Process == process && session.Active() {
			active = append(active, session)
		}
	}

	if len(active) == 0 {
		return nil, persistence.ErrUnitSessionNotFound
	}

	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })

	clone := *active[0]

	return &clone, nil
}

func (r *UnitSessionRepository) Complete(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || !session.Active() {
		return nil
	}

	completedAt := at
	session.CompletedAt = &completedAt

	return nil
}
