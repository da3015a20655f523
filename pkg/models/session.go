package models

import "time"

// SessionState is the engine-visible state of a workflow session.
type SessionState string

const (
	StateSelecting       SessionState = "selecting"
	StateAnswering       SessionState = "answering"
	StateAwaitingPhoto   SessionState = "awaiting_photo"
	StateAwaitingComment SessionState = "awaiting_comment"
)

// Correlation groups repeated executions of the same process against one
// physical unit. All fields are optional; processes without a scanned unit
// run with an empty correlation.
type Correlation struct {
	UnitSessionID string `json:"unit_session_id,omitempty"`
	ContainerCode string `json:"container_code,omitempty"`
	ItemCode      string `json:"item_code,omitempty"`
	SampleNumber  int    `json:"sample_number,omitempty"`
}

// Session is the live unit of work for one (operator, process) pair. It is
// mutated exclusively by the engine while the per-key lock is held.
type Session struct {
	OperatorID        int64               `json:"operator_id"`
	Process           string              `json:"process"`
	State             SessionState        `json:"state"`
	StepIndex         int                 `json:"step_index"`
	Values            map[string]any      `json:"values"`
	Photos            map[string][]string `json:"photos"`
	PendingPhotoFor   string              `json:"pending_photo_for,omitempty"`
	PendingCommentFor string              `json:"pending_comment_for,omitempty"`
	Correlation       Correlation         `json:"correlation"`
	SchemaVersion     int                 `json:"schema_version"`
	StartedAt         time.Time           `json:"started_at"`
}

// Pending reports whether a photo or comment requirement is unsatisfied.
func (s *Session) Pending() bool {
	return s.PendingPhotoFor != "" || s.PendingCommentFor != ""
}

// Draft is the durable projection of a Session, keyed by (operator, process).
// At most one draft exists per key; saving overwrites the previous one.
type Draft struct {
	OperatorID    int64     `json:"operator_id"`
	Process       string    `json:"process"`
	SchemaVersion int       `json:"schema_version"`
	Payload       []byte    `json:"payload"`
	UpdatedAt     time.Time `json:"updated_at"`
}
