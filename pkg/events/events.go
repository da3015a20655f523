// Package events defines event types for control-record lifecycle notifications.
package events

import (
	"time"
)

type EventType string

// Topic carries every record lifecycle event.
const Topic = "qcline.events"

const (
	RecordCompletedEvent EventType = "record.completed"
	UnitCompletedEvent   EventType = "unit.completed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordCompleted is published after a finished workflow's record has been
// durably inserted.
type RecordCompleted struct {
	BaseEvent

	RecordID      string `json:"record_id"`
	OperatorID    int64  `json:"operator_id"`
	Process       string `json:"process"`
	UnitSessionID string `json:"unit_session_id,omitempty"`
}

func (e RecordCompleted) GetType() EventType {
	return RecordCompletedEvent
}

// UnitCompleted is published when an operator closes a unit session.
type UnitCompleted struct {
	BaseEvent

	UnitSessionID string `json:"unit_session_id"`
	OperatorID    int64  `json:"operator_id"`
	Process       string `json:"process"`
	ItemCode      string `json:"item_code"`
}

func (e UnitCompleted) GetType() EventType {
	return UnitCompletedEvent
}
