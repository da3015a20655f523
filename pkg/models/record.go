package models

import "time"

// Record is one completed workflow's flattened value map, inserted exactly
// once by the engine on successful completion.
type Record struct {
	ID              string         `json:"id"`
	OperatorID      int64          `json:"operator_id"`
	Process         string         `json:"process"`
	UnitSessionID   string         `json:"unit_session_id,omitempty"`
	HeadlineNumeric *float64       `json:"headline_numeric,omitempty"`
	Values          map[string]any `json:"values"`
	CreatedAt       time.Time      `json:"created_at"`
}
