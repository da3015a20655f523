package models

import "time"

// Operator is a registered factory-floor user.
type Operator struct {
	ID        int64     `json:"id"         validate:"required"`
	FullName  string    `json:"full_name"  validate:"required,min=2,max=255"`
	Position  string    `json:"position"   validate:"max=255"`
	CreatedAt time.Time `json:"created_at"`
}

// UnitSession claims one physical unit (frame, pallet) for one process. A
// unit has at most one active session; it is closed by stamping CompletedAt.
type UnitSession struct {
	ID            string     `json:"id"`
	OperatorID    int64      `json:"operator_id"`
	Process       string     `json:"process"`
	ContainerCode string     `json:"container_code,omitempty"`
	ItemCode      string     `json:"item_code"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Active reports whether the unit is still being worked.
func (u *UnitSession) Active() bool {
	return u.CompletedAt == nil
}
