package models

import "time"

// TokenAction names what a continuation token authorizes.
type TokenAction string

const (
	// TokenActionContinueUnit lets the owning operator resume recording
	// against a previously scanned unit without re-capturing its codes.
	TokenActionContinueUnit TokenAction = "continue_unit"
)

// ContinuationToken is a single-use, time-limited handle owned by one
// operator. It is deleted on consumption or expiry.
type ContinuationToken struct {
	Token      string            `json:"token"`
	OperatorID int64             `json:"operator_id"`
	Action     TokenAction       `json:"action"`
	Payload    map[string]string `json:"payload,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *ContinuationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
