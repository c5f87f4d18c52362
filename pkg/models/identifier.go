package models

import (
	"time"
)

// Identifier is one normalized identifying value owned by an actor.
// Invariant: for a given (tenant, type, value) at most one active row
// exists at any instant, enforced by a partial unique index.
type Identifier struct {
	ID             string         `json:"id" db:"id"`
	TenantID       string         `json:"tenant_id" db:"tenant_id"`
	ActorID        string         `json:"actor_id" db:"actor_id"`
	Type           IdentifierType `json:"type" db:"type"`
	Value          string         `json:"value" db:"value"`
	Confidence     float64        `json:"confidence" db:"confidence"`
	SourceSignalID string         `json:"source_signal_id" db:"source_signal_id"`
	IsVerified     bool           `json:"is_verified" db:"is_verified"`

	// IsActive is false only for duplicate copies retired during a merge
	IsActive bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
