package models

import (
	"time"

	"github.com/lib/pq"
)

// ActorStatus is the lifecycle state of an actor. The only transition is
// active -> merged, performed by the merge engine; merged is terminal.
type ActorStatus string

const (
	ActorStatusActive ActorStatus = "active"
	ActorStatusMerged ActorStatus = "merged"
)

// Actor is the canonical record for one real person within a tenant
type Actor struct {
	ActorID              string         `json:"actor_id" db:"actor_id"`
	TenantID             string         `json:"tenant_id" db:"tenant_id"`
	FirstSeen            time.Time      `json:"first_seen" db:"first_seen"`
	LastSeen             time.Time      `json:"last_seen" db:"last_seen"`
	SignalCount          int            `json:"signal_count" db:"signal_count"`
	SignalSources        pq.StringArray `json:"signal_sources" db:"signal_sources"`
	ProfileCompleteness  float64        `json:"profile_completeness" db:"profile_completeness"`
	ConfidenceInIdentity float64        `json:"confidence_in_identity" db:"confidence_in_identity"`
	Status               ActorStatus    `json:"status" db:"status"`

	// MergedInto redirects a merged actor to its surviving primary.
	// NULL while status is active.
	MergedInto *string `json:"merged_into,omitempty" db:"merged_into"`

	// Behavior is the running mean of the behavior vectors of linked signals
	Behavior Vector `json:"behavior,omitempty" db:"behavior"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsActive returns true while the actor has not been folded into another
func (a *Actor) IsActive() bool {
	return a.Status == ActorStatusActive
}

// ActorListResponse is the response for listing actors
type ActorListResponse struct {
	Items      []Actor `json:"items"`
	TotalCount int     `json:"total_count"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
}

// ActorDetailResponse is an actor with its identifiers and signal links
type ActorDetailResponse struct {
	Actor       Actor             `json:"actor"`
	Identifiers []Identifier      `json:"identifiers"`
	Links       []ActorSignalLink `json:"links"`
}
