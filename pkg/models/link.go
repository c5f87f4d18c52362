package models

import (
	"time"
)

// LinkMethod records how a signal was attached to an actor
type LinkMethod string

const (
	LinkMethodExactPhone   LinkMethod = "exact_phone"
	LinkMethodExactEmail   LinkMethod = "exact_email"
	LinkMethodExactHandle  LinkMethod = "exact_handle"
	LinkMethodNameBehavior LinkMethod = "name_behavior"
	LinkMethodFuzzyName    LinkMethod = "fuzzy_name"
	LinkMethodManual       LinkMethod = "manual"
	LinkMethodNewActor     LinkMethod = "new_actor"
)

// ActorSignalLink associates a resolved signal with its actor. Created
// exactly once per signal; merges rewrite actor_id, never delete the row.
type ActorSignalLink struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	ActorID        string     `json:"actor_id" db:"actor_id"`
	SignalID       string     `json:"signal_id" db:"signal_id"`
	LinkConfidence float64    `json:"link_confidence" db:"link_confidence"`
	LinkMethod     LinkMethod `json:"link_method" db:"link_method"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
