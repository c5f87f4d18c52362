package models

import (
	"time"
)

// SignalType classifies the channel interaction a signal describes
type SignalType string

const (
	SignalTypeMessage       SignalType = "message"
	SignalTypeReview        SignalType = "review"
	SignalTypeOrder         SignalType = "order"
	SignalTypeSocialComment SignalType = "social_comment"
)

// IdentifierType is the kind of identifying value carried by a signal
type IdentifierType string

const (
	IdentifierTypePhone  IdentifierType = "phone"
	IdentifierTypeEmail  IdentifierType = "email"
	IdentifierTypeName   IdentifierType = "name"
	IdentifierTypeHandle IdentifierType = "handle"
)

// Signal is an immutable record of one external interaction. It is produced
// by the ingestion collaborators and never mutated here.
type Signal struct {
	SignalID       string        `json:"signal_id" db:"signal_id"`
	TenantID       string        `json:"tenant_id" db:"tenant_id"`
	Type           SignalType    `json:"type" db:"type"`
	RawIdentifiers IdentifierMap `json:"raw_identifiers" db:"raw_identifiers"`
	Text           *string       `json:"text,omitempty" db:"text"`
	OccurredAt     time.Time     `json:"occurred_at" db:"occurred_at"`
	Source         string        `json:"source" db:"source"`

	// Behavior is an optional caller-supplied behavior vector (location/time
	// pattern features). Used only as a weak-matching feature.
	Behavior Vector `json:"behavior,omitempty" db:"behavior"`

	// BehavioralSimilarity, when set, is a pre-computed similarity score
	// against the candidate pool and takes precedence over the vector.
	BehavioralSimilarity *float64 `json:"behavioral_similarity,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ResolveSignalRequest is the request body for resolving a single signal
type ResolveSignalRequest struct {
	SignalID             string                    `json:"signal_id" validate:"required"`
	Type                 SignalType                `json:"type" validate:"required"`
	RawIdentifiers       map[IdentifierType]string `json:"raw_identifiers" validate:"required"`
	Text                 *string                   `json:"text,omitempty"`
	OccurredAt           time.Time                 `json:"occurred_at" validate:"required"`
	Source               string                    `json:"source" validate:"required"`
	Behavior             Vector                    `json:"behavior,omitempty"`
	BehavioralSimilarity *float64                  `json:"behavioral_similarity,omitempty"`
}

// ToSignal converts a resolve request into the immutable signal record
func (r *ResolveSignalRequest) ToSignal(tenantID string) *Signal {
	return &Signal{
		SignalID:             r.SignalID,
		TenantID:             tenantID,
		Type:                 r.Type,
		RawIdentifiers:       r.RawIdentifiers,
		Text:                 r.Text,
		OccurredAt:           r.OccurredAt,
		Source:               r.Source,
		Behavior:             r.Behavior,
		BehavioralSimilarity: r.BehavioralSimilarity,
	}
}
