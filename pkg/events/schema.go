package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	// Decision events
	EventTypeDecisionMatched EventType = "decision.matched"
	EventTypeDecisionCreated EventType = "decision.created"
	EventTypeDecisionFlagged EventType = "decision.flagged"

	// Actor events
	EventTypeActorMerged EventType = "actor.merged"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	TenantID      string    `json:"tenant_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// DecisionEvent is emitted for every fresh resolution outcome
type DecisionEvent struct {
	BaseEvent
	SignalID   string                  `json:"signal_id"`
	DecisionID string                  `json:"decision_id"`
	ActorID    string                  `json:"actor_id,omitempty"`
	Confidence float64                 `json:"confidence"`
	Method     models.LinkMethod       `json:"method,omitempty"`
	Candidates []models.CandidateScore `json:"candidates,omitempty"`
}

// ActorMergedEvent is emitted when a duplicate actor is folded into its primary
type ActorMergedEvent struct {
	BaseEvent
	MergeRecordID  string  `json:"merge_record_id"`
	PrimaryActorID string  `json:"primary_actor_id"`
	MergedActorID  string  `json:"merged_actor_id"`
	Reason         string  `json:"reason"`
	Confidence     float64 `json:"confidence"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
