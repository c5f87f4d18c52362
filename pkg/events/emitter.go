// Package events publishes resolution and merge outcomes downstream.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Emitter publishes resolution events to the output topic
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

func decisionEventType(decision models.Decision) EventType {
	switch decision {
	case models.DecisionMatched:
		return EventTypeDecisionMatched
	case models.DecisionFlaggedForReview:
		return EventTypeDecisionFlagged
	default:
		return EventTypeDecisionCreated
	}
}

// EmitDecision emits the outcome of a signal resolution. Replayed results
// are skipped so redelivered signals do not duplicate events.
func (e *Emitter) EmitDecision(ctx context.Context, tenantID, signalID string, result *models.MatchResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDecision")
	defer span.End()

	if result.Replayed {
		return nil
	}

	event := DecisionEvent{
		BaseEvent:  NewBaseEvent(decisionEventType(result.Decision), tenantID),
		SignalID:   signalID,
		DecisionID: result.DecisionID,
		ActorID:    result.ActorID,
		Confidence: result.Confidence,
		Method:     result.Method,
		Candidates: result.Candidates,
	}

	if err := e.publish(ctx, event.BaseEvent, signalID, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit decision event")
		return err
	}

	return nil
}

// EmitActorMerged emits an actor merged event
func (e *Emitter) EmitActorMerged(ctx context.Context, record *models.MergeRecord) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitActorMerged")
	defer span.End()

	event := ActorMergedEvent{
		BaseEvent:      NewBaseEvent(EventTypeActorMerged, record.TenantID),
		MergeRecordID:  record.ID,
		PrimaryActorID: record.PrimaryActorID,
		MergedActorID:  record.MergedActorID,
		Reason:         record.Reason,
		Confidence:     record.Confidence,
	}

	if err := e.publish(ctx, event.BaseEvent, record.PrimaryActorID, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit actor.merged event")
		return err
	}

	return nil
}

func (e *Emitter) publish(ctx context.Context, base BaseEvent, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return e.producer.Publish(ctx, kafka.OutgoingMessage{
		Key:   key,
		Value: data,
		Headers: map[string]string{
			"event_type":     string(base.EventType),
			"tenant_id":      base.TenantID,
			"schema_version": base.SchemaVersion,
		},
	})
}
