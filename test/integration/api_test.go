package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
)

var validate = validator.New()

func TestResolveSignalRequest_Validation(t *testing.T) {
	t.Run("ValidRequest", func(t *testing.T) {
		req := models.ResolveSignalRequest{
			SignalID: "sig-001",
			Type:     models.SignalTypeMessage,
			RawIdentifiers: map[models.IdentifierType]string{
				models.IdentifierTypePhone: "07911 123456",
				models.IdentifierTypeName:  "Jane Doe",
			},
			OccurredAt: time.Now(),
			Source:     "webchat",
		}
		require.NoError(t, validate.Struct(req))

		sig := req.ToSignal("tenant-1")
		assert.Equal(t, "tenant-1", sig.TenantID)
		assert.Equal(t, "sig-001", sig.SignalID)
		assert.Equal(t, "07911 123456", sig.RawIdentifiers[models.IdentifierTypePhone])
	})

	t.Run("MissingSignalID", func(t *testing.T) {
		req := models.ResolveSignalRequest{
			Type:           models.SignalTypeMessage,
			RawIdentifiers: map[models.IdentifierType]string{models.IdentifierTypeEmail: "a@b.com"},
			OccurredAt:     time.Now(),
			Source:         "webchat",
		}
		assert.Error(t, validate.Struct(req))
	})

	t.Run("MissingIdentifiers", func(t *testing.T) {
		req := models.ResolveSignalRequest{
			SignalID:   "sig-002",
			Type:       models.SignalTypeMessage,
			OccurredAt: time.Now(),
			Source:     "webchat",
		}
		assert.Error(t, validate.Struct(req))
	})

	t.Run("RoundTripsThroughJSON", func(t *testing.T) {
		body := `{
			"signal_id": "sig-003",
			"type": "message",
			"raw_identifiers": {"email": "jane@example.com"},
			"occurred_at": "2025-06-01T12:00:00Z",
			"source": "email",
			"behavioral_similarity": 0.8
		}`

		var req models.ResolveSignalRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		require.NoError(t, validate.Struct(req))
		require.NotNil(t, req.BehavioralSimilarity)
		assert.InDelta(t, 0.8, *req.BehavioralSimilarity, 0.0001)
	})
}

func TestApplyMergeRequest_Validation(t *testing.T) {
	t.Run("ValidRequest", func(t *testing.T) {
		req := models.ApplyMergeRequest{
			PrimaryActorID: "actor-a",
			MergeActorID:   "actor-b",
			Reason:         "manual",
			Confidence:     0.9,
		}
		assert.NoError(t, validate.Struct(req))
	})

	t.Run("SelfMergeRejected", func(t *testing.T) {
		req := models.ApplyMergeRequest{
			PrimaryActorID: "actor-a",
			MergeActorID:   "actor-a",
			Reason:         "manual",
		}
		assert.Error(t, validate.Struct(req))
	})

	t.Run("ConfidenceOutOfRange", func(t *testing.T) {
		req := models.ApplyMergeRequest{
			PrimaryActorID: "actor-a",
			MergeActorID:   "actor-b",
			Reason:         "manual",
			Confidence:     1.5,
		}
		assert.Error(t, validate.Struct(req))
	})
}

func TestResolveReviewRequest_Validation(t *testing.T) {
	actorID := "actor-a"

	t.Run("LinkRequiresActor", func(t *testing.T) {
		req := models.ResolveReviewRequest{Resolution: models.ReviewResolutionLink}
		assert.Error(t, validate.Struct(req))

		req.ActorID = &actorID
		assert.NoError(t, validate.Struct(req))
	})

	t.Run("RejectNeedsNoActor", func(t *testing.T) {
		req := models.ResolveReviewRequest{Resolution: models.ReviewResolutionReject}
		assert.NoError(t, validate.Struct(req))
	})

	t.Run("UnknownResolutionRejected", func(t *testing.T) {
		req := models.ResolveReviewRequest{Resolution: "escalate"}
		assert.Error(t, validate.Struct(req))
	})
}
