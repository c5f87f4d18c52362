package merging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
)

func TestChoosePrimary(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		a           *models.Actor
		b           *models.Actor
		wantPrimary string
	}{
		{
			name:        "higher signal count wins",
			a:           &models.Actor{ActorID: "actor-a", SignalCount: 3, FirstSeen: jan},
			b:           &models.Actor{ActorID: "actor-b", SignalCount: 9, FirstSeen: jun},
			wantPrimary: "actor-b",
		},
		{
			name:        "count tie falls back to earliest first_seen",
			a:           &models.Actor{ActorID: "actor-a", SignalCount: 5, FirstSeen: jun},
			b:           &models.Actor{ActorID: "actor-b", SignalCount: 5, FirstSeen: jan},
			wantPrimary: "actor-b",
		},
		{
			name:        "full tie falls back to lowest actor_id",
			a:           &models.Actor{ActorID: "actor-b", SignalCount: 5, FirstSeen: jan},
			b:           &models.Actor{ActorID: "actor-a", SignalCount: 5, FirstSeen: jan},
			wantPrimary: "actor-a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, merge := ChoosePrimary(tt.a, tt.b)
			assert.Equal(t, tt.wantPrimary, primary.ActorID)
			assert.NotEqual(t, primary.ActorID, merge.ActorID)
		})
	}
}

func TestPlanDuplicatesKeepsHigherConfidence(t *testing.T) {
	primaryIDs := []models.Identifier{
		{ID: "p1", Type: models.IdentifierTypePhone, Value: "+447473880264", Confidence: 1.0},
		{ID: "p2", Type: models.IdentifierTypeName, Value: "george roberts", Confidence: 0.5},
	}
	mergeIDs := []models.Identifier{
		{ID: "m1", Type: models.IdentifierTypePhone, Value: "+447473880264", Confidence: 0.9},
		{ID: "m2", Type: models.IdentifierTypeName, Value: "george r", Confidence: 0.5},
		{ID: "m3", Type: models.IdentifierTypeEmail, Value: "george@example.com", Confidence: 1.0},
	}

	plan := planDuplicates(primaryIDs, mergeIDs)

	// only the phone overlaps; the lower-confidence copy is retired
	require.Len(t, plan.retire, 1)
	assert.Equal(t, "m1", plan.retire[0])

	require.Len(t, plan.discarded, 1)
	assert.Equal(t, "m1", plan.discarded[0].IdentifierID)
	assert.InDelta(t, 0.9, plan.discarded[0].Confidence, 0.0001)
	assert.InDelta(t, 1.0, plan.discarded[0].KeptConfidence, 0.0001)

	require.Len(t, plan.shared, 1)
	assert.Equal(t, models.IdentifierTypePhone, plan.shared[0].Type)
}

func TestPlanDuplicatesRetiresPrimaryCopyWhenWeaker(t *testing.T) {
	primaryIDs := []models.Identifier{
		{ID: "p1", Type: models.IdentifierTypeHandle, Value: "georger", Confidence: 0.6},
	}
	mergeIDs := []models.Identifier{
		{ID: "m1", Type: models.IdentifierTypeHandle, Value: "georger", Confidence: 0.9},
	}

	plan := planDuplicates(primaryIDs, mergeIDs)

	require.Len(t, plan.retire, 1)
	assert.Equal(t, "p1", plan.retire[0])
	assert.InDelta(t, 0.9, plan.discarded[0].KeptConfidence, 0.0001)
}

func TestPlanDuplicatesNoOverlap(t *testing.T) {
	plan := planDuplicates(
		[]models.Identifier{{ID: "p1", Type: models.IdentifierTypePhone, Value: "+447473880264"}},
		[]models.Identifier{{ID: "m1", Type: models.IdentifierTypeEmail, Value: "g@example.com"}},
	)
	assert.Empty(t, plan.retire)
	assert.Empty(t, plan.discarded)
	assert.Empty(t, plan.shared)
}
